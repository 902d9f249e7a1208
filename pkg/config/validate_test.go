package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{}
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, DefaultSearchURL, cfg.SearchURL)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultUserAgents, cfg.UserAgents)
	assert.Equal(t, 2*time.Second, cfg.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1, cfg.NumWorkers)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, int64(16<<20), cfg.MaxBodyBytes)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "./crawler_state", cfg.StateDir)
	assert.Equal(t, LocationModeRaw, cfg.LocationMode)

	assert.Equal(t, DefaultResultRows, cfg.Selectors.ResultRows)
	assert.Equal(t, DefaultMaxPageXPath, cfg.Selectors.MaxPageXPath)
	assert.Equal(t, DefaultProgramAnchor, cfg.Selectors.ProgramAnchor)
	assert.Equal(t, DefaultExamScopeCells, cfg.Selectors.ExamScopeCells)

	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 20, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)

	assert.True(t, containsWarning(warnings, "num_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		SearchURL:         "http://127.0.0.1:8080/zsml/queryAction.do",
		BaseURL:           "http://127.0.0.1:8080",
		UserAgents:        []string{"test-agent"},
		MinDelay:          time.Second,
		MaxDelay:          3 * time.Second,
		NumWorkers:        4,
		MaxRetries:        2,
		InitialRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:     10 * time.Second,
		OutputDir:         "/output",
		StateDir:          "/state",
		LocationMode:      LocationModeStrict,
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"test-agent"}, cfg.UserAgents)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, "/output", cfg.OutputDir)
	assert.Equal(t, LocationModeStrict, cfg.LocationMode)
}

func TestAppConfig_Validate_DelayWindow(t *testing.T) {
	t.Run("max below min collapses to min", func(t *testing.T) {
		cfg := AppConfig{MinDelay: 4 * time.Second, MaxDelay: time.Second}
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 4*time.Second, cfg.MaxDelay)
		assert.True(t, containsWarning(warnings, "max_delay"))
	})

	t.Run("negative falls back to defaults", func(t *testing.T) {
		cfg := AppConfig{MinDelay: -time.Second}
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.MinDelay)
		assert.Equal(t, 5*time.Second, cfg.MaxDelay)
		assert.True(t, containsWarning(warnings, "cannot be negative"))
	})

	t.Run("min only keeps a fixed interval", func(t *testing.T) {
		cfg := AppConfig{MinDelay: time.Second}
		_, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.MinDelay)
		assert.Equal(t, time.Second, cfg.MaxDelay)
	})
}

func TestAppConfig_Validate_Retries(t *testing.T) {
	cfg := AppConfig{MaxRetries: -3}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))

	cfg = AppConfig{MaxRetries: 3}
	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)

	cfg = AppConfig{MaxRetries: 3, InitialRetryDelay: time.Minute, MaxRetryDelay: 10 * time.Second}
	warnings, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
}

func TestAppConfig_Validate_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{"unknown location mode", AppConfig{LocationMode: "province"}},
		{"relative search url", AppConfig{SearchURL: "zsml/queryAction.do"}},
		{"broken program anchor", AppConfig{Selectors: SelectorConfig{ProgramAnchor: `<a href="(`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
		})
	}
}

func TestQueryConfig_Validate(t *testing.T) {
	t.Run("no selector field is fatal", func(t *testing.T) {
		q := QueryConfig{StudyMode: "1", CategoryName: "工学"}
		_, err := q.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})

	t.Run("unknown location mode is fatal", func(t *testing.T) {
		q := QueryConfig{RegionCode: "11", LocationMode: "city"}
		_, err := q.Validate()
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})

	t.Run("region only warns about result size", func(t *testing.T) {
		q := QueryConfig{RegionCode: "11"}
		warnings, err := q.Validate()
		require.NoError(t, err)
		assert.True(t, containsWarning(warnings, "discipline_code is empty"))
	})

	t.Run("output filename is sanitized", func(t *testing.T) {
		q := QueryConfig{RegionCode: "11", DisciplineCode: "0812", OutputFilename: "a/b?.csv"}
		warnings, err := q.Validate()
		require.NoError(t, err)
		assert.NotContains(t, q.OutputFilename, "/")
		assert.True(t, containsWarning(warnings, "sanitized"))
	})
}
