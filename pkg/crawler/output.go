package crawler

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/models"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// utf8BOM lets spreadsheet tools detect the encoding of the CSV
const utf8BOM = "\uFEFF"

// OutputManager writes the artifacts of one query run
type OutputManager struct {
	log       *logrus.Entry
	appCfg    *config.AppConfig
	queryCfg  config.QueryConfig
	queryKey  string
	outputDir string
}

// NewOutputManager creates an OutputManager. Nothing is touched on disk until Export.
func NewOutputManager(log *logrus.Entry, appCfg *config.AppConfig, queryKey string, queryCfg config.QueryConfig) *OutputManager {
	return &OutputManager{
		log:       log.WithField("component", "output"),
		appCfg:    appCfg,
		queryCfg:  queryCfg,
		queryKey:  queryKey,
		outputDir: appCfg.OutputDir,
	}
}

// Export writes the CSV dataset and, when enabled, the JSONL copy and run metadata.
// Returns the paths written. A CSV failure is always returned; the optional outputs
// are attempted regardless and their errors joined in.
func (om *OutputManager) Export(summary *RunSummary) ([]string, error) {
	if err := os.MkdirAll(om.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output dir '%s': %w", utils.ErrFilesystem, om.outputDir, err)
	}

	var written []string
	var errs []error

	csvPath, err := om.WriteCSV(summary.Records)
	if err != nil {
		errs = append(errs, err)
	} else {
		written = append(written, csvPath)
	}

	if config.GetEffectiveEnableJSONLOutput(om.queryCfg, *om.appCfg) {
		jsonlPath, err := om.WriteJSONL(summary.Records)
		if err != nil {
			errs = append(errs, err)
		} else {
			written = append(written, jsonlPath)
		}
	}

	if om.appCfg.EnableMetadataYAML {
		metaPath, err := om.WriteMetadata(summary, written)
		if err != nil {
			errs = append(errs, err)
		} else {
			written = append(written, metaPath)
		}
	}

	return written, errors.Join(errs...)
}

// WriteCSV writes the header and one row per record, UTF-8 with BOM.
// The file is written next to its destination and renamed into place.
func (om *OutputManager) WriteCSV(rs *models.ResultSet) (string, error) {
	filename := config.GetEffectiveOutputFilename(om.queryKey, om.queryCfg)
	path := filepath.Join(om.outputDir, filename)
	records := rs.Records()

	err := writeAtomically(path, func(w *bufio.Writer) error {
		if _, err := w.WriteString(utf8BOM); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(rs.Header()); err != nil {
			return err
		}
		for _, rec := range records {
			if err := cw.Write(rec.Values()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		om.log.Errorf("Failed to write CSV '%s': %v", path, err)
		return "", fmt.Errorf("%w: CSV '%s': %w", utils.ErrExport, path, err)
	}

	om.log.Infof("Wrote %d record(s) to %s", len(records), path)
	return path, nil
}

// WriteJSONL writes one JSON object per record
func (om *OutputManager) WriteJSONL(rs *models.ResultSet) (string, error) {
	path := filepath.Join(om.outputDir, jsonlFilename(config.GetEffectiveOutputFilename(om.queryKey, om.queryCfg)))
	records := rs.Records()

	err := writeAtomically(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		om.log.Errorf("Failed to write JSONL '%s': %v", path, err)
		return "", fmt.Errorf("%w: JSONL '%s': %w", utils.ErrExport, path, err)
	}

	om.log.Infof("Wrote JSONL copy to %s", path)
	return path, nil
}

// WriteMetadata writes the run metadata YAML
func (om *OutputManager) WriteMetadata(summary *RunSummary, outputFiles []string) (string, error) {
	path := filepath.Join(om.outputDir, config.GetEffectiveMetadataYAMLFilename(om.queryKey, *om.appCfg))

	query := make(map[string]string, len(models.QueryFields))
	for _, f := range models.QueryFields {
		if v := summary.Query.Get(f); v != "" && f != models.FieldPageNo {
			query[string(f)] = v
		}
	}

	metadata := models.RunMetadata{
		RunID:        summary.RunID,
		QueryKey:     summary.QueryKey,
		Query:        query,
		LocationMode: summary.LocationMode,
		StartTime:    summary.StartTime,
		EndTime:      summary.EndTime,
		Counters:     summary.Counters,
		OutputFiles:  outputFiles,
	}

	yamlData, err := yaml.Marshal(&metadata)
	if err != nil {
		return "", fmt.Errorf("%w: marshal run metadata: %w", utils.ErrExport, err)
	}
	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		om.log.Errorf("Failed to write metadata YAML '%s': %v", path, err)
		return "", fmt.Errorf("%w: metadata '%s': %w", utils.ErrFilesystem, path, err)
	}

	om.log.Infof("Wrote run metadata to %s", path)
	return path, nil
}

// writeAtomically writes through a temp file in the destination directory and renames it into place
func writeAtomically(path string, fill func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		cleanup()
		return err
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// jsonlFilename swaps the dataset extension for .jsonl
func jsonlFilename(csvName string) string {
	return strings.TrimSuffix(csvName, filepath.Ext(csvName)) + ".jsonl"
}
