package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// Fetcher performs exactly one HTTP attempt per call.
// Retrying is left to the caller (see RetryingFetcher).
type Fetcher struct {
	client       *http.Client
	identities   *IdentityPool
	timeout      time.Duration
	maxBodyBytes int64
	inflight     singleflight.Group // Coalesces concurrent GETs of the same URL
	log          *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:       client,
		identities:   NewIdentityPool(cfg.UserAgents),
		timeout:      cfg.FetchTimeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		log:          log.WithField("component", "fetcher"),
	}
}

// Fetch retrieves req and returns the body decoded to UTF-8.
// Transport problems wrap ErrNetwork, non-2xx statuses return a *StatusError.
// Cancellation of ctx itself is returned unwrapped so callers can stop.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (RawContent, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Method != http.MethodGet {
		return f.fetchOnce(ctx, req)
	}

	v, err, shared := f.inflight.Do(req.URL, func() (interface{}, error) {
		return f.fetchOnce(ctx, req)
	})
	if shared {
		f.log.WithField("url", req.URL).Debug("Shared in-flight fetch")
	}
	if err != nil {
		return "", err
	}
	return v.(RawContent), nil
}

func (f *Fetcher) fetchOnce(parent context.Context, req Request) (RawContent, error) {
	reqLog := f.log.WithFields(logrus.Fields{"url": req.URL, "method": req.Method})

	if err := parent.Err(); err != nil {
		return "", err
	}
	ctx := parent
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, f.timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Method == http.MethodPost {
		body = strings.NewReader(req.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", utils.ErrRequestCreation, req.Method, req.URL, err)
	}
	if ua := f.identities.Next(); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if req.Method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		if parent.Err() != nil {
			return "", parent.Err()
		}
		return "", fmt.Errorf("%w: %s %s: %w", utils.ErrNetwork, req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		statusErr := newStatusError(req.URL, resp.StatusCode)
		reqLog.WithField("status_code", resp.StatusCode).Debug("Non-2xx response")
		return "", statusErr
	}

	limited := io.Reader(resp.Body)
	if f.maxBodyBytes > 0 {
		limited = io.LimitReader(resp.Body, f.maxBodyBytes)
	}
	decoded, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, req.URL, err)
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		if parent.Err() != nil {
			return "", parent.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: reading %s: %w", utils.ErrNetwork, req.URL, err)
		}
		return "", fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, req.URL, err)
	}

	reqLog.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"bytes":       len(data),
		"duration":    time.Since(start),
	}).Debug("Fetched")
	return RawContent(data), nil
}
