package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/zsml-scraper/pkg/config"
	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// RetryingFetcher wraps a PageFetcher with exponential backoff and jitter for
// transient failures (network errors, 5xx, 429). With maxRetries 0 it is a pass-through.
type RetryingFetcher struct {
	next              PageFetcher
	maxRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
	log               *logrus.Entry
}

// NewRetryingFetcher creates a RetryingFetcher using the retry settings of cfg
func NewRetryingFetcher(next PageFetcher, cfg *config.AppConfig, log *logrus.Entry) *RetryingFetcher {
	return &RetryingFetcher{
		next:              next,
		maxRetries:        cfg.MaxRetries,
		initialRetryDelay: cfg.InitialRetryDelay,
		maxRetryDelay:     cfg.MaxRetryDelay,
		log:               log.WithField("component", "retry"),
	}
}

// Fetch tries req up to maxRetries+1 times.
// Once retries are exhausted the last error is wrapped in ErrRetryFailed.
func (r *RetryingFetcher) Fetch(ctx context.Context, req Request) (RawContent, error) {
	if r.maxRetries <= 0 {
		return r.next.Fetch(ctx, req)
	}
	reqLog := r.log.WithField("url", req.URL)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			reqLog.WithFields(logrus.Fields{
				"attempt": attempt, "max_retries": r.maxRetries, "delay": delay, "category": utils.CategorizeError(lastErr),
			}).Warn("Retrying request...")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("%w during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		content, err := r.next.Fetch(ctx, req)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", r.maxRetries+1, lastErr)
	return "", fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff computes initial * 2^(attempt-1), capped by maxRetryDelay, with +/- 10% jitter
func (r *RetryingFetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(r.initialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (r.maxRetryDelay > 0 && delay > r.maxRetryDelay) {
		delay = r.maxRetryDelay
	}
	if spread := int64(delay) / 5; spread > 0 {
		delay += time.Duration(rand.Int64N(spread)) - delay/10
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return errors.Is(err, utils.ErrNetwork) || errors.Is(err, utils.ErrResponseBodyRead)
}
