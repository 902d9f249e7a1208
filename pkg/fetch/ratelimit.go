package fetch

import (
	"context"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Pacer decides when the next politeness-governed request may go out
type Pacer interface {
	AwaitTurn(ctx context.Context) error
}

// NoopPacer never waits; used by tests
type NoopPacer struct{}

// AwaitTurn only reports cancellation
func (NoopPacer) AwaitTurn(ctx context.Context) error {
	return ctx.Err()
}

// SitePacer spaces turns by a random interval drawn from [minDelay, maxDelay].
// One SitePacer is shared by every worker talking to the same host.
type SitePacer struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	log      *logrus.Entry
}

// NewSitePacer creates a pacer. The first turn is granted immediately.
func NewSitePacer(minDelay, maxDelay time.Duration, log *logrus.Entry) *SitePacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	p := &SitePacer{minDelay: minDelay, maxDelay: maxDelay, log: log}
	p.limiter = rate.NewLimiter(rate.Every(p.nextInterval()), 1)
	return p
}

// AwaitTurn blocks until the interval since the previous turn has elapsed.
// Turns are serialized; after each one the limiter is re-armed with a fresh random interval.
func (p *SitePacer) AwaitTurn(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	next := p.nextInterval()
	p.limiter.SetLimit(rate.Every(next))

	if waited := time.Since(start); waited > time.Millisecond {
		p.log.WithFields(logrus.Fields{"waited": waited, "next_interval": next}).Debug("Pacer turn granted")
	}
	return nil
}

func (p *SitePacer) nextInterval() time.Duration {
	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + rand.N(spread+1)
}

// PacerRegistry hands out one SitePacer per host so that concurrent queries
// against the same site share a politeness budget
type PacerRegistry struct {
	mu       sync.Mutex
	pacers   map[string]*SitePacer
	minDelay time.Duration
	maxDelay time.Duration
	log      *logrus.Entry
}

// NewPacerRegistry creates an empty registry
func NewPacerRegistry(minDelay, maxDelay time.Duration, log *logrus.Entry) *PacerRegistry {
	return &PacerRegistry{
		pacers:   make(map[string]*SitePacer),
		minDelay: minDelay,
		maxDelay: maxDelay,
		log:      log,
	}
}

// ForURL returns the pacer for the host of rawURL, creating it on first use.
// Unparseable URLs share the "" host bucket.
func (r *PacerRegistry) ForURL(rawURL string) *SitePacer {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pacers[host]; ok {
		return p
	}
	p := NewSitePacer(r.minDelay, r.maxDelay, r.log.WithFields(logrus.Fields{"component": "pacer", "host": host}))
	r.pacers[host] = p
	return p
}
