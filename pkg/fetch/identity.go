package fetch

import (
	"math/rand/v2"
)

// IdentityPool hands out a randomly chosen User-Agent per request
type IdentityPool struct {
	agents []string
}

// NewIdentityPool copies the given agents; an empty pool yields "" (Go's default agent is then used)
func NewIdentityPool(agents []string) *IdentityPool {
	return &IdentityPool{agents: append([]string(nil), agents...)}
}

// Next returns a fresh identity. Safe for concurrent use.
func (p *IdentityPool) Next() string {
	if p == nil || len(p.agents) == 0 {
		return ""
	}
	return p.agents[rand.IntN(len(p.agents))]
}

// Len returns the pool size
func (p *IdentityPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.agents)
}
