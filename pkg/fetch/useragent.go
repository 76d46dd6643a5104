package fetch

import (
	"math/rand"
	"net/http"
	"sync"
)

// AgentPool hands out a user agent chosen uniformly at random from a fixed
// pool of mobile browser signatures. Rotation happens per attempt, not per
// record, to reduce fingerprinting correlation.
type AgentPool struct {
	agents []string
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewAgentPool creates a pool from the given signatures. The pool must be
// non-empty; config validation guarantees a built-in fallback set.
func NewAgentPool(agents []string, seed int64) *AgentPool {
	return &AgentPool{
		agents: agents,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Random returns one signature from the pool
func (p *AgentPool) Random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}

// ApplyMobileHeaders sets the rotated user agent plus the fixed mobile
// browsing header set the endpoint expects.
func (p *AgentPool) ApplyMobileHeaders(req *http.Request) {
	req.Header.Set("User-Agent", p.Random())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Connection", "keep-alive")
}
