// Package useragent picks the User-Agent sent on each upstream request.
package useragent

import (
	"errors"
	"math/rand/v2"
)

// defaultAgents are the browser strings rotated when no pool is configured.
var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120",
	"Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/115",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2_1) Safari/605.1.15",
}

// ErrEmptyPool is returned by NewPool when no agents are given.
var ErrEmptyPool = errors.New("user agent pool must contain at least one entry")

// Pool is an immutable set of User-Agent strings. It is safe for concurrent use.
type Pool struct {
	agents []string
}

// NewPool creates a Pool over a copy of agents.
func NewPool(agents ...string) (*Pool, error) {
	if len(agents) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{agents: append([]string(nil), agents...)}, nil
}

// DefaultPool returns the built-in three-entry browser pool.
func DefaultPool() *Pool {
	return &Pool{agents: append([]string(nil), defaultAgents...)}
}

// Choose returns one entry uniformly at random.
func (p *Pool) Choose() string {
	return p.agents[rand.IntN(len(p.agents))]
}

// Agents returns a copy of the pool entries in order.
func (p *Pool) Agents() []string {
	return append([]string(nil), p.agents...)
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.agents)
}
