package testutil

import (
	"fmt"
	"sync"
)

// FixedRequestIDGenerator generates predictable request ids: prefix-1,
// prefix-2, ... The same scenario with a fresh generator produces
// byte-identical change logs.
//
// Implements engine.RequestIDGenerator.
type FixedRequestIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedRequestIDGenerator creates a generator. An empty prefix uses
// "test-request".
func NewFixedRequestIDGenerator(prefix string) *FixedRequestIDGenerator {
	if prefix == "" {
		prefix = "test-request"
	}
	return &FixedRequestIDGenerator{prefix: prefix}
}

// Generate returns the next request id.
func (g *FixedRequestIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
