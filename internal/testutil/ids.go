package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable dispatch IDs: "<prefix>-0001",
// "<prefix>-0002" and so on. It satisfies engine.IDGenerator.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "dispatch".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "dispatch"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
