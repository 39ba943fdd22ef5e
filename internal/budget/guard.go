package budget

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Guard gates external LLM calls against a finite counter. It never blocks
// and never errors: a false from Consume means the caller must take its
// offline path instead of calling out.
type Guard struct {
	mu        sync.Mutex
	max       int
	remaining int
	unlimited bool
	disabled  bool
	consumed  int
	skipped   int
}

// NewGuard builds a guard. maxCalls <= 0 means unlimited; noLLM disables
// every call regardless of the counter.
func NewGuard(maxCalls int, noLLM bool) *Guard {
	return &Guard{
		max:       maxCalls,
		remaining: maxCalls,
		unlimited: maxCalls <= 0,
		disabled:  noLLM,
	}
}

// Unlimited returns a guard that always allows calls.
func Unlimited() *Guard {
	return NewGuard(0, false)
}

// Consume reports whether one more external call labelled label may run.
func (g *Guard) Consume(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabled {
		g.skipped++
		zap.S().Infof("LLM disabled, skipping %s", label)
		return false
	}
	if g.unlimited {
		g.consumed++
		return true
	}
	if g.remaining > 0 {
		g.remaining--
		g.consumed++
		zap.S().Debugf("LLM budget: %s consumed a call (%d remaining)", label, g.remaining)
		return true
	}
	g.skipped++
	zap.S().Infof("LLM budget exhausted, skipping %s", label)
	return false
}

// Remaining returns the calls left, or -1 when unlimited.
func (g *Guard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unlimited {
		return -1
	}
	return g.remaining
}

// Disabled reports whether the guard is in no-LLM mode.
func (g *Guard) Disabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}

// Skipped returns how many calls were refused.
func (g *Guard) Skipped() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipped
}

// Summary describes the current mode and remaining count.
func (g *Guard) Summary() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.disabled:
		return "LLM disabled (no-LLM mode)"
	case g.unlimited:
		return fmt.Sprintf("LLM budget: unlimited (%d calls used)", g.consumed)
	default:
		return fmt.Sprintf("LLM budget: %d of %d calls remaining", g.remaining, g.max)
	}
}
