// Package budget enforces per-model token budgets over a sliding one-minute
// window. It never rejects work; it only delays the caller until headroom
// exists.
package budget

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// window is the trailing period over which token usage is summed.
const window = time.Minute

// Clock abstracts time for tests. The real clock sleeps on a timer and
// honors context cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config holds per-model token budgets (tokens per minute). Models absent
// from the map fall back to the most conservative configured budget.
type Config struct {
	PerModel map[string]int `yaml:"per_model" mapstructure:"per_model"`
}

type entry struct {
	at     time.Time
	tokens int
}

// Manager tracks token consumption per model in a sliding window. It is the
// one piece of shared mutable state across a run and is safe for sequential
// reuse; the window is in-memory only and resets on process restart.
type Manager struct {
	mu      sync.Mutex
	budgets map[string]int
	entries map[string][]entry
	clock   Clock

	calls int
}

// NewManager creates a Manager with the given per-model budgets.
func NewManager(cfg Config) *Manager {
	return newManager(cfg, realClock{})
}

func newManager(cfg Config, clock Clock) *Manager {
	return &Manager{
		budgets: cfg.PerModel,
		entries: make(map[string][]entry),
		clock:   clock,
	}
}

// budgetFor returns the configured budget for model, or the most
// conservative configured budget for unknown models. Returns 0 when no
// budgets are configured at all, which disables limiting.
func (m *Manager) budgetFor(model string) int {
	if b, ok := m.budgets[model]; ok {
		return b
	}
	min := 0
	for _, b := range m.budgets {
		if min == 0 || b < min {
			min = b
		}
	}
	return min
}

// prune drops entries older than the window. Caller holds the lock.
func (m *Manager) prune(model string, now time.Time) {
	kept := m.entries[model][:0]
	for _, e := range m.entries[model] {
		if now.Sub(e.at) < window {
			kept = append(kept, e)
		}
	}
	m.entries[model] = kept
}

func (m *Manager) used(model string) int {
	sum := 0
	for _, e := range m.entries[model] {
		sum += e.tokens
	}
	return sum
}

// Reserve blocks until the model's window has room for estimated tokens.
// It never returns an error except on context cancellation. A single
// reservation larger than the whole budget is admitted once the window is
// empty, so oversized calls delay but never deadlock.
func (m *Manager) Reserve(ctx context.Context, model string, estimated int) error {
	for {
		m.mu.Lock()
		budget := m.budgetFor(model)
		if budget <= 0 {
			m.mu.Unlock()
			return nil
		}
		now := m.clock.Now()
		m.prune(model, now)
		used := m.used(model)

		if used+estimated <= budget || len(m.entries[model]) == 0 {
			if estimated > budget {
				zap.L().Warn("budget: single reservation exceeds model budget",
					zap.String("model", model),
					zap.Int("estimated_tokens", estimated),
					zap.Int("budget", budget),
				)
			}
			m.mu.Unlock()
			return nil
		}

		oldest := m.entries[model][0].at
		wait := oldest.Add(window).Sub(now)
		m.mu.Unlock()

		zap.L().Debug("budget: waiting for headroom",
			zap.String("model", model),
			zap.Int("used_tokens", used),
			zap.Int("estimated_tokens", estimated),
			zap.Int("budget", budget),
			zap.Duration("wait", wait),
		)
		if err := m.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Record appends actual token usage for model. Callers fall back to the
// pre-flight estimate when the provider does not report true usage.
func (m *Manager) Record(model string, actual int) {
	if actual <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[model] = append(m.entries[model], entry{at: m.clock.Now(), tokens: actual})
	m.calls++
}

// Calls returns the number of recorded model calls since creation or the
// last ResetCalls. The orchestrator uses it to decide whether a
// jurisdiction incurred any provider traffic.
func (m *Manager) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResetCalls zeroes the call counter without touching the window.
func (m *Manager) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
}
