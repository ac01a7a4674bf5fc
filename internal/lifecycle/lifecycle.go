package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Phase is a lifecycle stage. Phases run in declaration order.
type Phase int

const (
	// PhaseBootstrap runs first: transports and catalogs.
	PhaseBootstrap Phase = iota
	// PhasePostConfig runs once configuration is applied; hooks are priority ordered.
	PhasePostConfig
	// PhaseReady runs last, when the runtime may serve callers.
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrap:
		return "bootstrap"
	case PhasePostConfig:
		return "post_config"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var phases = []Phase{PhaseBootstrap, PhasePostConfig, PhaseReady}

// Domain-specific errors for lifecycle operations.
var (
	// ErrAlreadyRun is returned by a second Run.
	ErrAlreadyRun = errors.New("lifecycle: already run")

	// ErrHookFailed wraps the error of the hook that aborted Run.
	ErrHookFailed = errors.New("lifecycle: hook failed")
)

// Hook is a lifecycle callback. A returned error aborts Run.
type Hook func(ctx context.Context) error

// Logger defines the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

type hook struct {
	name        string
	fn          Hook
	priority    int
	prioritised bool
	seq         int
}

// Manager collects hooks and runs them phase by phase.
//
// Post-config ordering: prioritised hooks with priority >= 0 (highest
// first), then unprioritised hooks in registration order, then negative
// priorities (highest first). Ties keep registration order.
//
// Thread Safety: registration is safe for concurrent use. Run is one-shot.
type Manager struct {
	mu      sync.Mutex
	hooks   map[Phase][]hook
	seq     int
	ran     bool
	reached map[Phase]bool
	logger  Logger
}

// New creates an empty manager.
func New() *Manager {
	return &Manager{
		hooks:   make(map[Phase][]hook),
		reached: make(map[Phase]bool),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// OnBootstrap registers a bootstrap hook.
func (m *Manager) OnBootstrap(name string, fn Hook) {
	m.add(PhaseBootstrap, hook{name: name, fn: fn})
}

// OnPostConfig registers an unprioritised post-config hook.
func (m *Manager) OnPostConfig(name string, fn Hook) {
	m.add(PhasePostConfig, hook{name: name, fn: fn})
}

// OnPostConfigPriority registers a post-config hook with a priority.
func (m *Manager) OnPostConfigPriority(name string, priority int, fn Hook) {
	m.add(PhasePostConfig, hook{name: name, fn: fn, priority: priority, prioritised: true})
}

// OnReady registers a ready hook.
func (m *Manager) OnReady(name string, fn Hook) {
	m.add(PhaseReady, hook{name: name, fn: fn})
}

func (m *Manager) add(phase Phase, h hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.seq = m.seq
	m.seq++
	m.hooks[phase] = append(m.hooks[phase], h)
}

// Reached reports whether phase has started.
func (m *Manager) Reached(phase Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reached[phase]
}

// Run executes every phase in order. The first hook error stops the run.
//
// Returns:
//   - error: ErrAlreadyRun, ctx.Err(), or ErrHookFailed wrapping the hook's error
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return ErrAlreadyRun
	}
	m.ran = true
	m.mu.Unlock()

	for _, phase := range phases {
		m.mu.Lock()
		m.reached[phase] = true
		hooks := ordered(phase, m.hooks[phase])
		logger := m.logger
		m.mu.Unlock()

		logger.Debug("lifecycle phase starting", "phase", phase.String(), "hooks", len(hooks))
		for _, h := range hooks {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			if err := h.fn(ctx); err != nil {
				return fmt.Errorf("%w: %s/%s: %w", ErrHookFailed, phase, h.name, err)
			}
			logger.Debug("lifecycle hook done", "phase", phase.String(), "hook", h.name,
				"duration", time.Since(start))
		}
		logger.Info("lifecycle phase complete", "phase", phase.String())
	}
	return nil
}

// ordered returns a sorted copy of hooks for phase.
func ordered(phase Phase, hooks []hook) []hook {
	out := append([]hook(nil), hooks...)
	if phase != PhasePostConfig {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := band(out[i]), band(out[j])
		if bi != bj {
			return bi < bj
		}
		if out[i].prioritised && out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// band groups hooks: 0 non-negative priority, 1 unprioritised, 2 negative.
func band(h hook) int {
	switch {
	case !h.prioritised:
		return 1
	case h.priority >= 0:
		return 0
	default:
		return 2
	}
}
