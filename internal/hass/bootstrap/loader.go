package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
)

// MaxAttempts is the total number of fetches Refresh makes before giving up.
const MaxAttempts = 5

// Fetcher returns the hub's full entity list, or an error-shaped payload.
type Fetcher interface {
	GetAllEntities(ctx context.Context) (json.RawMessage, error)
}

// Seeder receives the fetched states.
type Seeder interface {
	Seed(states []*entity.State)
}

// AttemptRecorder counts fetch attempts. *metrics.Metrics satisfies it.
type AttemptRecorder interface {
	IncBootstrapAttempt()
}

// Logger defines the logging interface used by the loader.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the loader's collaborators.
type Deps struct {
	Fetcher Fetcher
	Cache   Seeder

	// Enabled mirrors AUTO_CONNECT_SOCKET. When false, Hook skips the fetch.
	Enabled bool

	// RetryDelay is slept between attempts. Zero is valid.
	RetryDelay time.Duration

	Metrics AttemptRecorder
	Logger  Logger
}

// Loader seeds the entity cache from a bulk fetch, once per process.
//
// Thread Safety: concurrent Refresh calls are serialised.
type Loader struct {
	deps   Deps
	logger Logger

	mu       sync.Mutex
	done     bool
	attempts int
}

// New creates a loader.
func New(deps Deps) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loader{deps: deps, logger: logger}
}

// Hook is the post-config lifecycle hook. It skips the fetch when the
// loader is disabled.
func (l *Loader) Hook(ctx context.Context) error {
	if !l.deps.Enabled {
		l.logger.Debug("auto connect socket disabled, skipping entity bootstrap")
		return nil
	}
	return l.Refresh(ctx)
}

// Done reports whether the cache has been seeded.
func (l *Loader) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Attempts returns the number of fetches made so far.
func (l *Loader) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Refresh fetches the entity list and seeds the cache. After the first
// success further calls return nil without fetching.
//
// A response counts as usable when it decodes as a JSON array of states,
// including an empty array. Anything else, including transport errors, is
// retried after RetryDelay, up to MaxAttempts fetches in total.
//
// Returns:
//   - error: ErrFetchExhausted wrapping the last failure, or ctx.Err()
func (l *Loader) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 && l.deps.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.deps.RetryDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		l.attempts++
		if l.deps.Metrics != nil {
			l.deps.Metrics.IncBootstrapAttempt()
		}

		states, err := l.fetch(ctx)
		if err == nil {
			l.deps.Cache.Seed(states)
			l.done = true
			l.logger.Info("entity bootstrap complete", "entities", len(states), "attempts", attempt)
			return nil
		}

		lastErr = err
		l.logger.Warn("entity bootstrap fetch failed",
			"attempt", attempt, "max_attempts", MaxAttempts, "error", err)
	}

	l.logger.Error("entity bootstrap gave up", "attempts", MaxAttempts, "error", lastErr)
	return fmt.Errorf("%w after %d attempts: %w", ErrFetchExhausted, MaxAttempts, lastErr)
}

func (l *Loader) fetch(ctx context.Context) ([]*entity.State, error) {
	raw, err := l.deps.Fetcher.GetAllEntities(ctx)
	if err != nil {
		return nil, err
	}
	return decodeStates(raw)
}

// decodeStates accepts only a JSON array.
func decodeStates(raw json.RawMessage) ([]*entity.State, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s", ErrNotEntityList, preview(trimmed))
	}
	var states []*entity.State
	if err := json.Unmarshal(trimmed, &states); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotEntityList, err)
	}
	if states == nil {
		states = []*entity.State{}
	}
	return states, nil
}

func preview(b []byte) string {
	const limit = 80
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return string(b)
}
