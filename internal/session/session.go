// Package session holds the app-level "is someone signed in" state that routes the UI.
package session

import (
	"context"
	"sync"

	"github.com/desertthunder/trackshift/internal/models"
)

// Checker reports whether an identity session is held.
type Checker interface {
	IsAuthenticated(ctx context.Context) bool
}

// CheckerFunc adapts a function to [Checker].
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) IsAuthenticated(ctx context.Context) bool { return f(ctx) }

// Holder starts in [models.SessionLoading] and resolves once to a terminal state.
type Holder struct {
	checker Checker

	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	state models.SessionState
	// gen counts rechecks. A result is stored only if no newer check has started since.
	gen uint64
}

func NewHolder(checker Checker) *Holder {
	return &Holder{checker: checker, done: make(chan struct{}), state: models.SessionLoading}
}

// Start runs the check on a goroutine. Only the first call has an effect.
func (h *Holder) Start(ctx context.Context) {
	h.once.Do(func() {
		gen := h.generation()
		go func() {
			h.set(gen, h.check(ctx))
			close(h.done)
		}()
	})
}

// State returns the current state.
func (h *Holder) State() models.SessionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Done is closed once the initial check has resolved.
func (h *Holder) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the initial check resolves and returns the state.
func (h *Holder) Wait(ctx context.Context) (models.SessionState, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return models.SessionLoading, ctx.Err()
	}
}

// Recheck re-runs the check on the caller's goroutine, typically after a sign-in.
//
// A recheck supersedes any check still in flight, including the initial one.
func (h *Holder) Recheck(ctx context.Context) models.SessionState {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	state := h.check(ctx)
	h.set(gen, state)
	return state
}

func (h *Holder) check(ctx context.Context) models.SessionState {
	if h.checker.IsAuthenticated(ctx) {
		return models.SessionAuthenticated
	}
	return models.SessionNotAuthenticated
}

func (h *Holder) generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen
}

func (h *Holder) set(gen uint64, state models.SessionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return
	}
	h.state = state
}
