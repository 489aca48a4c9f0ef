// Package actor implements the single-owner event loop that serializes all
// state mutation in the client core.
//
// One goroutine owns the state. A pure reducer maps (state, input) to
// (next state, effects). Effects are data; a Runtime interprets them
// asynchronously and feeds resulting events back into the mailbox. This keeps
// ordering invariants trivial (no locks around domain state) and makes the
// reducer deterministic and unit-testable.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to an actor mailbox: either a command from a
// caller or an event observed by the runtime.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer. Effects carry
// data only; execution belongs to the Runtime.
type Effect interface {
	isActorEffect()
}

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase can be embedded into effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}

// Reducer is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines, or read clocks; timestamps
// and generated ids are injected through inputs.
type Reducer[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
//
// HandleEffects must return quickly; blocking work runs asynchronously.
// Implementations stop emitting once the context is canceled.
type Runtime interface {
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	Stop()
}

// Hooks provide optional observability into an actor's execution.
type Hooks[S any] struct {
	// OnTransition is called after an input has been reduced.
	OnTransition func(prev S, next S, input Input)
	// OnEffects is called before effects are handed to the Runtime.
	OnEffects func(effects []Effect)
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  Reducer[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches observability hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the actor mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New creates an actor with initial state, reducer, and runtime.
func New[S any](initial S, reducer Reducer[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the actor loop. Start is idempotent.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the actor context and stops the runtime. Safe to call more
// than once.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done returns a channel that closes when the actor loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue delivers an input to the actor mailbox. It returns false if the
// actor has stopped or the mailbox is full; callers that need backpressure
// should size the mailbox accordingly.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		return false
	}
}

// State returns a snapshot of the current actor state.
//
// Reducers must treat state containers as copy-on-write so snapshots stay
// safe to read after the loop moves on.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)

	emit := func(in Input) {
		_ = a.Enqueue(in)
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			if in == nil {
				continue
			}

			a.mu.Lock()
			prev := a.state
			a.mu.Unlock()

			next, effects := a.reduce(prev, in)

			a.mu.Lock()
			a.state = next
			a.mu.Unlock()

			if a.hooks.OnTransition != nil {
				a.hooks.OnTransition(prev, next, in)
			}
			if len(effects) > 0 && a.hooks.OnEffects != nil {
				a.hooks.OnEffects(effects)
			}
			if a.runtime != nil && len(effects) > 0 {
				a.runtime.HandleEffects(a.ctx, effects, emit)
			}
		}
	}
}

// ErrStopped is returned by callers when the actor has been stopped.
var ErrStopped = errors.New("actor stopped")
