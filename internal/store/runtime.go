package store

import (
	"context"
	"sync"
	"time"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/pkg/logger"
)

// gatewayRuntime interprets store effects against the durable session
// gateway. All gateway calls run asynchronously; results come back as events
// through the actor mailbox.
type gatewayRuntime struct {
	gw      gateway.Client
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

var _ actor.Runtime = (*gatewayRuntime)(nil)

func newGatewayRuntime(gw gateway.Client, timeout time.Duration) *gatewayRuntime {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &gatewayRuntime{gw: gw, timeout: timeout}
}

// HandleEffects implements actor.Runtime.
func (r *gatewayRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effLoadSession:
			r.spawn(func() { r.loadSession(ctx, e.ID, emit) })
		case effListSessions:
			r.spawn(func() { r.listSessions(ctx, emit) })
		}
	}
}

// Stop implements actor.Runtime.
func (r *gatewayRuntime) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *gatewayRuntime) spawn(fn func()) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *gatewayRuntime) loadSession(ctx context.Context, id string, emit func(actor.Input)) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := r.gw.GetSession(ctx, id)
	if err != nil {
		logger.Warnf("store: load session %s: %v", id, err)
		emit(evSessionLoadFailed{ID: id, Err: err})
		return
	}
	messages, err := r.gw.ListMessages(ctx, id)
	if err != nil {
		logger.Warnf("store: load messages for %s: %v", id, err)
		emit(evSessionLoadFailed{ID: id, Err: err})
		return
	}
	emit(evSessionLoaded{Session: session, Messages: messages})
}

func (r *gatewayRuntime) listSessions(ctx context.Context, emit func(actor.Input)) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sessions, err := r.gw.ListSessions(ctx)
	if err != nil {
		// A failed list is not fatal; the store keeps whatever it has and a
		// later refresh can retry.
		logger.Warnf("store: list sessions: %v", err)
		return
	}
	emit(evSessionsListed{Sessions: sessions})
}
