package store

import (
	"time"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/pkg/types"
)

// Store is the public surface of the session store actor. Mutators enqueue
// action inputs; reads return snapshots safe for concurrent use.
type Store struct {
	actor *actor.Actor[State]
	clock actor.Clock
}

// New creates a store backed by the given durable session gateway.
func New(gw gateway.Client, clock actor.Clock, gatewayTimeout time.Duration) *Store {
	if clock == nil {
		clock = actor.RealClock{}
	}
	runtime := newGatewayRuntime(gw, gatewayTimeout)
	return &Store{
		actor: actor.New(NewState(), Reduce, runtime),
		clock: clock,
	}
}

// Start launches the store actor loop.
func (s *Store) Start() { s.actor.Start() }

// Stop shuts the store actor down.
func (s *Store) Stop() { s.actor.Stop() }

// Mutators.

// Refresh asks the durable store for the current session list.
func (s *Store) Refresh() { s.actor.Enqueue(cmdRefreshSessions{}) }

// SetActive switches the UI-focused session; empty id clears it. Activating
// a session with no cached timeline starts a hydration.
func (s *Store) SetActive(id string) { s.actor.Enqueue(cmdSetActive{ID: id}) }

// LoadSession starts hydrating a session. A load already in flight is a
// no-op.
func (s *Store) LoadSession(id string) { s.actor.Enqueue(cmdLoadSession{ID: id}) }

// AppendMessages grows a session timeline, preserving order and skipping ids
// already present.
func (s *Store) AppendMessages(sessionID string, messages ...types.Message) {
	s.actor.Enqueue(cmdAppendMessages{SessionID: sessionID, Messages: messages})
}

// ReconcileMessage merges a server-confirmed message into the optimistic
// entry with the given local id.
func (s *Store) ReconcileMessage(sessionID, localID string, server types.Message) {
	s.actor.Enqueue(cmdReconcileMessage{SessionID: sessionID, LocalID: localID, Server: server})
}

// NoteCreated records a freshly created session, optionally activating it.
func (s *Store) NoteCreated(session types.Session, activate bool) {
	s.actor.Enqueue(evCreateSucceeded{Session: session, Activate: activate})
}

// NoteCreateFailed records a session-creation failure.
func (s *Store) NoteCreateFailed(err error) {
	s.actor.Enqueue(evCreateFailed{Err: err})
}

// ApplyUpdate reflects a durable-store-confirmed partial session update.
func (s *Store) ApplyUpdate(id string, patch types.SessionPatch) {
	s.actor.Enqueue(evSessionUpdated{ID: id, Patch: patch, NowMs: s.clock.Now().UnixMilli()})
}

// ApplyDelete reflects a durable-store-confirmed session deletion.
func (s *Store) ApplyDelete(id string) {
	s.actor.Enqueue(evSessionDeleted{ID: id})
}

// Clear forgets local cached state for a session without contacting the
// durable store.
func (s *Store) Clear(id string) {
	s.actor.Enqueue(cmdClearSession{ID: id})
}

// RateMessage sets the rating (-1/0/1) of an existing message.
func (s *Store) RateMessage(sessionID, messageID string, rating int) {
	s.actor.Enqueue(cmdRateMessage{SessionID: sessionID, MessageID: messageID, Rating: rating})
}

// CorrectMessage attaches correction text to an existing message.
func (s *Store) CorrectMessage(sessionID, messageID, correction string) {
	s.actor.Enqueue(cmdCorrectMessage{SessionID: sessionID, MessageID: messageID, Correction: correction})
}

// Reads. All return snapshot data; mutating the results does not affect the
// store.

// ActiveID returns the id of the active session, or "".
func (s *Store) ActiveID() string { return s.actor.State().ActiveID }

// Session returns the session with the given id.
func (s *Store) Session(id string) (types.Session, bool) {
	session, ok := s.actor.State().Sessions[id]
	return session, ok
}

// HasSession reports whether a session is locally known or loading.
func (s *Store) HasSession(id string) bool {
	state := s.actor.State()
	if _, ok := state.Sessions[id]; ok {
		return true
	}
	return state.cached(id) || state.loading(id)
}

// Sessions returns all known sessions, freshest first.
func (s *Store) Sessions() []types.Session {
	state := s.actor.State()
	out := make([]types.Session, 0, len(state.Order))
	for _, id := range state.Order {
		if session, ok := state.Sessions[id]; ok {
			out = append(out, session)
		}
	}
	return out
}

// Messages returns the timeline of a session in append order.
func (s *Store) Messages(sessionID string) []types.Message {
	msgs := s.actor.State().Messages[sessionID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out
}

// IsLoading reports whether a hydration is in flight for the session.
func (s *Store) IsLoading(id string) bool { return s.actor.State().loading(id) }

// LoadError returns the most recent hydration failure for the session.
func (s *Store) LoadError(id string) error { return s.actor.State().LoadErrors[id] }

// CreateError returns the most recent session-creation failure.
func (s *Store) CreateError() error { return s.actor.State().LastCreateErr }

// WaitHydrated polls until a session load has settled: the session is known
// locally and not loading, or its load has failed. "Not loading" alone is not
// enough right after an enqueue, since the actor may not have dequeued the
// command yet. For simple CLI flows and tests; callers check LoadError to
// distinguish the outcomes.
func (s *Store) WaitHydrated(id string, timeout time.Duration) bool {
	settled := func() bool {
		if _, ok := s.Session(id); ok && !s.IsLoading(id) {
			return true
		}
		return s.LoadError(id) != nil
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if settled() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return settled()
}
