// Package store is the single source of truth for the set of known sessions,
// the active session, and each session's message timeline.
//
// All mutation flows through explicit action inputs reduced by a single
// state-owning actor; there is no ad hoc field mutation. The reducer treats
// every container as copy-on-write so snapshots handed out by the actor stay
// safe to read concurrently.
package store

import (
	"errors"

	"github.com/chorus-dev/chorus/pkg/types"
)

// ErrNoActiveSession is returned by operations that require an active
// session when none is set.
var ErrNoActiveSession = errors.New("no active session")

// State is the actor-owned session state.
type State struct {
	// Sessions holds every known session keyed by id.
	Sessions map[string]types.Session

	// Order lists session ids freshest-first, as presented to callers.
	Order []string

	// Messages holds the append-only timeline per session. Presence of a key
	// (even with an empty slice) means the timeline is cached.
	Messages map[string][]types.Message

	// ActiveID is the id of the UI-focused session, or "" when none.
	// Invariant: when non-empty it refers to a key in Sessions or a load for
	// it is in flight.
	ActiveID string

	// Loading is the set of session ids with a hydration in flight.
	Loading map[string]struct{}

	// LoadErrors records the most recent load failure per session id. A
	// failing load never discards data cached for other sessions.
	LoadErrors map[string]error

	// LastCreateErr records the most recent session-creation failure.
	LastCreateErr error
}

// NewState returns an empty store state.
func NewState() State {
	return State{
		Sessions:   make(map[string]types.Session),
		Messages:   make(map[string][]types.Message),
		Loading:    make(map[string]struct{}),
		LoadErrors: make(map[string]error),
	}
}

// cached reports whether the session's timeline is locally cached.
func (s State) cached(id string) bool {
	_, ok := s.Messages[id]
	return ok
}

func (s State) loading(id string) bool {
	_, ok := s.Loading[id]
	return ok
}

// Copy-on-write helpers. Each returns a fresh container so previously
// handed-out snapshots are never mutated.

func cloneSessions(m map[string]types.Session) map[string]types.Session {
	out := make(map[string]types.Session, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMessages(m map[string][]types.Message) map[string][]types.Message {
	out := make(map[string][]types.Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLoading(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func cloneLoadErrors(m map[string]error) map[string]error {
	out := make(map[string]error, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneOrder(order []string) []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}

func removeFromOrder(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
