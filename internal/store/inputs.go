package store

import (
	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/pkg/types"
)

// Action inputs. Commands originate from callers, events from the runtime or
// from confirmed server state.

// cmdRefreshSessions asks for a fresh session list from the durable store.
type cmdRefreshSessions struct {
	actor.InputBase
}

// cmdSetActive switches the UI-focused session. Empty ID clears the focus.
type cmdSetActive struct {
	actor.InputBase
	ID string
}

// cmdLoadSession marks a session id as loading and requests hydration. A
// load already in flight makes this a no-op.
type cmdLoadSession struct {
	actor.InputBase
	ID string
}

// evSessionsListed delivers the durable store's session list.
type evSessionsListed struct {
	actor.InputBase
	Sessions []types.Session
}

// evSessionLoaded delivers a hydrated session and its timeline.
type evSessionLoaded struct {
	actor.InputBase
	Session  types.Session
	Messages []types.Message
}

// evSessionLoadFailed records a hydration failure for one session id.
type evSessionLoadFailed struct {
	actor.InputBase
	ID  string
	Err error
}

// evCreateSucceeded appends a brand-new session as the freshest entry.
type evCreateSucceeded struct {
	actor.InputBase
	Session  types.Session
	Activate bool
}

// evCreateFailed records a session-creation failure.
type evCreateFailed struct {
	actor.InputBase
	Err error
}

// cmdAppendMessages grows a session timeline. The only growth path.
type cmdAppendMessages struct {
	actor.InputBase
	SessionID string
	Messages  []types.Message
}

// cmdReconcileMessage merges a server-confirmed message into a previously
// appended optimistic one, keyed by the locally generated id.
type cmdReconcileMessage struct {
	actor.InputBase
	SessionID string
	LocalID   string
	Server    types.Message
}

// evSessionUpdated reflects a durable-store-confirmed partial update.
type evSessionUpdated struct {
	actor.InputBase
	ID    string
	Patch types.SessionPatch
	NowMs int64
}

// evSessionDeleted reflects a durable-store-confirmed deletion.
type evSessionDeleted struct {
	actor.InputBase
	ID string
}

// cmdClearSession forgets local cached state for a session without touching
// the durable store.
type cmdClearSession struct {
	actor.InputBase
	ID string
}

// cmdRateMessage sets the rating of an existing message in place.
type cmdRateMessage struct {
	actor.InputBase
	SessionID string
	MessageID string
	Rating    int
}

// cmdCorrectMessage attaches correction text to an existing message.
type cmdCorrectMessage struct {
	actor.InputBase
	SessionID  string
	MessageID  string
	Correction string
}
