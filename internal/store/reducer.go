package store

import (
	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/pkg/types"
)

// Reduce is the session store reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdRefreshSessions:
		return state, []actor.Effect{effListSessions{}}
	case cmdSetActive:
		return reduceSetActive(state, in)
	case cmdLoadSession:
		return reduceLoadSession(state, in.ID)
	case evSessionsListed:
		return reduceSessionsListed(state, in)
	case evSessionLoaded:
		return reduceSessionLoaded(state, in)
	case evSessionLoadFailed:
		return reduceSessionLoadFailed(state, in)
	case evCreateSucceeded:
		return reduceCreateSucceeded(state, in)
	case evCreateFailed:
		state.LastCreateErr = in.Err
		return state, nil
	case cmdAppendMessages:
		return reduceAppendMessages(state, in)
	case cmdReconcileMessage:
		return reduceReconcileMessage(state, in)
	case evSessionUpdated:
		return reduceSessionUpdated(state, in)
	case evSessionDeleted:
		return reduceSessionDeleted(state, in.ID)
	case cmdClearSession:
		return reduceClearSession(state, in.ID)
	case cmdRateMessage:
		return reduceRateMessage(state, in)
	case cmdCorrectMessage:
		return reduceCorrectMessage(state, in)
	default:
		return state, nil
	}
}

func reduceSetActive(state State, cmd cmdSetActive) (State, []actor.Effect) {
	state.ActiveID = cmd.ID
	if cmd.ID == "" {
		return state, nil
	}
	// Activating a session with no cached timeline starts a hydration.
	// Switching away never evicts: previously cached sessions stay cached.
	if state.cached(cmd.ID) || state.loading(cmd.ID) {
		return state, nil
	}
	return reduceLoadSession(state, cmd.ID)
}

func reduceLoadSession(state State, id string) (State, []actor.Effect) {
	if id == "" {
		return state, nil
	}
	// A load already in flight makes a second request a no-op: exactly one
	// hydration call per session at a time.
	if state.loading(id) {
		return state, nil
	}
	state.Loading = cloneLoading(state.Loading)
	state.Loading[id] = struct{}{}
	return state, []actor.Effect{effLoadSession{ID: id}}
}

func reduceSessionsListed(state State, ev evSessionsListed) (State, []actor.Effect) {
	sessions := cloneSessions(state.Sessions)
	order := make([]string, 0, len(ev.Sessions))
	seen := make(map[string]struct{}, len(ev.Sessions))
	for _, s := range ev.Sessions {
		if s.ID == "" {
			continue
		}
		sessions[s.ID] = s
		order = append(order, s.ID)
		seen[s.ID] = struct{}{}
	}
	// Keep locally known sessions the server did not return (e.g. just
	// created, or created by another client and not yet listed).
	for _, id := range state.Order {
		if _, ok := seen[id]; !ok {
			if _, known := sessions[id]; known {
				order = append(order, id)
			}
		}
	}
	state.Sessions = sessions
	state.Order = order
	return state, nil
}

func reduceSessionLoaded(state State, ev evSessionLoaded) (State, []actor.Effect) {
	id := ev.Session.ID
	if id == "" {
		return state, nil
	}

	state.Loading = cloneLoading(state.Loading)
	delete(state.Loading, id)
	state.LoadErrors = cloneLoadErrors(state.LoadErrors)
	delete(state.LoadErrors, id)

	state.Sessions = cloneSessions(state.Sessions)
	if _, known := state.Sessions[id]; !known {
		state.Order = append([]string{id}, cloneOrder(state.Order)...)
	}
	state.Sessions[id] = ev.Session

	// The hydrated timeline becomes the base, in server order. Locally cached
	// messages the server does not know yet (optimistic entries) are kept,
	// appended after the base in their original relative order.
	loaded := make([]types.Message, 0, len(ev.Messages))
	present := make(map[string]struct{}, len(ev.Messages))
	for _, m := range ev.Messages {
		if _, dup := present[m.ID]; dup {
			continue
		}
		present[m.ID] = struct{}{}
		loaded = append(loaded, m)
	}
	for _, m := range state.Messages[id] {
		if _, ok := present[m.ID]; !ok {
			loaded = append(loaded, m)
			present[m.ID] = struct{}{}
		}
	}
	state.Messages = cloneMessages(state.Messages)
	state.Messages[id] = loaded
	return state, nil
}

func reduceSessionLoadFailed(state State, ev evSessionLoadFailed) (State, []actor.Effect) {
	state.Loading = cloneLoading(state.Loading)
	delete(state.Loading, ev.ID)
	// Error state is per-session: one failing load never blocks interaction
	// with other sessions.
	state.LoadErrors = cloneLoadErrors(state.LoadErrors)
	state.LoadErrors[ev.ID] = ev.Err
	return state, nil
}

func reduceCreateSucceeded(state State, ev evCreateSucceeded) (State, []actor.Effect) {
	id := ev.Session.ID
	if id == "" {
		return state, nil
	}
	state.LastCreateErr = nil
	state.Sessions = cloneSessions(state.Sessions)
	state.Sessions[id] = ev.Session
	state.Order = append([]string{id}, removeFromOrder(state.Order, id)...)
	// A brand-new session has an empty, cached timeline; no hydration needed.
	state.Messages = cloneMessages(state.Messages)
	if _, ok := state.Messages[id]; !ok {
		state.Messages[id] = []types.Message{}
	}
	if ev.Activate {
		state.ActiveID = id
	}
	return state, nil
}

func reduceAppendMessages(state State, cmd cmdAppendMessages) (State, []actor.Effect) {
	id := cmd.SessionID
	if id == "" || len(cmd.Messages) == 0 {
		return state, nil
	}
	// A message for a session that is neither known nor loading is a no-op,
	// not an error (e.g. a late result after the session was cleared).
	if _, known := state.Sessions[id]; !known && !state.cached(id) && !state.loading(id) {
		return state, nil
	}

	existing := state.Messages[id]
	present := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		present[m.ID] = struct{}{}
	}

	next := make([]types.Message, len(existing), len(existing)+len(cmd.Messages))
	copy(next, existing)
	for _, m := range cmd.Messages {
		if m.ID == "" {
			continue
		}
		if _, dup := present[m.ID]; dup {
			continue
		}
		present[m.ID] = struct{}{}
		next = append(next, m)
	}

	state.Messages = cloneMessages(state.Messages)
	state.Messages[id] = next
	return state, nil
}

func reduceReconcileMessage(state State, cmd cmdReconcileMessage) (State, []actor.Effect) {
	existing, ok := state.Messages[cmd.SessionID]
	if !ok {
		return state, nil
	}
	idx := -1
	for i, m := range existing {
		if m.ID == cmd.LocalID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return state, nil
	}

	// The locally generated id is kept: no difference is observable to the
	// user, and swapping ids mid-timeline causes flicker. The server id is
	// recorded in metadata for traceability.
	merged := existing[idx]
	meta := make(map[string]any, len(merged.Metadata)+len(cmd.Server.Metadata)+2)
	for k, v := range merged.Metadata {
		meta[k] = v
	}
	for k, v := range cmd.Server.Metadata {
		meta[k] = v
	}
	meta["confirmed"] = true
	if cmd.Server.ID != "" && cmd.Server.ID != cmd.LocalID {
		meta["serverId"] = cmd.Server.ID
	}
	merged.Metadata = meta

	next := make([]types.Message, len(existing))
	copy(next, existing)
	next[idx] = merged
	state.Messages = cloneMessages(state.Messages)
	state.Messages[cmd.SessionID] = next
	return state, nil
}

func reduceSessionUpdated(state State, ev evSessionUpdated) (State, []actor.Effect) {
	session, ok := state.Sessions[ev.ID]
	if !ok {
		return state, nil
	}
	if ev.Patch.Title != nil {
		session.Title = *ev.Patch.Title
	}
	if ev.Patch.Status != nil {
		session.Status = *ev.Patch.Status
	}
	if ev.Patch.CompletedAt != nil {
		session.CompletedAt = ev.Patch.CompletedAt
	}
	if ev.Patch.Progress != nil {
		session.Progress = ev.Patch.Progress
	}
	if len(ev.Patch.Metadata) > 0 {
		meta := make(map[string]any, len(session.Metadata)+len(ev.Patch.Metadata))
		for k, v := range session.Metadata {
			meta[k] = v
		}
		for k, v := range ev.Patch.Metadata {
			meta[k] = v
		}
		session.Metadata = meta
	}
	if ev.NowMs > 0 {
		session.UpdatedAt = ev.NowMs
	}
	state.Sessions = cloneSessions(state.Sessions)
	state.Sessions[ev.ID] = session
	return state, nil
}

func reduceSessionDeleted(state State, id string) (State, []actor.Effect) {
	state = forgetSession(state, id)
	return state, nil
}

func reduceClearSession(state State, id string) (State, []actor.Effect) {
	state = forgetSession(state, id)
	return state, nil
}

// forgetSession removes all local state for a session. Deleting or clearing
// the active session also clears the active pointer.
func forgetSession(state State, id string) State {
	if id == "" {
		return state
	}
	state.Sessions = cloneSessions(state.Sessions)
	delete(state.Sessions, id)
	state.Messages = cloneMessages(state.Messages)
	delete(state.Messages, id)
	state.Loading = cloneLoading(state.Loading)
	delete(state.Loading, id)
	state.LoadErrors = cloneLoadErrors(state.LoadErrors)
	delete(state.LoadErrors, id)
	state.Order = removeFromOrder(state.Order, id)
	if state.ActiveID == id {
		state.ActiveID = ""
	}
	return state
}

func reduceRateMessage(state State, cmd cmdRateMessage) (State, []actor.Effect) {
	if cmd.Rating < -1 || cmd.Rating > 1 {
		return state, nil
	}
	rating := cmd.Rating
	return mutateMessage(state, cmd.SessionID, cmd.MessageID, func(m types.Message) types.Message {
		m.Rating = &rating
		return m
	}), nil
}

func reduceCorrectMessage(state State, cmd cmdCorrectMessage) (State, []actor.Effect) {
	return mutateMessage(state, cmd.SessionID, cmd.MessageID, func(m types.Message) types.Message {
		m.Correction = cmd.Correction
		return m
	}), nil
}

// mutateMessage applies an in-place element mutation, the only permitted
// non-append change to a timeline.
func mutateMessage(state State, sessionID, messageID string, fn func(types.Message) types.Message) State {
	existing, ok := state.Messages[sessionID]
	if !ok {
		return state
	}
	idx := -1
	for i, m := range existing {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return state
	}
	next := make([]types.Message, len(existing))
	copy(next, existing)
	next[idx] = fn(next[idx])
	state.Messages = cloneMessages(state.Messages)
	state.Messages[sessionID] = next
	return state
}
