package store

import "github.com/chorus-dev/chorus/internal/actor"

// effLoadSession asks the runtime to hydrate one session (session record plus
// timeline) from the durable session gateway.
type effLoadSession struct {
	actor.EffectBase
	ID string
}

// effListSessions asks the runtime to fetch the session list from the
// durable session gateway.
type effListSessions struct {
	actor.EffectBase
}
