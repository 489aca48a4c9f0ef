package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/pkg/types"
)

// fakeGateway is an in-memory durable session gateway.
type fakeGateway struct {
	sessions map[string]types.Session
	messages map[string][]types.Message

	getCalls  atomic.Int64
	listCalls atomic.Int64
	// block, when non-nil, delays GetSession until closed.
	block chan struct{}
}

var _ gateway.Client = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]types.Session),
		messages: make(map[string][]types.Message),
	}
}

func (g *fakeGateway) ListSessions(ctx context.Context) ([]types.Session, error) {
	g.listCalls.Add(1)
	out := make([]types.Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, id string) (types.Session, error) {
	g.getCalls.Add(1)
	if g.block != nil {
		<-g.block
	}
	s, ok := g.sessions[id]
	if !ok {
		return types.Session{}, gateway.ErrNotFound
	}
	return s, nil
}

func (g *fakeGateway) CreateSession(ctx context.Context, agentType, modelID string) (types.Session, error) {
	s := types.Session{ID: types.NewLocalID(), Status: types.SessionActive}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) (types.Session, error) {
	return g.sessions[id], nil
}

func (g *fakeGateway) DeleteSession(ctx context.Context, id string) error {
	delete(g.sessions, id)
	return nil
}

func (g *fakeGateway) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	return g.messages[sessionID], nil
}

func (g *fakeGateway) PostMessage(ctx context.Context, sessionID, content string, metadata map[string]any) (types.Message, error) {
	m := types.Message{ID: types.NewLocalID(), SessionID: sessionID, Role: types.RoleUser, Content: content}
	g.messages[sessionID] = append(g.messages[sessionID], m)
	return m, nil
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond())
}

func TestStore_SetActiveHydratesFromGateway(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sessions["s1"] = types.Session{ID: "s1", Title: "demo", Status: types.SessionActive}
	gw.messages["s1"] = []types.Message{
		{ID: "m1", SessionID: "s1", Role: types.RoleUser, Content: "hello"},
	}

	s := New(gw, actor.RealClock{}, time.Second)
	s.Start()
	defer s.Stop()

	s.SetActive("s1")
	waitFor(t, func() bool {
		_, ok := s.Session("s1")
		return ok && !s.IsLoading("s1")
	})

	require.Equal(t, "s1", s.ActiveID())
	session, ok := s.Session("s1")
	require.True(t, ok)
	require.Equal(t, "demo", session.Title)

	msgs := s.Messages("s1")
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)
	require.NoError(t, s.LoadError("s1"))
}

func TestStore_ConcurrentLoadRequestsCollapse(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sessions["s2"] = types.Session{ID: "s2", Status: types.SessionActive}
	gw.block = make(chan struct{})

	s := New(gw, actor.RealClock{}, 2*time.Second)
	s.Start()
	defer s.Stop()

	s.LoadSession("s2")
	s.LoadSession("s2")
	s.SetActive("s2")

	// Let the actor drain its mailbox before releasing the gateway.
	time.Sleep(100 * time.Millisecond)
	close(gw.block)

	waitFor(t, func() bool {
		_, ok := s.Session("s2")
		return ok
	})
	require.EqualValues(t, 1, gw.getCalls.Load(), "overlapping loads must issue one gateway call")
}

func TestStore_LoadFailureIsPerSession(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sessions["good"] = types.Session{ID: "good", Status: types.SessionActive}

	s := New(gw, actor.RealClock{}, time.Second)
	s.Start()
	defer s.Stop()

	s.LoadSession("good")
	s.LoadSession("missing")
	waitFor(t, func() bool {
		_, ok := s.Session("good")
		return ok && s.LoadError("missing") != nil
	})

	require.Error(t, s.LoadError("missing"))
	require.NoError(t, s.LoadError("good"))
	_, ok := s.Session("good")
	require.True(t, ok)
}

func TestStore_WaitHydratedBlocksUntilLoadSettles(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sessions["s3"] = types.Session{ID: "s3", Status: types.SessionActive}
	gw.block = make(chan struct{})

	s := New(gw, actor.RealClock{}, 2*time.Second)
	s.Start()
	defer s.Stop()

	// Right after the enqueue the actor may not have dequeued the command,
	// so "not loading" must not count as hydrated.
	s.SetActive("s3")
	done := make(chan bool, 1)
	go func() { done <- s.WaitHydrated("s3", 2*time.Second) }()

	select {
	case <-done:
		t.Fatal("WaitHydrated returned before the load settled")
	case <-time.After(100 * time.Millisecond):
	}

	close(gw.block)
	require.True(t, <-done)
	_, ok := s.Session("s3")
	require.True(t, ok)
}

func TestStore_WaitHydratedSettlesOnLoadFailure(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()

	s := New(gw, actor.RealClock{}, time.Second)
	s.Start()
	defer s.Stop()

	s.SetActive("missing")
	require.True(t, s.WaitHydrated("missing", 2*time.Second))
	require.Error(t, s.LoadError("missing"))
}

func TestStore_ActivePointerAlwaysResolvable(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.sessions["s1"] = types.Session{ID: "s1", Status: types.SessionActive}

	s := New(gw, actor.RealClock{}, time.Second)
	s.Start()
	defer s.Stop()

	s.SetActive("s1")
	waitFor(t, func() bool { return s.HasSession("s1") && !s.IsLoading("s1") })
	s.ApplyDelete("s1")

	waitFor(t, func() bool { return s.ActiveID() == "" })
	require.False(t, s.HasSession("s1"), "deleting the active session forgets it")
}
