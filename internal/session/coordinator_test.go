package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorus-dev/chorus/internal/config"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/internal/problems"
	"github.com/chorus-dev/chorus/internal/store"
	"github.com/chorus-dev/chorus/internal/transport"
	"github.com/chorus-dev/chorus/pkg/types"
)

// fakeGateway persists nothing; it scripts the durable session service.
type fakeGateway struct {
	mu          sync.Mutex
	postErr     error
	posted      []types.Message
	createErr   error
	deleteErr   error
	updateCalls int
}

var _ gateway.Client = (*fakeGateway)(nil)

func (g *fakeGateway) ListSessions(ctx context.Context) ([]types.Session, error) {
	return nil, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, id string) (types.Session, error) {
	return types.Session{ID: id, Status: types.SessionActive}, nil
}

func (g *fakeGateway) CreateSession(ctx context.Context, agentType, modelID string) (types.Session, error) {
	if g.createErr != nil {
		return types.Session{}, g.createErr
	}
	return types.Session{ID: "created-1", Status: types.SessionActive}, nil
}

func (g *fakeGateway) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) (types.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	return types.Session{ID: id}, nil
}

func (g *fakeGateway) DeleteSession(ctx context.Context, id string) error {
	return g.deleteErr
}

func (g *fakeGateway) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	return nil, nil
}

func (g *fakeGateway) PostMessage(ctx context.Context, sessionID, content string, metadata map[string]any) (types.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.postErr != nil {
		return types.Message{}, g.postErr
	}
	m := types.Message{
		ID:        "srv-" + content,
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: types.NowMs(),
		Metadata:  metadata,
	}
	g.posted = append(g.posted, m)
	return m, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServerURL:            "http://localhost:9999",
		SocketPath:           "/v1/stream",
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		ConnectTimeout:       time.Second,
		HTTPTimeout:          time.Second,
		TriggerTimeout:       time.Minute,
	}
}

// newTestCoordinator starts only the store actor; the transport stays
// disconnected so no real socket is dialed.
func newTestCoordinator(t *testing.T, gw gateway.Client) *Coordinator {
	t.Helper()
	co := New(testConfig(), gw, problems.Discard{}, nil)
	co.store.Start()
	t.Cleanup(co.Stop)
	return co
}

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

func activateSession(t *testing.T, co *Coordinator, id string) {
	t.Helper()
	co.store.NoteCreated(types.Session{ID: id, Status: types.SessionActive}, true)
	waitFor(t, func() bool { return co.store.ActiveID() == id })
}

func TestCoordinator_SendMessageOptimisticThenConfirmed(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	co := newTestCoordinator(t, gw)
	activateSession(t, co, "s1")

	msg, err := co.SendMessage("build the parser")
	require.NoError(t, err)
	require.Equal(t, types.RoleUser, msg.Role)
	require.NotEmpty(t, msg.ID)

	// The optimistic entry appears without waiting for the server.
	waitFor(t, func() bool { return len(co.store.Messages("s1")) == 1 })

	// Confirmation merges in place: same local id, no duplicate entry.
	waitFor(t, func() bool {
		msgs := co.store.Messages("s1")
		return len(msgs) == 1 && msgs[0].Metadata["confirmed"] == true
	})
	msgs := co.store.Messages("s1")
	require.Equal(t, msg.ID, msgs[0].ID, "local id survives confirmation")
	require.Equal(t, "srv-build the parser", msgs[0].Metadata["serverId"])
}

func TestCoordinator_SendMessageFailureKeepsOptimisticEntry(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{postErr: errors.New("connection refused")}
	co := newTestCoordinator(t, gw)
	activateSession(t, co, "s1")

	msg, err := co.SendMessage("hello")
	require.NoError(t, err, "persistence failures surface in the timeline, not the call")

	waitFor(t, func() bool { return len(co.store.Messages("s1")) == 2 })
	msgs := co.store.Messages("s1")
	require.Equal(t, msg.ID, msgs[0].ID, "the failed optimistic entry is never removed")
	require.Equal(t, types.RoleSystem, msgs[1].Role)
	require.Equal(t, msg.ID, msgs[1].Metadata["failedMessageId"])
	require.Equal(t, true, msgs[1].Metadata["error"])
}

func TestCoordinator_SendMessageRequiresActiveSession(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})

	_, err := co.SendMessage("hello")
	require.ErrorIs(t, err, store.ErrNoActiveSession)
}

func TestCoordinator_CreateSessionFailureIsRecorded(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{createErr: errors.New("quota exceeded")}
	co := newTestCoordinator(t, gw)

	_, err := co.CreateSession(context.Background(), "coder", "", true)
	require.Error(t, err)

	waitFor(t, func() bool { return co.store.CreateError() != nil })
	require.Equal(t, "", co.store.ActiveID(), "failed creation never activates")
}

func TestCoordinator_BroadcastMessageAppendsToKnownSession(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})
	activateSession(t, co, "s1")

	co.HandleBroadcast(map[string]any{
		"type": "message",
		"payload": map[string]any{
			"id":        "b1",
			"sessionId": "s1",
			"role":      "assistant",
			"content":   "here is the code",
			"agentKind": "coder",
		},
	})

	waitFor(t, func() bool { return len(co.store.Messages("s1")) == 1 })
	msgs := co.store.Messages("s1")
	require.Equal(t, types.RoleAssistant, msgs[0].Role)
	require.Equal(t, "coder", msgs[0].AgentKind)

	// Same broadcast redelivered: the timeline does not grow.
	co.HandleBroadcast(map[string]any{
		"type": "message",
		"payload": map[string]any{
			"id": "b1", "sessionId": "s1", "role": "assistant", "content": "here is the code",
		},
	})
	time.Sleep(50 * time.Millisecond)
	require.Len(t, co.store.Messages("s1"), 1)
}

func TestCoordinator_BroadcastForUnknownSessionIsDropped(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})
	activateSession(t, co, "s1")

	co.HandleBroadcast(map[string]any{
		"type": "message",
		"payload": map[string]any{
			"id": "b1", "sessionId": "never-loaded", "role": "assistant", "content": "x",
		},
	})

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, co.store.Messages("never-loaded"))
	require.Empty(t, co.store.Messages("s1"))
}

func TestCoordinator_BroadcastSessionUpdate(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})
	activateSession(t, co, "s1")

	co.HandleBroadcast(map[string]any{
		"type": "session-update",
		"payload": map[string]any{
			"sessionId": "s1",
			"status":    "completed",
			"title":     "done",
		},
	})

	waitFor(t, func() bool {
		s, ok := co.store.Session("s1")
		return ok && s.Status == types.SessionCompleted
	})
	s, _ := co.store.Session("s1")
	require.Equal(t, "done", s.Title)
}

func TestCoordinator_MalformedBroadcastIsIgnored(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})
	activateSession(t, co, "s1")

	co.HandleBroadcast(map[string]any{"type": "message", "payload": map[string]any{"content": "no ids"}})
	co.HandleBroadcast(map[string]any{"type": "presence", "payload": map[string]any{}})

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, co.store.Messages("s1"))
}

type capturingSink struct {
	mu       sync.Mutex
	problems []problems.Problem
}

func (s *capturingSink) Report(p problems.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = append(s.problems, p)
}

func (s *capturingSink) reported() []problems.Problem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]problems.Problem, len(s.problems))
	copy(out, s.problems)
	return out
}

func TestCoordinator_ReportsExhaustedReconnects(t *testing.T) {
	t.Parallel()

	sink := &capturingSink{}
	co := New(testConfig(), &fakeGateway{}, sink, nil)
	co.store.Start()
	t.Cleanup(co.Stop)

	co.Transport().SetDialer(func(opts transport.Options) (transport.Conn, error) {
		return nil, errors.New("connection refused")
	})
	co.Transport().Connect()

	waitFor(t, func() bool {
		for _, p := range sink.reported() {
			if p.Source == "transport" && p.Severity == problems.SeverityError {
				return true
			}
		}
		return false
	})
	require.Equal(t, transport.StateDisconnected, co.Transport().State().State)
	require.ErrorIs(t, co.Transport().State().LastErr, transport.ErrReconnectExhausted)
}

func TestCoordinator_RateMessageValidatesRange(t *testing.T) {
	t.Parallel()

	co := newTestCoordinator(t, &fakeGateway{})
	activateSession(t, co, "s1")

	msg, err := co.SendMessage("rate me")
	require.NoError(t, err)
	waitFor(t, func() bool { return len(co.store.Messages("s1")) == 1 })

	require.Error(t, co.RateMessage("s1", msg.ID, 2))
	require.NoError(t, co.RateMessage("s1", msg.ID, 1))
	waitFor(t, func() bool {
		msgs := co.store.Messages("s1")
		return len(msgs) == 1 && msgs[0].Rating != nil && *msgs[0].Rating == 1
	})
}
