// Package session wires the client core together: transport, trigger
// correlator, session store, and durable session gateway. It also implements
// the optimistic write paths (user messages and trigger progress markers).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/config"
	"github.com/chorus-dev/chorus/internal/gateway"
	"github.com/chorus-dev/chorus/internal/problems"
	"github.com/chorus-dev/chorus/internal/store"
	"github.com/chorus-dev/chorus/internal/transport"
	"github.com/chorus-dev/chorus/internal/trigger"
	"github.com/chorus-dev/chorus/pkg/logger"
	"github.com/chorus-dev/chorus/pkg/types"
)

// expireInterval is how often pending triggers are checked for timeout.
const expireInterval = 30 * time.Second

// Coordinator owns the client core. All dependencies are injected at
// construction; there is no global mutable state.
type Coordinator struct {
	cfg        *config.Config
	gw         gateway.Client
	sink       problems.Sink
	clock      actor.Clock
	store      *store.Store
	transport  *transport.Client
	correlator *trigger.Correlator

	newID func() string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a fully wired coordinator.
func New(cfg *config.Config, gw gateway.Client, sink problems.Sink, clock actor.Clock) *Coordinator {
	if sink == nil {
		sink = problems.LogSink{}
	}
	if clock == nil {
		clock = actor.RealClock{}
	}

	co := &Coordinator{
		cfg:    cfg,
		gw:     gw,
		sink:   sink,
		clock:  clock,
		newID:  types.NewLocalID,
		stopCh: make(chan struct{}),
	}
	co.store = store.New(gw, clock, cfg.HTTPTimeout)
	// The coordinator implements both transport consumer interfaces and
	// delegates trigger-shaped events to the correlator, so all wiring stays
	// constructor-time.
	co.transport = transport.NewClient(transport.Options{
		ServerURL:            cfg.ServerURL,
		Path:                 cfg.SocketPath,
		Token:                cfg.Token,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		ConnectTimeout:       cfg.ConnectTimeout,
	}, co, co)
	// A connection given up on is an unrecoverable failure the user must hear
	// about, not just a log line.
	co.transport.OnStateChange(func(st transport.ConnectionState) {
		if st.State != transport.StateDisconnected || !errors.Is(st.LastErr, transport.ErrReconnectExhausted) {
			return
		}
		sink.Report(problems.Problem{
			Message:  "real-time connection lost: reconnect attempts exhausted",
			Severity: problems.SeverityError,
			Source:   "transport",
			Details:  map[string]any{"attempts": st.Attempts},
		})
	})
	co.correlator = trigger.New(co.transport, timelineAdapter{co}, sink, clock, cfg.TriggerTimeout)
	return co
}

// Start launches the store actor, connects the transport, and kicks off
// session-list hydration plus the trigger-expiry ticker.
func (co *Coordinator) Start() {
	co.store.Start()
	co.transport.Connect()
	co.store.Refresh()

	go func() {
		ticker := time.NewTicker(expireInterval)
		defer ticker.Stop()
		for {
			select {
			case <-co.stopCh:
				return
			case <-ticker.C:
				co.correlator.ExpirePending()
			}
		}
	}()
}

// Stop disconnects the transport and shuts the store actor down. Safe to
// call more than once.
func (co *Coordinator) Stop() {
	co.stopOnce.Do(func() {
		close(co.stopCh)
		co.transport.Disconnect()
		co.store.Stop()
	})
}

// Store exposes the session store for read access.
func (co *Coordinator) Store() *store.Store { return co.store }

// Triggers exposes the trigger correlator.
func (co *Coordinator) Triggers() *trigger.Correlator { return co.correlator }

// Transport exposes the transport for connection-state observation.
func (co *Coordinator) Transport() *transport.Client { return co.transport }

// SetActiveSession switches the focused session, hydrating it when needed.
func (co *Coordinator) SetActiveSession(id string) { co.store.SetActive(id) }

// CreateSession creates a session in the durable store and records it
// locally as the freshest entry, optionally activating it.
func (co *Coordinator) CreateSession(ctx context.Context, agentType, modelID string, activate bool) (types.Session, error) {
	session, err := co.gw.CreateSession(ctx, agentType, modelID)
	if err != nil {
		co.store.NoteCreateFailed(err)
		return types.Session{}, fmt.Errorf("create session: %w", err)
	}
	co.store.NoteCreated(session, activate)
	return session, nil
}

// UpdateSession applies a partial update in the durable store, then mirrors
// the confirmed fields locally.
func (co *Coordinator) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) error {
	if _, err := co.gw.UpdateSession(ctx, id, patch); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	co.store.ApplyUpdate(id, patch)
	return nil
}

// DeleteSession deletes in the durable store and then locally. Deleting the
// active session clears the active pointer.
func (co *Coordinator) DeleteSession(ctx context.Context, id string) error {
	if err := co.gw.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	co.store.ApplyDelete(id)
	return nil
}

// ClearSession forgets local state for a session without contacting the
// durable store.
func (co *Coordinator) ClearSession(id string) { co.store.Clear(id) }

// SendMessage appends an optimistic user message to the active session and
// persists it asynchronously. The optimistic entry is returned immediately;
// on persistence failure a system message describing the failure is appended
// after it, preserving the record of what the user tried to do.
func (co *Coordinator) SendMessage(content string) (types.Message, error) {
	sessionID := co.store.ActiveID()
	if sessionID == "" {
		return types.Message{}, store.ErrNoActiveSession
	}

	msg := types.Message{
		ID:        co.newID(),
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: co.clock.Now().UnixMilli(),
	}
	co.store.AppendMessages(sessionID, msg)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), co.cfg.HTTPTimeout)
		defer cancel()

		confirmed, err := co.gw.PostMessage(ctx, sessionID, content, map[string]any{"localId": msg.ID})
		if err != nil {
			logger.Warnf("session: persist message %s: %v", msg.ID, err)
			co.store.AppendMessages(sessionID, types.Message{
				ID:        co.newID(),
				SessionID: sessionID,
				Role:      types.RoleSystem,
				Content:   gateway.FormatUserError("Sending your message", err),
				CreatedAt: co.clock.Now().UnixMilli(),
				Metadata:  map[string]any{"error": true, "failedMessageId": msg.ID},
			})
			return
		}
		co.store.ReconcileMessage(sessionID, msg.ID, confirmed)
	}()

	return msg, nil
}

// RateMessage records a -1/0/1 rating on an existing message.
func (co *Coordinator) RateMessage(sessionID, messageID string, rating int) error {
	if rating < -1 || rating > 1 {
		return fmt.Errorf("rating must be -1, 0 or 1")
	}
	co.store.RateMessage(sessionID, messageID, rating)
	return nil
}

// CorrectMessage attaches correction text to an existing message.
func (co *Coordinator) CorrectMessage(sessionID, messageID, correction string) {
	co.store.CorrectMessage(sessionID, messageID, correction)
}

// HandleTriggerEvent implements transport.TriggerConsumer by delegating to
// the correlator.
func (co *Coordinator) HandleTriggerEvent(event string, payload map[string]any) {
	co.correlator.HandleTriggerEvent(event, payload)
}

// HandleBroadcast implements transport.BroadcastConsumer. Generic broadcasts
// carry { type, payload, timestamp, id } envelopes.
func (co *Coordinator) HandleBroadcast(payload map[string]any) {
	var envelope types.Broadcast
	if err := decodeMap(payload, &envelope); err != nil {
		logger.Warnf("session: malformed broadcast: %v", err)
		return
	}

	switch envelope.Type {
	case "message":
		var msg types.Message
		if err := decodeMap(envelope.Payload, &msg); err != nil || msg.SessionID == "" || msg.ID == "" {
			logger.Warnf("session: malformed broadcast message: %v", err)
			return
		}
		// Broadcasts for sessions that were never loaded are dropped; the
		// message will arrive through hydration if the session is opened.
		co.store.AppendMessages(msg.SessionID, msg)
	case "session-update":
		sessionID, _ := envelope.Payload["sessionId"].(string)
		if sessionID == "" {
			return
		}
		var patch types.SessionPatch
		if err := decodeMap(envelope.Payload, &patch); err != nil {
			logger.Warnf("session: malformed session-update: %v", err)
			return
		}
		co.store.ApplyUpdate(sessionID, patch)
	default:
		logger.Tracef("session: ignoring broadcast type %q", envelope.Type)
	}
}

// timelineAdapter exposes the narrow Timeline surface the correlator needs,
// keeping the correlator decoupled from the full coordinator.
type timelineAdapter struct {
	co *Coordinator
}

var _ trigger.Timeline = timelineAdapter{}

func (t timelineAdapter) ActiveSessionID() string { return t.co.store.ActiveID() }

func (t timelineAdapter) HasSession(id string) bool { return t.co.store.HasSession(id) }

func (t timelineAdapter) AppendSystemMessage(sessionID, content string, metadata map[string]any) {
	t.co.store.AppendMessages(sessionID, types.Message{
		ID:        t.co.newID(),
		SessionID: sessionID,
		Role:      types.RoleSystem,
		Content:   content,
		CreatedAt: t.co.clock.Now().UnixMilli(),
		Metadata:  metadata,
	})
}

// decodeMap converts a generic JSON-shaped map into a typed struct.
func decodeMap(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
