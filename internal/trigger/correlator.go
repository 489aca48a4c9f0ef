// Package trigger issues the pipeline trigger operations and correlates
// their asynchronous results back to session timelines.
//
// Correlation is best-effort: a client-generated correlation id is sent with
// every trigger and preferred when the backend echoes it; otherwise results
// are matched to the most recent pending request whose kind name appears in
// the event name.
package trigger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/problems"
	"github.com/chorus-dev/chorus/internal/store"
	"github.com/chorus-dev/chorus/internal/transport"
	"github.com/chorus-dev/chorus/pkg/logger"
	"github.com/chorus-dev/chorus/pkg/types"
)

// Sender is the transport surface the correlator needs.
type Sender interface {
	Send(event string, payload map[string]any) error
	State() transport.ConnectionState
}

// Timeline is the session-store surface the correlator needs: the active
// session, session existence checks, and system-message appends.
type Timeline interface {
	ActiveSessionID() string
	HasSession(id string) bool
	AppendSystemMessage(sessionID, content string, metadata map[string]any)
}

// pendingRequest is the transient client-side record of an issued trigger.
// It is never persisted and never retried automatically.
type pendingRequest struct {
	Kind          Kind
	SessionID     string
	CorrelationID string
	IssuedAt      time.Time
}

// Correlator issues triggers and routes their results.
type Correlator struct {
	sender   Sender
	timeline Timeline
	sink     problems.Sink
	clock    actor.Clock
	timeout  time.Duration
	newID    func() string

	mu      sync.Mutex
	pending []pendingRequest
	// resolved remembers correlation ids of already-handled results so that
	// redeliveries on the at-least-once channel do not append a second result
	// message. Entries are pruned alongside pending expiry.
	resolved map[string]time.Time
}

// New creates a correlator. The problem sink and clock are injected; pass
// problems.Discard and nil for defaults in tests.
func New(sender Sender, timeline Timeline, sink problems.Sink, clock actor.Clock, timeout time.Duration) *Correlator {
	if sink == nil {
		sink = problems.LogSink{}
	}
	if clock == nil {
		clock = actor.RealClock{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Correlator{
		sender:   sender,
		timeline: timeline,
		sink:     sink,
		clock:    clock,
		timeout:  timeout,
		newID:    types.NewLocalID,
		resolved: make(map[string]time.Time),
	}
}

// TestGeneration asks the backend to generate tests for a coder message.
// The product message id is optional requirements context.
func (c *Correlator) TestGeneration(coderMessageID, productMessageID string) error {
	payload := map[string]any{"coderMessageId": coderMessageID}
	if productMessageID != "" {
		payload["productMessageId"] = productMessageID
	}
	return c.issue(KindTestGeneration, payload)
}

// SecurityAnalysis asks the backend to analyze a coder message for security
// problems.
func (c *Correlator) SecurityAnalysis(coderMessageID, productMessageID string) error {
	payload := map[string]any{"coderMessageId": coderMessageID}
	if productMessageID != "" {
		payload["productMessageId"] = productMessageID
	}
	return c.issue(KindSecurityAnalysis, payload)
}

// TestSimulation asks the backend to run the generated tests against the
// original coder output.
func (c *Correlator) TestSimulation(coderMessageID, testMessageID string) error {
	return c.issue(KindTestSimulation, map[string]any{
		"coderMessageId": coderMessageID,
		"testMessageId":  testMessageID,
	})
}

// TestFixValidation asks the backend to validate a fix against a prior test
// result. The original coder message id is optional.
func (c *Correlator) TestFixValidation(fixMessageID, testResultMessageID, originalMessageID string) error {
	payload := map[string]any{
		"fixMessageId":        fixMessageID,
		"testResultMessageId": testResultMessageID,
	}
	if originalMessageID != "" {
		payload["originalMessageId"] = originalMessageID
	}
	return c.issue(KindTestFixValidation, payload)
}

// SecurityFixVerification asks the backend to verify a fix against a prior
// security analysis. The original coder message id is optional.
func (c *Correlator) SecurityFixVerification(fixMessageID, securityResultMessageID, originalMessageID string) error {
	payload := map[string]any{
		"fixMessageId":            fixMessageID,
		"securityResultMessageId": securityResultMessageID,
	}
	if originalMessageID != "" {
		payload["originalMessageId"] = originalMessageID
	}
	return c.issue(KindSecurityFixVerification, payload)
}

// Issue sends a trigger of the given kind with kind-specific payload fields.
// The per-kind methods are the preferred surface; Issue backs generic
// callers such as the CLI.
func (c *Correlator) Issue(kind Kind, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	return c.issue(kind, payload)
}

func (c *Correlator) issue(kind Kind, payload map[string]any) error {
	sessionID := c.timeline.ActiveSessionID()
	if sessionID == "" {
		return store.ErrNoActiveSession
	}
	// Deliberate guard: without it a send on a dead connection would vanish
	// silently and the user would wait on a result that never comes.
	if c.sender.State().State != transport.StateConnected {
		return transport.ErrNotConnected
	}

	correlationID := c.newID()
	payload["sessionId"] = sessionID
	payload["correlationId"] = correlationID

	if err := c.sender.Send(kind.EventName(), payload); err != nil {
		c.sink.Report(problems.Problem{
			Message:  fmt.Sprintf("failed to send %s trigger", kind),
			Severity: problems.SeverityError,
			Source:   "trigger",
			Details:  map[string]any{"kind": string(kind), "sessionId": sessionID, "error": err.Error()},
		})
		return fmt.Errorf("trigger %s: %w", kind, err)
	}

	now := c.clock.Now()
	// Exactly one optimistic marker per issued trigger. It stays in the
	// timeline as a historical record of when the action was requested; the
	// eventual result is appended separately, never merged into it.
	c.timeline.AppendSystemMessage(sessionID, fmt.Sprintf("Starting %s...", kind), map[string]any{
		"trigger":       string(kind),
		"correlationId": correlationID,
		"phase":         "requested",
	})

	c.mu.Lock()
	c.pending = append(c.pending, pendingRequest{
		Kind:          kind,
		SessionID:     sessionID,
		CorrelationID: correlationID,
		IssuedAt:      now,
	})
	c.mu.Unlock()
	return nil
}

// PendingKind returns the most recently issued still-pending trigger kind for
// a session. Callers use it to disable redundant issuance; overlapping
// triggers are a policy violation, not a hard error.
func (c *Correlator) PendingKind(sessionID string) (Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.pending) - 1; i >= 0; i-- {
		if c.pending[i].SessionID == sessionID {
			return c.pending[i].Kind, true
		}
	}
	return "", false
}

// HandleTriggerEvent implements transport.TriggerConsumer: it routes an
// inbound trigger-shaped event to the session that issued it.
func (c *Correlator) HandleTriggerEvent(event string, payload map[string]any) {
	success := strings.HasPrefix(event, "result:")
	if flag, ok := payload["success"].(bool); ok {
		success = success && flag
	}
	correlationID, _ := payload["correlationId"].(string)
	humanMessage, _ := payload["message"].(string)
	data, _ := payload["data"].(map[string]any)

	if correlationID != "" && c.alreadyResolved(correlationID) {
		logger.Tracef("trigger: dropping redelivered %s (correlation %s)", event, correlationID)
		return
	}

	req, found := c.takePending(event, correlationID)

	sessionID := req.SessionID
	kind := req.Kind
	if !found {
		// No pending record (e.g. client restarted). Fall back to the payload
		// session id so late results still land somewhere sensible.
		sessionID, _ = payload["sessionId"].(string)
		kind = kindFromEventName(event)
	}
	if sessionID == "" || !c.timeline.HasSession(sessionID) {
		// A result for a session no longer loaded is a no-op, not an error.
		logger.Tracef("trigger: dropping %s for unknown session %q", event, sessionID)
		return
	}

	meta := map[string]any{
		"trigger": string(kind),
		"phase":   "result",
		"success": success,
	}
	if correlationID != "" {
		meta["correlationId"] = correlationID
	} else if found {
		meta["correlationId"] = req.CorrelationID
	}
	if len(data) > 0 {
		meta["result"] = data
	}

	if success {
		content := fmt.Sprintf("%s completed", kind)
		if humanMessage != "" {
			content = fmt.Sprintf("%s completed: %s", kind, humanMessage)
		}
		c.timeline.AppendSystemMessage(sessionID, content, meta)
		return
	}

	content := fmt.Sprintf("%s failed", kind)
	if humanMessage != "" {
		content = fmt.Sprintf("%s failed: %s", kind, humanMessage)
	}
	c.timeline.AppendSystemMessage(sessionID, content, meta)
	c.sink.Report(problems.Problem{
		Message:  content,
		Severity: problems.SeverityError,
		Source:   "trigger",
		Details: map[string]any{
			"kind":      string(kind),
			"sessionId": sessionID,
			"event":     event,
			"message":   humanMessage,
		},
	})
}

// takePending removes and returns the pending request matching an inbound
// event: by echoed correlation id first, then most recent pending whose kind
// name appears in the event name, then most recent pending overall (bare
// "error:trigger" events carry no kind).
func (c *Correlator) takePending(event, correlationID string) (pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	match := -1
	if correlationID != "" {
		for i, req := range c.pending {
			if req.CorrelationID == correlationID {
				match = i
				break
			}
		}
	}
	if match < 0 {
		for i := len(c.pending) - 1; i >= 0; i-- {
			if strings.Contains(event, string(c.pending[i].Kind)) {
				match = i
				break
			}
		}
	}
	if match < 0 && strings.HasPrefix(event, "error:trigger") && len(c.pending) > 0 {
		match = len(c.pending) - 1
	}
	if match < 0 {
		return pendingRequest{}, false
	}
	req := c.pending[match]
	c.pending = append(c.pending[:match], c.pending[match+1:]...)
	c.resolved[req.CorrelationID] = c.clock.Now()
	return req, true
}

// alreadyResolved reports whether a result with this correlation id has been
// handled before.
func (c *Correlator) alreadyResolved(correlationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resolved[correlationID]
	return ok
}

// ExpirePending fails pending triggers older than the configured timeout.
// The coordinator drives this from a ticker; there is no cancellation of the
// backend work, only a local resolution so the user is not left waiting.
func (c *Correlator) ExpirePending() {
	now := c.clock.Now()

	c.mu.Lock()
	var expired []pendingRequest
	kept := c.pending[:0]
	for _, req := range c.pending {
		if now.Sub(req.IssuedAt) >= c.timeout {
			expired = append(expired, req)
			continue
		}
		kept = append(kept, req)
	}
	c.pending = kept
	for id, at := range c.resolved {
		if now.Sub(at) >= c.timeout {
			delete(c.resolved, id)
		}
	}
	c.mu.Unlock()

	for _, req := range expired {
		content := fmt.Sprintf("%s timed out after %s", req.Kind, c.timeout)
		if c.timeline.HasSession(req.SessionID) {
			c.timeline.AppendSystemMessage(req.SessionID, content, map[string]any{
				"trigger":       string(req.Kind),
				"correlationId": req.CorrelationID,
				"phase":         "timeout",
			})
		}
		c.sink.Report(problems.Problem{
			Message:  content,
			Severity: problems.SeverityWarning,
			Source:   "trigger",
			Details: map[string]any{
				"kind":          string(req.Kind),
				"sessionId":     req.SessionID,
				"correlationId": req.CorrelationID,
			},
		})
	}
}

func kindFromEventName(event string) Kind {
	for _, k := range Kinds() {
		if strings.Contains(event, string(k)) {
			return k
		}
	}
	return Kind("unknown")
}
