// Package gateway is the thin facade over the durable session service: a
// REST-like CRUD API used to hydrate the session store and to persist
// user-authored messages. Failures surface as typed errors; raw transport
// errors never cross this boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/chorus-dev/chorus/pkg/types"
)

// ErrNotFound is returned when the requested session does not exist.
var ErrNotFound = errors.New("gateway: not found")

// APIError is a non-2xx response from the durable session service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: request failed with status %d: %s", e.Status, e.Body)
}

// Client is the durable session gateway surface consumed by the core.
type Client interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	GetSession(ctx context.Context, id string) (types.Session, error)
	CreateSession(ctx context.Context, agentType, modelID string) (types.Session, error)
	UpdateSession(ctx context.Context, id string, patch types.SessionPatch) (types.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string) ([]types.Message, error)
	PostMessage(ctx context.Context, sessionID, content string, metadata map[string]any) (types.Message, error)
}

// HTTPClient talks to the backend REST API.
type HTTPClient struct {
	rc *resty.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client. The token is opaque; it is attached
// as a bearer credential when non-empty.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &HTTPClient{rc: rc}
}

// Close releases the underlying HTTP resources.
func (c *HTTPClient) Close() error {
	return c.rc.Close()
}

type sessionEnvelope struct {
	Session types.Session `json:"session"`
}

type sessionsEnvelope struct {
	Sessions []types.Session `json:"sessions"`
}

type messageEnvelope struct {
	Message types.Message `json:"message"`
}

type messagesEnvelope struct {
	Messages []types.Message `json:"messages"`
}

// ListSessions implements Client.
func (c *HTTPClient) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out sessionsEnvelope
	res, err := c.rc.R().SetContext(ctx).SetResult(&out).Get("/v1/sessions")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession implements Client.
func (c *HTTPClient) GetSession(ctx context.Context, id string) (types.Session, error) {
	var out sessionEnvelope
	res, err := c.rc.R().SetContext(ctx).SetResult(&out).
		Get("/v1/sessions/" + id)
	if err := checkResponse(res, err); err != nil {
		return types.Session{}, err
	}
	return out.Session, nil
}

// CreateSession implements Client.
func (c *HTTPClient) CreateSession(ctx context.Context, agentType, modelID string) (types.Session, error) {
	body := map[string]any{"agentType": agentType}
	if modelID != "" {
		body["modelId"] = modelID
	}
	var out sessionEnvelope
	res, err := c.rc.R().SetContext(ctx).SetBody(body).SetResult(&out).
		Post("/v1/sessions")
	if err := checkResponse(res, err); err != nil {
		return types.Session{}, err
	}
	return out.Session, nil
}

// UpdateSession implements Client.
func (c *HTTPClient) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) (types.Session, error) {
	var out sessionEnvelope
	res, err := c.rc.R().SetContext(ctx).SetBody(patch).SetResult(&out).
		Patch("/v1/sessions/" + id)
	if err := checkResponse(res, err); err != nil {
		return types.Session{}, err
	}
	return out.Session, nil
}

// DeleteSession implements Client.
func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	res, err := c.rc.R().SetContext(ctx).Delete("/v1/sessions/" + id)
	return checkResponse(res, err)
}

// ListMessages implements Client.
func (c *HTTPClient) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	var out messagesEnvelope
	res, err := c.rc.R().SetContext(ctx).SetResult(&out).
		Get("/v1/sessions/" + sessionID + "/messages")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage implements Client.
func (c *HTTPClient) PostMessage(ctx context.Context, sessionID, content string, metadata map[string]any) (types.Message, error) {
	body := map[string]any{"content": content}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var out messageEnvelope
	res, err := c.rc.R().SetContext(ctx).SetBody(body).SetResult(&out).
		Post("/v1/sessions/" + sessionID + "/messages")
	if err := checkResponse(res, err); err != nil {
		return types.Message{}, err
	}
	return out.Message, nil
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("gateway: request: %w", err)
	}
	if res == nil {
		return fmt.Errorf("gateway: no response")
	}
	if res.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if res.IsError() {
		return &APIError{Status: res.StatusCode(), Body: res.String()}
	}
	return nil
}

// FormatUserError maps gateway errors to a human-readable message suitable
// for a session timeline.
func FormatUserError(op string, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("%s failed: the session no longer exists on the server", op)
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("%s failed: server rejected the request (status %d)", op, apiErr.Status)
		}
		return fmt.Sprintf("%s failed: could not reach the server", op)
	}
}
