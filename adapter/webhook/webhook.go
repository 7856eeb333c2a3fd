// Package webhook delivers session completion events as JSON HTTP POSTs.
//
// Each request carries the event type and session id as headers so a
// receiver can route or deduplicate without parsing the body. Network
// errors and 5xx responses are retried; any other non-2xx is final.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/framecap/adapter"
	"github.com/justapithecus/framecap/iox"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Headers set on every delivery. User headers cannot override them.
const (
	HeaderEvent   = "X-Framecap-Event"
	HeaderSession = "X-Framecap-Session"
)

// Config configures the webhook adapter.
type Config struct {
	URL     string
	Headers map[string]string
	// Timeout bounds each POST (default 10s).
	Timeout time.Duration
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter posts completion events to one endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// retriable reports whether a delivery failure may succeed on a later attempt.
func retriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// Publish posts event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	attempts, err := adapter.Retry(ctx, a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		err := a.post(ctx, event, body)
		if err != nil && !retriable(err) {
			return adapter.Permanent(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if adapter.IsPermanent(err) {
		return fmt.Errorf("webhook: session %s rejected: %w", event.SessionID, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("webhook: context canceled: %w", err)
	}
	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, err)
}

func (a *Adapter) post(ctx context.Context, event *adapter.SessionCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.EventType)
	req.Header.Set(HeaderSession, event.SessionID)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
