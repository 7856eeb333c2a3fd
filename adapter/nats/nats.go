// Package nats publishes session completion events to a NATS subject.
//
// The connection is opened on first publish. A publish is confirmed by a
// flush round trip, so a server that never acknowledges is retried.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/justapithecus/framecap/adapter"
)

// DefaultSubject is the default subject.
const DefaultSubject = "framecap.session.completed"

// DefaultTimeout bounds connecting and each publish round trip.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("nats adapter closed")

// Config configures the NATS adapter.
type Config struct {
	// URL is the server URL (required), e.g. nats://host:4222.
	// A comma-separated list is accepted.
	URL string
	// Subject is the subject to publish to (default: framecap.session.completed).
	Subject string
	// Timeout bounds connecting and each publish round trip (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// Backoff is the delay before the first retry (default adapter.DefaultBackoff).
	Backoff time.Duration
	// Name is the client name reported to the server.
	Name string
}

// Adapter publishes session completion events via NATS.
type Adapter struct {
	config Config

	mu     sync.Mutex
	conn   *natsgo.Conn
	closed bool
}

// New creates a NATS adapter. No connection is made until Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats adapter requires a URL")
	}
	for _, raw := range splitServers(cfg.URL) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("nats adapter: invalid URL %q", raw)
		}
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Name == "" {
		cfg.Name = "framecap"
	}
	return &Adapter{config: cfg}, nil
}

// Publish sends the event as JSON to the configured subject and waits
// for the server to acknowledge it.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}

	attempts, err := adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		conn, err := a.connection()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return adapter.Permanent(err)
			}
			return err
		}
		if err := conn.Publish(a.config.Subject, body); err != nil {
			return err
		}
		flushCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return conn.FlushWithContext(flushCtx)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("nats: context canceled: %w", err)
	default:
		return fmt.Errorf("nats: failed after %d attempts: %w", attempts, err)
	}
}

// connection returns the open connection, dialing if needed.
func (a *Adapter) connection() (*natsgo.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn, nil
	}
	conn, err := natsgo.Connect(a.config.URL,
		natsgo.Name(a.config.Name),
		natsgo.Timeout(a.config.Timeout),
		natsgo.NoReconnect(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	a.conn = conn
	return conn, nil
}

// Close drains and closes the connection, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.conn == nil {
		return nil
	}
	a.conn.Close()
	a.conn = nil
	return nil
}

func splitServers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
