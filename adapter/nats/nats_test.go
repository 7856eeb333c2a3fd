package nats

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/justapithecus/framecap/adapter"
)

func testEvent() *adapter.SessionCompletedEvent {
	return &adapter.SessionCompletedEvent{
		ContractVersion: "0.1.0",
		EventType:       adapter.EventTypeSessionCompleted,
		SessionID:       "sess-001",
		Source:          "feed",
		Outcome:         "completed",
	}
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{URL: "nats://ok:4222, ://bad"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNew_RejectsNegativeRetries(t *testing.T) {
	if _, err := New(Config{URL: "nats://localhost:4222", Retries: -1}); err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	a, err := New(Config{URL: "nats://localhost:4222,nats://localhost:4223"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.config.Subject != DefaultSubject {
		t.Errorf("subject = %q", a.config.Subject)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v", a.config.Timeout)
	}
	if a.conn != nil {
		t.Error("New must not connect")
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	a, err := New(Config{
		URL:     "nats://" + closedAddr(t),
		Retries: 2,
		Timeout: 200 * time.Millisecond,
		Backoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	err = a.Publish(t.Context(), testEvent())
	if err == nil {
		t.Fatal("expected error with no server")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "nats://" + closedAddr(t), Retries: 10, Backoff: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	err = a.Publish(ctx, testEvent())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	a, err := New(Config{URL: "nats://localhost:4222", Retries: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
