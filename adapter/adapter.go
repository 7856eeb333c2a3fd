// Package adapter defines the completion notification boundary.
//
// Adapters publish session completion notifications to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"time"
)

// EventTypeSessionCompleted is the event_type of every published event.
const EventTypeSessionCompleted = "session_completed"

// DefaultBackoff is the delay before the first retry. It doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// SessionCompletedEvent is the payload published when a session ends.
type SessionCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_completed"
	SessionID       string `json:"session_id"`
	Source          string `json:"source"`
	Day             string `json:"day"`
	Remote          string `json:"remote,omitempty"`
	Outcome         string `json:"outcome"` // completed, incomplete, transport_error, etc.
	ExitCode        int    `json:"exit_code"`
	StoragePath     string `json:"storage_path"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	StatusSent      bool   `json:"status_sent"`
	TotalRecords    int64  `json:"total_records"`
	TextRecords     int64  `json:"text_records"`
	BinaryRecords   int64  `json:"binary_records"`
	FailedRecords   int64  `json:"failed_records"`
	FramingErrors   int64  `json:"framing_errors"`
	BytesReceived   int64  `json:"bytes_received"`
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes session completion events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls attempt up to 1+retries times, sleeping backoff before the
// first retry and doubling it after each. It stops on success, on a
// Permanent error or when ctx ends. Returns the number of attempts made
// and the last error.
func Retry(ctx context.Context, retries int, backoff time.Duration, attempt func(context.Context) error) (int, error) {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	attempts := 1 + retries
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			delay := time.Duration(1<<uint(i-1)) * backoff
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return i, ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil || IsPermanent(lastErr) {
			return i + 1, lastErr
		}
	}
	return attempts, lastErr
}
