package session

import (
	"errors"
	"fmt"

	"github.com/justapithecus/framecap/types"
)

// ErrorKind classifies session-ending errors for outcome determination.
type ErrorKind int

const (
	// ErrorTransport is a dial, read or write failure on the connection.
	ErrorTransport ErrorKind = iota
	// ErrorStorage is a policy or sink failure beyond the tolerated count.
	ErrorStorage
	// ErrorProtocol is a fatal framing error (noise or length ceiling exceeded).
	ErrorProtocol
	// ErrorDrainTimeout is a drain that did not reach EOF before its deadline.
	ErrorDrainTimeout
	// ErrorCanceled is context cancellation.
	ErrorCanceled
)

// String returns the kind's log name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorStorage:
		return "storage"
	case ErrorProtocol:
		return "protocol"
	case ErrorDrainTimeout:
		return "drain_timeout"
	case ErrorCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// SessionError is an error that ended a session.
// It carries where in the stream and in the lifecycle it happened.
type SessionError struct {
	Kind ErrorKind
	// Phase is the controller phase when the error surfaced.
	Phase types.Phase
	// Offset is the stream offset consumed by the framer at the time.
	Offset int64
	// RecordID is the record involved, if any.
	RecordID int64
	// Records is the cumulative record count at the time.
	Records int64
	Err     error
}

func (e *SessionError) Error() string {
	msg := fmt.Sprintf("session %s error", e.Kind)
	if e.Phase != "" {
		msg += " during " + string(e.Phase)
	}
	msg += fmt.Sprintf(" at offset %d", e.Offset)
	if e.RecordID > 0 {
		msg += fmt.Sprintf(" (record %d)", e.RecordID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsTransportError returns true if err ended the session on the transport.
func IsTransportError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorTransport
}

// IsStorageError returns true if err ended the session on storage.
func IsStorageError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorStorage
}

// IsProtocolError returns true if err is a fatal framing error.
func IsProtocolError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorProtocol
}

// IsDrainTimeout returns true if the drain deadline expired.
func IsDrainTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorDrainTimeout
}

// IsCanceledError returns true if the session was canceled.
func IsCanceledError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorCanceled
}
