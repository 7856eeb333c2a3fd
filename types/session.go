package types

import (
	"errors"
	"fmt"
)

// SessionMeta identifies one collection session.
// Every log line and persisted record carries these fields.
type SessionMeta struct {
	// SessionID is the globally unique session identifier.
	SessionID string
	// Source is the partition key naming the remote feed.
	Source string
	// Remote is the dialed address, informational only.
	Remote string
}

// Validate checks that the identity fields required for partitioning are present.
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if m.Source == "" {
		return errors.New("source must be non-empty")
	}
	return nil
}

// Phase is the session controller lifecycle state.
type Phase string

const (
	PhaseDisconnected   Phase = "disconnected"
	PhaseConnecting     Phase = "connecting"
	PhaseAuthenticating Phase = "authenticating"
	PhaseCollecting     Phase = "collecting"
	PhaseStopping       Phase = "stopping"
	PhaseDraining       Phase = "draining"
)

// IsActive reports whether the phase holds an open connection.
func (p Phase) IsActive() bool {
	switch p {
	case PhaseConnecting, PhaseAuthenticating, PhaseCollecting, PhaseStopping, PhaseDraining:
		return true
	default:
		return false
	}
}

// Statistics is a point-in-time view of a session's counters.
type Statistics struct {
	TotalRecords  int64 `json:"total_records"`
	TextRecords   int64 `json:"text_records"`
	BinaryRecords int64 `json:"binary_records"`
	FailedRecords int64 `json:"failed_records"`
	FramingErrors int64 `json:"framing_errors"`
	BytesReceived int64 `json:"bytes_received"`
	PayloadBytes  int64 `json:"payload_bytes"`
	PendingBytes  int64 `json:"pending_bytes"`
	ReadStalls    int64 `json:"read_stalls"`
	Phase         Phase `json:"phase"`
	Target        int64 `json:"target"`
	StopRequested bool  `json:"stop_requested"`
}

// String renders a compact one-line summary.
func (s Statistics) String() string {
	return fmt.Sprintf("phase=%s records=%d text=%d binary=%d failed=%d framing_errors=%d pending=%d",
		s.Phase, s.TotalRecords, s.TextRecords, s.BinaryRecords, s.FailedRecords, s.FramingErrors, s.PendingBytes)
}
