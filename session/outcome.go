package session

import (
	"fmt"
)

// OutcomeStatus is the terminal classification of a session.
type OutcomeStatus string

const (
	// OutcomeCompleted means the stop command was sent (or no target was
	// set) and the peer closed the stream within the drain deadline.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeIncomplete means the peer closed before the target was reached.
	OutcomeIncomplete OutcomeStatus = "incomplete"
	// OutcomeDrainIncomplete means the drain deadline expired before EOF.
	OutcomeDrainIncomplete OutcomeStatus = "drain_incomplete"
	// OutcomeCanceled means the session context was canceled.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeTransportError means the connection failed.
	OutcomeTransportError OutcomeStatus = "transport_error"
	// OutcomeStorageFailure means persistence failed beyond tolerance.
	OutcomeStorageFailure OutcomeStatus = "storage_failure"
	// OutcomeProtocolOverflow means a fatal framing error aborted the stream.
	OutcomeProtocolOverflow OutcomeStatus = "protocol_overflow"
)

// Process exit codes.
const (
	ExitCodeCompleted    = 0
	ExitCodeIncomplete   = 1 // peer closed early, drain timeout or canceled
	ExitCodeTransport    = 2
	ExitCodeStorage      = 3
	ExitCodeProtocol     = 4
	ExitCodeConfigError  = 5
	exitCodeUnclassified = 1
)

// Outcome is the session result classification.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// ExitCode maps the outcome to a process exit code.
func (o *Outcome) ExitCode() int {
	if o == nil {
		return exitCodeUnclassified
	}
	switch o.Status {
	case OutcomeCompleted:
		return ExitCodeCompleted
	case OutcomeIncomplete, OutcomeDrainIncomplete, OutcomeCanceled:
		return ExitCodeIncomplete
	case OutcomeTransportError:
		return ExitCodeTransport
	case OutcomeStorageFailure:
		return ExitCodeStorage
	case OutcomeProtocolOverflow:
		return ExitCodeProtocol
	default:
		return exitCodeUnclassified
	}
}

// IsSuccess reports whether the session completed.
func (o *Outcome) IsSuccess() bool {
	return o != nil && o.Status == OutcomeCompleted
}

// DetermineOutcome classifies a finished session.
//
// The session error, if any, decides the outcome. Without one, a session
// that sent its stop command (or had no target) completed; otherwise the
// peer closed first.
func DetermineOutcome(err error, statusSent bool, target int64, records int64) *Outcome {
	if err != nil {
		switch {
		case IsProtocolError(err):
			return &Outcome{Status: OutcomeProtocolOverflow, Message: fmt.Sprintf("protocol overflow: %v", err)}
		case IsStorageError(err):
			return &Outcome{Status: OutcomeStorageFailure, Message: fmt.Sprintf("storage failure: %v", err)}
		case IsDrainTimeout(err):
			return &Outcome{Status: OutcomeDrainIncomplete, Message: fmt.Sprintf("drain incomplete: %v", err)}
		case IsCanceledError(err):
			return &Outcome{Status: OutcomeCanceled, Message: fmt.Sprintf("session canceled: %v", err)}
		default:
			return &Outcome{Status: OutcomeTransportError, Message: fmt.Sprintf("transport error: %v", err)}
		}
	}

	if statusSent || target <= 0 {
		return &Outcome{
			Status:  OutcomeCompleted,
			Message: fmt.Sprintf("session completed with %d records", records),
		}
	}
	return &Outcome{
		Status:  OutcomeIncomplete,
		Message: fmt.Sprintf("peer closed after %d of %d records", records, target),
	}
}
