package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/justapithecus/framecap/lode"
	"github.com/justapithecus/framecap/types"
)

// SummaryFilename is the sidecar written next to a session's partitions.
const SummaryFilename = "session.json"

// Summary is the persisted description of a finished session.
type Summary struct {
	ContractVersion string           `json:"contract_version"`
	SessionID       string           `json:"session_id"`
	Source          string           `json:"source"`
	Remote          string           `json:"remote,omitempty"`
	Outcome         *Outcome         `json:"outcome"`
	StartedAt       string           `json:"started_at"`
	DurationMs      int64            `json:"duration_ms"`
	StatusSent      bool             `json:"status_sent"`
	Statistics      types.Statistics `json:"statistics"`
	RecordsStored   int64            `json:"records_persisted"`
	ChunksStored    int64            `json:"chunks_persisted"`
}

// NewSummary builds the summary of a result.
func NewSummary(r *Result) Summary {
	s := Summary{
		ContractVersion: types.ContractVersion,
		Outcome:         r.Outcome,
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:      r.Duration.Milliseconds(),
		StatusSent:      r.StatusSent,
		Statistics:      r.Statistics,
		RecordsStored:   r.PolicyStats.RecordsPersisted,
		ChunksStored:    r.PolicyStats.ChunksPersisted,
	}
	if r.Meta != nil {
		s.SessionID = r.Meta.SessionID
		s.Source = r.Meta.Source
		s.Remote = r.Meta.Remote
	}
	return s
}

// WriteSummary persists the result summary as a sidecar file.
func WriteSummary(ctx context.Context, fw lode.FileWriter, r *Result) error {
	data, err := json.MarshalIndent(NewSummary(r), "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return fw.PutFile(ctx, SummaryFilename, "application/json", data)
}
