package lode

import (
	"time"

	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/types"
)

// RecordKind discriminator values. Each is also the record_kind partition value.
const (
	RecordKindText        = "text"
	RecordKindBinary      = "binary"
	RecordKindBinaryChunk = "binary_chunk"
	RecordKindMetrics     = "metrics"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"source", "day", "session_id", "record_kind"}

// toTextRecordMap converts a text record to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toTextRecordMap(r *types.Record, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":      RecordKindText,
		"contract_version": types.ContractVersion,
		"record_id":        r.ID,
		"offset":           r.Offset,
		"payload":          string(r.Payload),
		"size":             len(r.Payload),
		"received_at":      formatTime(r.ReceivedAt),
		"policy":           cfg.Policy,
		"source":           cfg.Source,
		"day":              cfg.Day,
		"session_id":       cfg.SessionID,
	}
}

// toBinaryRecordMap converts a completed binary record to its commit row.
// The payload itself lives in the binary_chunk partition.
func toBinaryRecordMap(r *types.Record, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":      RecordKindBinary,
		"contract_version": types.ContractVersion,
		"record_id":        r.ID,
		"offset":           r.Offset,
		"tag":              int(r.Tag),
		"declared_length":  r.DeclaredLength,
		"digest":           r.Digest,
		"digest_algo":      "blake3",
		"received_at":      formatTime(r.ReceivedAt),
		"policy":           cfg.Policy,
		"source":           cfg.Source,
		"day":              cfg.Day,
		"session_id":       cfg.SessionID,
	}
}

// toChunkRecordMap converts a payload chunk to a map for storage.
// Data is base64 encoded by the JSONL codec.
func toChunkRecordMap(c *types.PayloadChunk, cfg Config) map[string]any {
	return map[string]any{
		"record_kind": RecordKindBinaryChunk,
		"record_id":   c.RecordID,
		"seq":         c.Seq,
		"is_last":     c.IsLast,
		"offset":      c.Offset,
		"length":      len(c.Data),
		"data":        c.Data,
		"source":      cfg.Source,
		"day":         cfg.Day,
		"session_id":  cfg.SessionID,
	}
}

// toMetricsRecordMap converts a metrics snapshot to a map for storage.
func toMetricsRecordMap(s metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	errorsByKind := make(map[string]any, len(s.ErrorsByKind))
	for k, v := range s.ErrorsByKind {
		errorsByKind[k] = v
	}
	return map[string]any{
		"record_kind":      RecordKindMetrics,
		"contract_version": types.ContractVersion,
		"ts":               formatTime(completedAt),

		"sessions_started_total":   s.SessionsStarted,
		"sessions_completed_total": s.SessionsCompleted,
		"sessions_failed_total":    s.SessionsFailed,
		"drain_timeouts_total":     s.DrainTimeouts,

		"text_records_total":    s.TextRecords,
		"binary_records_total":  s.BinaryRecords,
		"payload_bytes_total":   s.PayloadBytes,
		"framing_errors_total":  s.FramingErrors,
		"errors_by_kind":        errorsByKind,
		"overflow_errors_total": s.OverflowErrors,

		"bytes_received_total":   s.BytesReceived,
		"read_stalls_total":      s.ReadStalls,
		"transport_errors_total": s.TransportErrors,

		"records_received_total":  s.RecordsReceived,
		"records_persisted_total": s.RecordsPersisted,
		"chunks_persisted_total":  s.ChunksPersisted,

		"lode_write_success_total": s.LodeWriteSuccess,
		"lode_write_failure_total": s.LodeWriteFailure,

		"policy":          s.Policy,
		"storage_backend": s.StorageBackend,
		"source":          cfg.Source,
		"day":             cfg.Day,
		"session_id":      cfg.SessionID,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
