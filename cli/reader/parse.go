package reader

import (
	"errors"
	"fmt"
)

// ParseMetricsRecord maps a stored metrics row onto a MetricsSnapshot.
// Counters arrive as int64 from in-memory rows and float64 after JSONL.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts: toString(record["ts"]),

		SessionsStarted:   toInt64(record["sessions_started_total"]),
		SessionsCompleted: toInt64(record["sessions_completed_total"]),
		SessionsFailed:    toInt64(record["sessions_failed_total"]),
		DrainTimeouts:     toInt64(record["drain_timeouts_total"]),

		TextRecords:    toInt64(record["text_records_total"]),
		BinaryRecords:  toInt64(record["binary_records_total"]),
		PayloadBytes:   toInt64(record["payload_bytes_total"]),
		FramingErrors:  toInt64(record["framing_errors_total"]),
		ErrorsByKind:   parseCountMap(record["errors_by_kind"]),
		OverflowErrors: toInt64(record["overflow_errors_total"]),

		BytesReceived:   toInt64(record["bytes_received_total"]),
		ReadStalls:      toInt64(record["read_stalls_total"]),
		TransportErrors: toInt64(record["transport_errors_total"]),

		RecordsReceived:  toInt64(record["records_received_total"]),
		RecordsPersisted: toInt64(record["records_persisted_total"]),
		ChunksPersisted:  toInt64(record["chunks_persisted_total"]),

		LodeWriteSuccess: toInt64(record["lode_write_success_total"]),
		LodeWriteFailure: toInt64(record["lode_write_failure_total"]),

		Policy:         toString(record["policy"]),
		StorageBackend: toString(record["storage_backend"]),
		SessionID:      toString(record["session_id"]),
		Source:         toString(record["source"]),
		Day:            toString(record["day"]),
	}

	// The write path always sets these, so a blank one means the row is
	// malformed or was not written by framecap.
	for _, req := range [...]struct{ key, val string }{
		{"ts", snap.Ts},
		{"session_id", snap.SessionID},
		{"policy", snap.Policy},
		{"storage_backend", snap.StorageBackend},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("metrics record missing required field: %s", req.key)
		}
	}

	return snap, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseCountMap reads errors_by_kind in either representation.
func parseCountMap(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
