// Package reader turns persisted framecap records back into typed views
// for the read-only CLI commands.
package reader

// MetricsSnapshot is the typed view of a persisted metrics record.
type MetricsSnapshot struct {
	Ts string `json:"ts"`

	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsFailed    int64 `json:"sessions_failed"`
	DrainTimeouts     int64 `json:"drain_timeouts"`

	// Framing
	TextRecords    int64            `json:"text_records"`
	BinaryRecords  int64            `json:"binary_records"`
	PayloadBytes   int64            `json:"payload_bytes"`
	FramingErrors  int64            `json:"framing_errors"`
	ErrorsByKind   map[string]int64 `json:"errors_by_kind,omitempty"`
	OverflowErrors int64            `json:"overflow_errors"`

	// Transport
	BytesReceived   int64 `json:"bytes_received"`
	ReadStalls      int64 `json:"read_stalls"`
	TransportErrors int64 `json:"transport_errors"`

	// Ingestion
	RecordsReceived  int64 `json:"records_received"`
	RecordsPersisted int64 `json:"records_persisted"`
	ChunksPersisted  int64 `json:"chunks_persisted"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`

	// Dimensions
	Policy         string `json:"policy"`
	StorageBackend string `json:"storage_backend"`
	SessionID      string `json:"session_id"`
	Source         string `json:"source"`
	Day            string `json:"day,omitempty"`
}
