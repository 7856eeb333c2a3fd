// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies. Policy counters are absorbed from
// policy.Stats at session end rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	DrainTimeouts     int64

	// Framing
	TextRecords    int64
	BinaryRecords  int64
	PayloadBytes   int64
	FramingErrors  int64
	ErrorsByKind   map[string]int64
	OverflowErrors int64

	// Transport
	BytesReceived   int64
	ReadStalls      int64
	TransportErrors int64

	// Ingestion (absorbed from policy.Stats at session end)
	RecordsReceived  int64
	RecordsPersisted int64
	ChunksPersisted  int64

	// Lode / Storage
	LodeWriteSuccess int64
	LodeWriteFailure int64

	// Dimensions (informational, set at construction)
	Policy         string
	StorageBackend string
	SessionID      string
	Source         string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64
	drainTimeouts     int64

	textRecords    int64
	binaryRecords  int64
	payloadBytes   int64
	framingErrors  int64
	errorsByKind   map[string]int64
	overflowErrors int64

	bytesReceived   int64
	readStalls      int64
	transportErrors int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	// Set once via AbsorbPolicyStats
	recordsReceived  int64
	recordsPersisted int64
	chunksPersisted  int64

	policy         string
	storageBackend string
	sessionID      string
	source         string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, sessionID, source string) *Collector {
	return &Collector{
		errorsByKind:   make(map[string]int64),
		policy:         policy,
		storageBackend: storageBackend,
		sessionID:      sessionID,
		source:         source,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

// IncSessionCompleted records a session that reached its target and drained.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// IncSessionFailed records a session ended by a transport, storage or protocol failure.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsFailed++
	c.mu.Unlock()
}

// IncDrainTimeout records a drain that hit its deadline.
func (c *Collector) IncDrainTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.drainTimeouts++
	c.mu.Unlock()
}

// --- Framing ---

// IncTextRecord records one framed text record.
func (c *Collector) IncTextRecord(payloadBytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.textRecords++
	c.payloadBytes += int64(payloadBytes)
	c.mu.Unlock()
}

// IncBinaryRecord records one completed binary record.
func (c *Collector) IncBinaryRecord(payloadBytes uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.binaryRecords++
	c.payloadBytes += int64(payloadBytes)
	c.mu.Unlock()
}

// IncFramingError records a framing error by kind. Fatal kinds also count as overflows.
func (c *Collector) IncFramingError(kind string, fatal bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framingErrors++
	c.errorsByKind[kind]++
	if fatal {
		c.overflowErrors++
	}
	c.mu.Unlock()
}

// --- Transport ---

// AddBytesReceived records bytes read from the transport.
func (c *Collector) AddBytesReceived(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesReceived += int64(n)
	c.mu.Unlock()
}

// SetReadStalls records the transport's read stall count.
func (c *Collector) SetReadStalls(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.readStalls = n
	c.mu.Unlock()
}

// IncTransportError records a transport failure.
func (c *Collector) IncTransportError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transportErrors++
	c.mu.Unlock()
}

// --- Lode / Storage ---
// Lode counters are per-call, not per-record. Per-record granularity is
// tracked by policy.Stats.

// IncLodeWriteSuccess records a successful Lode write operation (per-call).
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteSuccess++
	c.mu.Unlock()
}

// IncLodeWriteFailure records a failed Lode write operation (per-call).
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteFailure++
	c.mu.Unlock()
}

// --- Ingestion (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies ingestion counters from policy.Stats into the collector.
// Called once at session end with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(received, recordsPersisted, chunksPersisted int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsReceived = received
	c.recordsPersisted = recordsPersisted
	c.chunksPersisted = chunksPersisted
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		byKind[k] = v
	}

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,
		DrainTimeouts:     c.drainTimeouts,

		TextRecords:    c.textRecords,
		BinaryRecords:  c.binaryRecords,
		PayloadBytes:   c.payloadBytes,
		FramingErrors:  c.framingErrors,
		ErrorsByKind:   byKind,
		OverflowErrors: c.overflowErrors,

		BytesReceived:   c.bytesReceived,
		ReadStalls:      c.readStalls,
		TransportErrors: c.transportErrors,

		RecordsReceived:  c.recordsReceived,
		RecordsPersisted: c.recordsPersisted,
		ChunksPersisted:  c.chunksPersisted,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		Policy:         c.policy,
		StorageBackend: c.storageBackend,
		SessionID:      c.sessionID,
		Source:         c.source,
	}
}
