// Package policy defines how framed records reach storage.
package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/framecap/types"
)

// Policy controls buffering and persistence of framed output.
//
// Invariants shared by every policy:
//   - Nothing is dropped: every record and chunk is persisted or the call fails
//   - Call order is persisted order; a binary record's chunks precede it
//   - A full buffer blocks the caller instead of discarding data
//   - Sink errors are surfaced, never retried here
type Policy interface {
	// IngestRecord handles a completed text or binary record.
	IngestRecord(ctx context.Context, record *types.Record) error

	// IngestChunk handles one slice of an in-progress binary payload.
	IngestChunk(ctx context.Context, chunk *types.PayloadChunk) error

	// Flush persists anything buffered.
	// Called at session end and before the session summary is written.
	Flush(ctx context.Context) error

	// Close releases policy resources and closes the sink.
	Close() error

	// Stats returns a consistent point-in-time snapshot.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalRecords is the number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records the sink accepted.
	RecordsPersisted int64
	// TotalChunks is the number of payload chunks received.
	TotalChunks int64
	// ChunksPersisted is the number of chunks the sink accepted.
	ChunksPersisted int64
	// BufferSize is the current buffered payload size in bytes.
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Blocked is the number of ingest calls that waited on a full buffer or queue.
	Blocked int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods (incTotalRecords, snapshot, etc.)
//   - StreamingPolicy and PipelinedPolicy use the Locked methods only while
//     holding their own mu, keeping buffer state and counters atomic.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotalRecords() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incRecordsPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incTotalChunks() {
	r.mu.Lock()
	r.stats.TotalChunks++
	r.mu.Unlock()
}

func (r *statsRecorder) incChunksPersisted(n int64) {
	r.mu.Lock()
	r.stats.ChunksPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods ---
// Caller must hold the owning policy's mu.

func (r *statsRecorder) incTotalRecordsLocked() {
	r.stats.TotalRecords++
}

func (r *statsRecorder) incRecordsPersistedLocked(n int64) {
	r.stats.RecordsPersisted += n
}

func (r *statsRecorder) incTotalChunksLocked() {
	r.stats.TotalChunks++
}

func (r *statsRecorder) incChunksPersistedLocked(n int64) {
	r.stats.ChunksPersisted += n
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) incBlockedLocked() {
	r.stats.Blocked++
}

func (r *statsRecorder) setBufferSizeLocked(bytes int64) {
	r.stats.BufferSize = bytes
}

// snapshotLocked returns an atomic snapshot of stats with the given bufferSize.
func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	return s
}

// recordSize estimates the buffered footprint of a record.
func recordSize(record *types.Record) int64 {
	return 128 + int64(len(record.Payload))
}
