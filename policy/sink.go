package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/framecap/types"
)

// Sink abstracts persistence for policies.
// Implementations may write to storage, forward to a queue, or stub for testing.
//
// Methods are batch-oriented to support both strict (batch of 1) and buffered policies.
type Sink interface {
	// WriteRecords persists a batch of records.
	// Must preserve ordering within the batch.
	WriteRecords(ctx context.Context, records []*types.Record) error

	// WriteChunks persists a batch of binary payload chunks.
	// Must preserve ordering within the batch.
	WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error

	// Close releases any resources held by the sink.
	Close() error
}

// WriteOp represents a write operation for ordering verification.
type WriteOp struct {
	Type    string // "records" or "chunks"
	Records []*types.Record
	Chunks  []*types.PayloadChunk
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// RecordsWritten is the total count of records written.
	RecordsWritten int64
	// ChunksWritten is the total count of chunks written.
	ChunksWritten int64
	// ChunkBytes is the total payload bytes across written chunks.
	ChunkBytes int64
	// RecordBatches is the number of WriteRecords calls.
	RecordBatches int64
	// ChunkBatches is the number of WriteChunks calls.
	ChunkBatches int64
	// Closed indicates whether Close was called.
	Closed bool

	// WrittenRecords stores all written records for inspection.
	WrittenRecords []*types.Record
	// WrittenChunks stores all written chunks for inspection.
	// Left empty when DiscardChunks is set.
	WrittenChunks []*types.PayloadChunk

	// WriteOrder tracks the order of write operations for ordering tests.
	WriteOrder []WriteOp

	// ErrorOnWrite, if non-nil, is returned by WriteRecords/WriteChunks.
	ErrorOnWrite error

	// DiscardChunks counts chunks without retaining them.
	DiscardChunks bool

	// Gate, if non-nil, makes every write wait for a receive before completing.
	// Tests use it to simulate a slow store.
	Gate chan struct{}
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{
		WrittenRecords: make([]*types.Record, 0),
		WrittenChunks:  make([]*types.PayloadChunk, 0),
		WriteOrder:     make([]WriteOp, 0),
	}
}

// wait blocks on Gate if set.
func (s *StubSink) wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.Gate
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteRecords records the batch without persisting.
func (s *StubSink) WriteRecords(ctx context.Context, records []*types.Record) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.RecordBatches++
	s.RecordsWritten += int64(len(records))
	s.WrittenRecords = append(s.WrittenRecords, records...)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Type: "records", Records: records})

	return nil
}

// WriteChunks records the batch without persisting.
func (s *StubSink) WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.ChunkBatches++
	s.ChunksWritten += int64(len(chunks))
	for _, c := range chunks {
		s.ChunkBytes += int64(len(c.Data))
	}
	if !s.DiscardChunks {
		s.WrittenChunks = append(s.WrittenChunks, chunks...)
		s.WriteOrder = append(s.WriteOrder, WriteOp{Type: "chunks", Chunks: chunks})
	}

	return nil
}

// SetError changes ErrorOnWrite under the sink lock.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Records returns a copy of the written records.
func (s *StubSink) Records() []*types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Record(nil), s.WrittenRecords...)
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		RecordsWritten: s.RecordsWritten,
		ChunksWritten:  s.ChunksWritten,
		ChunkBytes:     s.ChunkBytes,
		RecordBatches:  s.RecordBatches,
		ChunkBatches:   s.ChunkBatches,
		Closed:         s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	RecordsWritten int64
	ChunksWritten  int64
	ChunkBytes     int64
	RecordBatches  int64
	ChunkBatches   int64
	Closed         bool
}
