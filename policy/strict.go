package policy

import (
	"context"

	"github.com/justapithecus/framecap/types"
)

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each record/chunk is written immediately
//   - Backpressure: caller blocks on sink latency
//   - Sink errors are returned to the caller
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// IngestRecord writes the record immediately to the sink.
func (p *StrictPolicy) IngestRecord(ctx context.Context, record *types.Record) error {
	p.stats.incTotalRecords()

	// Write immediately (batch of 1)
	if err := p.sink.WriteRecords(ctx, []*types.Record{record}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incRecordsPersisted(1)
	return nil
}

// IngestChunk writes the chunk immediately to the sink.
func (p *StrictPolicy) IngestChunk(ctx context.Context, chunk *types.PayloadChunk) error {
	p.stats.incTotalChunks()

	if err := p.sink.WriteChunks(ctx, []*types.PayloadChunk{chunk}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incChunksPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Verify StrictPolicy implements Policy.
var _ Policy = (*StrictPolicy)(nil)
