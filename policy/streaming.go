package policy

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/types"
)

// DefaultMaxBufferBytes bounds buffered payload when StreamingConfig leaves it zero.
const DefaultMaxBufferBytes = 16 << 20

// StreamingConfig configures a StreamingPolicy. At least one of
// FlushCount and FlushInterval must be set.
type StreamingConfig struct {
	// FlushCount flushes once this many records are buffered.
	FlushCount int
	// FlushInterval flushes on a timer whenever the buffer is non-empty.
	FlushInterval time.Duration
	// MaxBufferBytes flushes synchronously on the ingesting goroutine once
	// reached (default DefaultMaxBufferBytes).
	MaxBufferBytes int64
	Logger         *log.Logger
}

// FlushTrigger names the reason a flush ran.
type FlushTrigger string

const (
	FlushTriggerCount       FlushTrigger = "count"
	FlushTriggerInterval    FlushTrigger = "interval"
	FlushTriggerBufferFull  FlushTrigger = "buffer_full"
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when neither flush trigger is configured.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// batch is buffered work in arrival order.
type batch struct {
	records []*types.Record
	chunks  []*types.PayloadChunk
	bytes   int64
}

func (b *batch) empty() bool { return len(b.records) == 0 && len(b.chunks) == 0 }

// prepend puts an unwritten older batch back in front of b.
func (b *batch) prepend(records []*types.Record, chunks []*types.PayloadChunk) {
	for _, r := range records {
		b.bytes += recordSize(r)
	}
	for _, c := range chunks {
		b.bytes += int64(len(c.Data))
	}
	b.records = append(records, b.records...)
	b.chunks = append(chunks, b.chunks...)
}

// StreamingPolicy batches records and chunks and writes them when a
// trigger fires. Chunks are written before records in every flush; since
// a binary record's chunks are ingested first, they can never land after
// the record. A failed write leaves its part of the batch buffered for
// the next trigger.
//
// mu guards the buffer and counters. flushMu serializes sink writes;
// ingestion continues into a fresh buffer while a flush is in flight.
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu      sync.Mutex
	buf     batch
	stats   *statsRecorder
	flushes map[FlushTrigger]int64
	stopped bool

	flushMu sync.Mutex
	stopCh  chan struct{}
}

// NewStreamingPolicy validates config and starts the interval timer if
// one is configured.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}
	if config.MaxBufferBytes <= 0 {
		config.MaxBufferBytes = DefaultMaxBufferBytes
	}

	p := &StreamingPolicy{
		sink:    sink,
		config:  config,
		logger:  config.Logger,
		stats:   newStatsRecorder(),
		flushes: make(map[FlushTrigger]int64, 4),
		stopCh:  make(chan struct{}),
	}
	if config.FlushInterval > 0 {
		go p.intervalLoop()
	}
	return p, nil
}

// IngestRecord buffers record and flushes if the count or size limit is hit.
func (p *StreamingPolicy) IngestRecord(ctx context.Context, record *types.Record) error {
	p.mu.Lock()
	p.stats.incTotalRecordsLocked()
	p.buf.records = append(p.buf.records, record)
	p.buf.bytes += recordSize(record)
	p.stats.setBufferSizeLocked(p.buf.bytes)

	var trigger FlushTrigger
	switch {
	case p.buf.bytes >= p.config.MaxBufferBytes:
		trigger = FlushTriggerBufferFull
	case p.config.FlushCount > 0 && len(p.buf.records) >= p.config.FlushCount:
		trigger = FlushTriggerCount
	}
	p.mu.Unlock()

	if trigger == "" {
		return nil
	}
	return p.flush(ctx, trigger)
}

// IngestChunk buffers chunk, blocking on a flush once the buffer is full.
func (p *StreamingPolicy) IngestChunk(ctx context.Context, chunk *types.PayloadChunk) error {
	p.mu.Lock()
	p.stats.incTotalChunksLocked()
	p.buf.chunks = append(p.buf.chunks, chunk)
	p.buf.bytes += int64(len(chunk.Data))
	p.stats.setBufferSizeLocked(p.buf.bytes)
	full := p.buf.bytes >= p.config.MaxBufferBytes
	p.mu.Unlock()

	if !full {
		return nil
	}
	return p.flush(ctx, FlushTriggerBufferFull)
}

// Flush writes everything buffered.
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.flush(ctx, FlushTriggerTermination)
}

func (p *StreamingPolicy) flush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if trigger == FlushTriggerBufferFull {
		p.stats.incBlockedLocked()
	}
	p.flushes[trigger]++
	p.stats.incFlushLocked()
	if p.buf.empty() {
		p.mu.Unlock()
		return nil
	}
	pending := p.buf
	p.buf = batch{}
	p.stats.setBufferSizeLocked(0)
	p.mu.Unlock()

	if len(pending.chunks) > 0 {
		if err := p.sink.WriteChunks(ctx, pending.chunks); err != nil {
			p.requeue(pending.records, pending.chunks)
			p.logFailure("chunks", trigger, err)
			return err
		}
		p.persisted(0, len(pending.chunks))
	}
	if len(pending.records) > 0 {
		if err := p.sink.WriteRecords(ctx, pending.records); err != nil {
			p.requeue(pending.records, nil)
			p.logFailure("records", trigger, err)
			return err
		}
		p.persisted(len(pending.records), 0)
	}

	if p.logger != nil {
		p.logger.Debug("streaming flush", map[string]any{
			"policy":  "streaming",
			"trigger": string(trigger),
			"records": len(pending.records),
			"chunks":  len(pending.chunks),
		})
	}
	return nil
}

func (p *StreamingPolicy) requeue(records []*types.Record, chunks []*types.PayloadChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.incErrorsLocked()
	p.buf.prepend(records, chunks)
	p.stats.setBufferSizeLocked(p.buf.bytes)
}

func (p *StreamingPolicy) persisted(records, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.incRecordsPersistedLocked(int64(records))
	p.stats.incChunksPersistedLocked(int64(chunks))
}

func (p *StreamingPolicy) logFailure(part string, trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"policy":      "streaming",
		"buffer_type": part,
		"trigger":     string(trigger),
		"error":       err.Error(),
	})
}

// Close stops the timer, flushes and closes the sink. It is safe to call
// more than once.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	return errors.Join(p.Flush(context.Background()), p.sink.Close())
}

// Stats returns a consistent snapshot.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.buf.bytes)
}

// FlushTriggerStats returns how many flushes each trigger caused.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.flushes)
}

func (p *StreamingPolicy) intervalLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			idle := p.buf.empty()
			p.mu.Unlock()
			if !idle {
				// Failures are logged and the data stays buffered.
				_ = p.flush(context.Background(), FlushTriggerInterval)
			}
		}
	}
}

var _ Policy = (*StreamingPolicy)(nil)
