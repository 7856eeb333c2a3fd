package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/types"
)

// DefaultQueueSize is the pipelined queue depth when PipelinedConfig leaves it zero.
const DefaultQueueSize = 256

// ErrPipelineBroken wraps the sink error that stopped a PipelinedPolicy.
// Once returned, every later call returns it too.
var ErrPipelineBroken = errors.New("storage pipeline broken")

// ErrPolicyClosed is returned when ingesting into a closed policy.
var ErrPolicyClosed = errors.New("policy closed")

// PipelinedConfig configures a PipelinedPolicy.
type PipelinedConfig struct {
	// QueueSize is the number of records and chunks that may wait for the sink.
	QueueSize int
	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// pipelineOp is one queued unit of work. Exactly one field is set.
type pipelineOp struct {
	record *types.Record
	chunk  *types.PayloadChunk
	flush  chan error
}

func (op pipelineOp) size() int64 {
	switch {
	case op.record != nil:
		return recordSize(op.record)
	case op.chunk != nil:
		return int64(len(op.chunk.Data))
	default:
		return 0
	}
}

// PipelinedPolicy decouples framing from storage latency.
//
// Ingest calls enqueue onto a bounded FIFO drained by a single writer
// goroutine, so persisted order is ingest order. A full queue blocks the
// caller until the writer catches up. The first sink error is sticky:
// queued work behind it is discarded and every later call returns
// ErrPipelineBroken.
type PipelinedPolicy struct {
	sink   Sink
	logger *log.Logger

	queue chan pipelineOp
	done  chan struct{}

	mu     sync.Mutex // guards queued, err, closed and stats
	queued int64
	err    error
	closed bool
	stats  *statsRecorder
}

// NewPipelinedPolicy creates a pipelined policy and starts its writer.
func NewPipelinedPolicy(sink Sink, config PipelinedConfig) *PipelinedPolicy {
	size := config.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	p := &PipelinedPolicy{
		sink:   sink,
		logger: config.Logger,
		queue:  make(chan pipelineOp, size),
		done:   make(chan struct{}),
		stats:  newStatsRecorder(),
	}
	go p.writeLoop()
	return p
}

// IngestRecord enqueues a record.
func (p *PipelinedPolicy) IngestRecord(ctx context.Context, record *types.Record) error {
	return p.enqueue(ctx, pipelineOp{record: record})
}

// IngestChunk enqueues a payload chunk.
func (p *PipelinedPolicy) IngestChunk(ctx context.Context, chunk *types.PayloadChunk) error {
	return p.enqueue(ctx, pipelineOp{chunk: chunk})
}

func (p *PipelinedPolicy) enqueue(ctx context.Context, op pipelineOp) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPolicyClosed
	}
	if op.record != nil {
		p.stats.incTotalRecordsLocked()
	} else if op.chunk != nil {
		p.stats.incTotalChunksLocked()
	}
	p.queued += op.size()
	p.mu.Unlock()

	select {
	case p.queue <- op:
		return nil
	default:
	}

	p.mu.Lock()
	p.stats.incBlockedLocked()
	p.mu.Unlock()

	select {
	case p.queue <- op:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.queued -= op.size()
		p.mu.Unlock()
		return ctx.Err()
	}
}

// writeLoop is the single consumer of queue.
func (p *PipelinedPolicy) writeLoop() {
	defer close(p.done)

	for op := range p.queue {
		if op.flush != nil {
			p.mu.Lock()
			p.stats.incFlushLocked()
			err := p.err
			p.mu.Unlock()
			op.flush <- err
			continue
		}

		p.mu.Lock()
		broken := p.err != nil
		p.mu.Unlock()

		var err error
		if !broken {
			// Writes already in flight are not canceled by the ingest context.
			ctx := context.Background()
			if op.record != nil {
				err = p.sink.WriteRecords(ctx, []*types.Record{op.record})
			} else {
				err = p.sink.WriteChunks(ctx, []*types.PayloadChunk{op.chunk})
			}
		}

		p.mu.Lock()
		p.queued -= op.size()
		switch {
		case broken:
		case err != nil:
			p.stats.incErrorsLocked()
			p.err = fmt.Errorf("%w: %w", ErrPipelineBroken, err)
		case op.record != nil:
			p.stats.incRecordsPersistedLocked(1)
		default:
			p.stats.incChunksPersistedLocked(1)
		}
		p.mu.Unlock()

		if err != nil && p.logger != nil {
			p.logger.Error("pipelined write failed", map[string]any{
				"error":  err.Error(),
				"policy": "pipelined",
			})
		}
	}
}

// Flush waits until everything enqueued before it has been written.
func (p *PipelinedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	reply := make(chan error, 1)
	select {
	case p.queue <- pipelineOp{flush: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, stops the writer and closes the sink.
// Callers must not ingest concurrently with Close.
func (p *PipelinedPolicy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done

	closeErr := p.sink.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return closeErr
}

// Stats returns an atomic snapshot. BufferSize is the queued byte estimate.
func (p *PipelinedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.queued)
}

// Verify PipelinedPolicy implements Policy.
var _ Policy = (*PipelinedPolicy)(nil)
