package lode

import (
	"context"

	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/types"
)

// InstrumentedSink wraps a policy.Sink and counts each write call as a
// lode_write_success or lode_write_failure on the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteRecords delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteRecords(ctx context.Context, records []*types.Record) error {
	return s.observe(s.inner.WriteRecords(ctx, records))
}

// WriteChunks delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error {
	return s.observe(s.inner.WriteChunks(ctx, chunks))
}

func (s *InstrumentedSink) observe(err error) error {
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements policy.Sink.
var _ policy.Sink = (*InstrumentedSink)(nil)
