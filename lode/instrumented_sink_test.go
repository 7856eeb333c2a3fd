package lode

import (
	"context"
	"errors"
	"testing"

	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/types"
)

func TestInstrumentedSink_Success(t *testing.T) {
	inner := policy.NewStubSink()
	collector := metrics.NewCollector("strict", "fs", "sess-001", "feed-a")
	sink := NewInstrumentedSink(inner, collector)

	ctx := context.Background()
	if err := sink.WriteRecords(ctx, []*types.Record{textRecord(1, "hello")}); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if err := sink.WriteChunks(ctx, []*types.PayloadChunk{payloadChunk(2, 1, 0, "x", true)}); err != nil {
		t.Fatalf("WriteChunks failed: %v", err)
	}

	snap := collector.Snapshot()
	if snap.LodeWriteSuccess != 2 || snap.LodeWriteFailure != 0 {
		t.Errorf("success/failure = %d/%d, want 2/0", snap.LodeWriteSuccess, snap.LodeWriteFailure)
	}
	if inner.Stats().RecordsWritten != 1 || inner.Stats().ChunksWritten != 1 {
		t.Error("writes should reach the inner sink")
	}
}

func TestInstrumentedSink_Failure(t *testing.T) {
	inner := policy.NewStubSink()
	writeErr := errors.New("disk full")
	inner.SetError(writeErr)
	collector := metrics.NewCollector("strict", "fs", "sess-001", "feed-a")
	sink := NewInstrumentedSink(inner, collector)

	ctx := context.Background()
	if err := sink.WriteRecords(ctx, []*types.Record{textRecord(1, "hello")}); !errors.Is(err, writeErr) {
		t.Errorf("WriteRecords error = %v, want %v", err, writeErr)
	}
	if err := sink.WriteChunks(ctx, []*types.PayloadChunk{payloadChunk(2, 1, 0, "x", true)}); !errors.Is(err, writeErr) {
		t.Errorf("WriteChunks error = %v, want %v", err, writeErr)
	}

	snap := collector.Snapshot()
	if snap.LodeWriteSuccess != 0 || snap.LodeWriteFailure != 2 {
		t.Errorf("success/failure = %d/%d, want 0/2", snap.LodeWriteSuccess, snap.LodeWriteFailure)
	}
}

func TestInstrumentedSink_NilCollector(t *testing.T) {
	sink := NewInstrumentedSink(policy.NewStubSink(), nil)
	if err := sink.WriteRecords(context.Background(), []*types.Record{textRecord(1, "hello")}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstrumentedSink_CloseDelegates(t *testing.T) {
	inner := policy.NewStubSink()
	sink := NewInstrumentedSink(inner, metrics.NewCollector("strict", "fs", "s", "src"))

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !inner.Stats().Closed {
		t.Error("inner sink should be closed")
	}
}
