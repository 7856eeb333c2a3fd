package policy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/framecap/policy"
)

func TestPipelinedPolicy_PreservesOrder(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{QueueSize: 4})

	_ = pol.IngestRecord(t.Context(), textRecord(1))
	_ = pol.IngestChunk(t.Context(), chunk(2, 1, "ab", false))
	_ = pol.IngestChunk(t.Context(), chunk(2, 2, "c", true))
	_ = pol.IngestRecord(t.Context(), binaryRecord(2, 3))
	_ = pol.IngestRecord(t.Context(), textRecord(3))

	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	want := []string{"records", "chunks", "chunks", "records", "records"}
	if len(sink.WriteOrder) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(sink.WriteOrder))
	}
	for i, op := range sink.WriteOrder {
		if op.Type != want[i] {
			t.Errorf("write %d: got %s, want %s", i, op.Type, want[i])
		}
	}

	stats := pol.Stats()
	if stats.RecordsPersisted != 3 || stats.ChunksPersisted != 2 {
		t.Errorf("RecordsPersisted/ChunksPersisted = %d/%d, want 3/2", stats.RecordsPersisted, stats.ChunksPersisted)
	}
	if stats.BufferSize != 0 {
		t.Errorf("expected empty queue after flush, got %d bytes", stats.BufferSize)
	}
	_ = pol.Close()
}

func TestPipelinedPolicy_FullQueueBlocks(t *testing.T) {
	sink := policy.NewStubSink()
	sink.Gate = make(chan struct{})
	pol := policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{QueueSize: 1})

	// First op is taken by the writer and parks on the gate; second fills the queue.
	_ = pol.IngestRecord(t.Context(), textRecord(1))
	_ = pol.IngestRecord(t.Context(), textRecord(2))

	blocked := make(chan error, 1)
	go func() {
		blocked <- pol.IngestRecord(context.Background(), textRecord(3))
	}()

	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		sink.Gate <- struct{}{}
	}
	if err := <-blocked; err != nil {
		t.Fatalf("blocked ingest failed: %v", err)
	}
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if got := sink.Stats().RecordsWritten; got != 3 {
		t.Errorf("expected 3 records written, got %d", got)
	}
	if pol.Stats().Blocked == 0 {
		t.Error("expected at least one blocked ingest")
	}
	_ = pol.Close()
}

func TestPipelinedPolicy_BlockedIngestHonorsContext(t *testing.T) {
	sink := policy.NewStubSink()
	sink.Gate = make(chan struct{})
	pol := policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{QueueSize: 1})
	t.Cleanup(func() {
		close(sink.Gate)
		_ = pol.Close()
	})

	_ = pol.IngestRecord(t.Context(), textRecord(1))
	_ = pol.IngestRecord(t.Context(), textRecord(2))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	// Keep ingesting until one call has to wait on the full queue.
	var err error
	for i := int64(3); i < 10 && err == nil; i++ {
		err = pol.IngestRecord(ctx, textRecord(i))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPipelinedPolicy_StickyError(t *testing.T) {
	sink := policy.NewStubSink()
	sinkErr := errors.New("bucket gone")
	sink.SetError(sinkErr)
	pol := policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{})

	_ = pol.IngestRecord(t.Context(), textRecord(1))

	err := pol.Flush(t.Context())
	if !errors.Is(err, policy.ErrPipelineBroken) || !errors.Is(err, sinkErr) {
		t.Fatalf("Flush() = %v, want ErrPipelineBroken wrapping sink error", err)
	}
	if err := pol.IngestRecord(t.Context(), textRecord(2)); !errors.Is(err, policy.ErrPipelineBroken) {
		t.Errorf("IngestRecord after failure = %v, want ErrPipelineBroken", err)
	}
	if pol.Stats().Errors != 1 {
		t.Errorf("expected Errors=1, got %d", pol.Stats().Errors)
	}
	if err := pol.Close(); !errors.Is(err, policy.ErrPipelineBroken) {
		t.Errorf("Close() = %v, want ErrPipelineBroken", err)
	}
}

func TestPipelinedPolicy_CloseDrains(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{QueueSize: 16})

	for i := int64(1); i <= 10; i++ {
		_ = pol.IngestRecord(t.Context(), textRecord(i))
	}
	if err := pol.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if sink.Stats().RecordsWritten != 10 {
		t.Errorf("expected close to drain 10 records, got %d", sink.Stats().RecordsWritten)
	}
	if !sink.Stats().Closed {
		t.Error("expected sink closed")
	}
	if err := pol.IngestRecord(t.Context(), textRecord(11)); !errors.Is(err, policy.ErrPolicyClosed) {
		t.Errorf("ingest after close = %v, want ErrPolicyClosed", err)
	}
	if err := pol.Close(); err != nil {
		t.Errorf("second close = %v", err)
	}
}
