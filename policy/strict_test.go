package policy_test

import (
	"errors"
	"testing"

	"github.com/justapithecus/framecap/policy"
)

func TestStrictPolicy_IngestRecord_ImmediateWrite(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	if err := pol.IngestRecord(t.Context(), textRecord(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sinkStats := sink.Stats()
	if sinkStats.RecordsWritten != 1 {
		t.Errorf("expected 1 record written immediately, got %d", sinkStats.RecordsWritten)
	}
	if sinkStats.RecordBatches != 1 {
		t.Errorf("expected 1 batch, got %d", sinkStats.RecordBatches)
	}

	stats := pol.Stats()
	if stats.TotalRecords != 1 || stats.RecordsPersisted != 1 {
		t.Errorf("TotalRecords/RecordsPersisted = %d/%d, want 1/1", stats.TotalRecords, stats.RecordsPersisted)
	}
}

func TestStrictPolicy_ChunksPrecedeRecord(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	_ = pol.IngestChunk(t.Context(), chunk(1, 1, "ab", false))
	_ = pol.IngestChunk(t.Context(), chunk(1, 2, "c", true))
	_ = pol.IngestRecord(t.Context(), binaryRecord(1, 3))
	_ = pol.IngestRecord(t.Context(), textRecord(2))

	want := []string{"chunks", "chunks", "records", "records"}
	if len(sink.WriteOrder) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(sink.WriteOrder))
	}
	for i, op := range sink.WriteOrder {
		if op.Type != want[i] {
			t.Errorf("write %d: got %s, want %s", i, op.Type, want[i])
		}
	}

	stats := pol.Stats()
	if stats.TotalChunks != 2 || stats.ChunksPersisted != 2 {
		t.Errorf("TotalChunks/ChunksPersisted = %d/%d, want 2/2", stats.TotalChunks, stats.ChunksPersisted)
	}
}

func TestStrictPolicy_SinkError(t *testing.T) {
	sink := policy.NewStubSink()
	sinkErr := errors.New("sink failure")
	sink.SetError(sinkErr)
	pol := policy.NewStrictPolicy(sink)

	if err := pol.IngestRecord(t.Context(), textRecord(1)); !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error, got %v", err)
	}
	if err := pol.IngestChunk(t.Context(), chunk(2, 1, "x", true)); !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error, got %v", err)
	}

	stats := pol.Stats()
	if stats.Errors != 2 {
		t.Errorf("expected Errors=2, got %d", stats.Errors)
	}
	if stats.RecordsPersisted != 0 {
		t.Errorf("expected RecordsPersisted=0, got %d", stats.RecordsPersisted)
	}
}

func TestStrictPolicy_FlushAndClose(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pol.Stats().FlushCount != 1 {
		t.Errorf("expected FlushCount=1, got %d", pol.Stats().FlushCount)
	}
	if err := pol.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.Stats().Closed {
		t.Error("expected sink to be closed")
	}
}
