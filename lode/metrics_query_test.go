package lode

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/types"
)

func TestNewReadDatasetFS(t *testing.T) {
	ds, err := NewReadDatasetFS("framecap", t.TempDir())
	if err != nil {
		t.Fatalf("NewReadDatasetFS failed: %v", err)
	}
	if ds.ID() != "framecap" {
		t.Errorf("Dataset ID = %q, want %q", ds.ID(), "framecap")
	}
}

func writeSessionMetrics(t *testing.T, factory lode.StoreFactory, sessionID, source string, textRecords int64, at time.Time) {
	t.Helper()
	cfg := testConfig()
	cfg.SessionID = sessionID
	cfg.Source = source
	client := mustClient(t, cfg, factory)

	snap := metrics.Snapshot{TextRecords: textRecords, SessionID: sessionID, Source: source}
	if err := client.WriteMetrics(t.Context(), snap, at); err != nil {
		t.Fatalf("WriteMetrics failed: %v", err)
	}
}

func TestQueryLatestMetrics_WriteAndRead(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	writeSessionMetrics(t, factory, "sess-001", "feed-a", 42, time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC))

	ds, err := NewReadDataset("framecap", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	record, err := QueryLatestMetrics(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if v := toInt64(record["text_records_total"]); v != 42 {
		t.Errorf("text_records_total = %d, want 42", v)
	}
	if v := toString(record["session_id"]); v != "sess-001" {
		t.Errorf("session_id = %q, want sess-001", v)
	}
}

func TestQueryLatestMetrics_LatestWins(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	base := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		writeSessionMetrics(t, factory, "sess-001", "feed-a", i*10, base.Add(time.Duration(i)*time.Minute))
	}

	ds, _ := NewReadDataset("framecap", factory)
	record, err := QueryLatestMetrics(t.Context(), ds, "sess-001", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if v := toInt64(record["text_records_total"]); v != 30 {
		t.Errorf("text_records_total = %d, want 30 (latest)", v)
	}
}

func TestQueryLatestMetrics_Filters(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	at := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	writeSessionMetrics(t, factory, "sess-1", "feed-a", 1, at)
	writeSessionMetrics(t, factory, "sess-10", "feed-b", 10, at.Add(time.Minute))
	writeSessionMetrics(t, factory, "sess-2", "feed-ab", 2, at.Add(2*time.Minute))

	ds, _ := NewReadDataset("framecap", factory)

	tests := []struct {
		name      string
		sessionID string
		source    string
		want      int64
	}{
		{"by session, no substring collision", "sess-1", "", 1},
		{"by source, no substring collision", "", "feed-a", 1},
		{"by source", "", "feed-b", 10},
		{"unfiltered latest", "", "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := QueryLatestMetrics(t.Context(), ds, tt.sessionID, tt.source)
			if err != nil {
				t.Fatalf("QueryLatestMetrics failed: %v", err)
			}
			if v := toInt64(record["text_records_total"]); v != tt.want {
				t.Errorf("text_records_total = %d, want %d", v, tt.want)
			}
		})
	}
}

func TestQueryLatestMetrics_NoMetrics(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	client := mustClient(t, testConfig(), factory)
	if err := client.WriteRecords(t.Context(), []*types.Record{textRecord(1, "hello")}); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	ds, _ := NewReadDataset("framecap", factory)
	if _, err := QueryLatestMetrics(t.Context(), ds, "", ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("expected ErrNoMetricsFound, got %v", err)
	}
}

func TestPartitionFilter(t *testing.T) {
	path := "datasets/framecap/partitions/source=feed-a/day=2026-10-16/session_id=s-10/record_kind=metrics/part.jsonl"
	tests := []struct {
		name   string
		filter partitionFilter
		want   bool
	}{
		{name: "empty", filter: partitionFilter{}, want: true},
		{name: "blank values", filter: partitionFilter{"session_id": "", "source": ""}, want: true},
		{name: "exact session", filter: partitionFilter{"session_id": "s-10"}, want: true},
		{name: "session prefix", filter: partitionFilter{"session_id": "s-1"}, want: false},
		{name: "kind and source", filter: partitionFilter{"record_kind": "metrics", "source": "feed-a"}, want: true},
		{name: "wrong kind", filter: partitionFilter{"record_kind": "text", "source": "feed-a"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.matchesPath(path); got != tt.want {
				t.Errorf("matchesPath = %v, want %v", got, tt.want)
			}
		})
	}
}
