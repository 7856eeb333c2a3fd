package lode

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound means no metrics row matched the query.
var ErrNoMetricsFound = errors.New("no metrics records found")

// QueryLatestMetrics returns the newest metrics row, optionally narrowed
// to one session and/or source.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, sessionID, source string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	filter := partitionFilter{
		"record_kind": RecordKindMetrics,
		"session_id":  sessionID,
		"source":      source,
	}
	// Snapshots come oldest first.
	for _, snap := range slices.Backward(snapshots) {
		if !filter.matches(snap) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if sessionID != "" && toString(record["session_id"]) != sessionID {
				continue
			}
			if source != "" && toString(record["source"]) != source {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
