package lode

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/framecap/types"
)

func testConfig() Config {
	return Config{
		Dataset:   "framecap",
		Source:    "feed-a",
		Day:       "2026-10-16",
		SessionID: "sess-001",
		Policy:    "strict",
	}
}

// sharedFactory returns a factory that always yields the same store, so
// the write and read paths observe the same data.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func mustClient(t *testing.T, cfg Config, factory lode.StoreFactory) *LodeClient {
	t.Helper()
	client, err := NewLodeClientWithFactory(cfg, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	return client
}

// readLatest returns the rows of the most recent snapshot.
func readLatest(t *testing.T, factory lode.StoreFactory) []map[string]any {
	t.Helper()
	ds, err := NewReadDataset("framecap", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	latest, err := ds.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	data, err := ds.Read(t.Context(), latest.ID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	rows := make([]map[string]any, 0, len(data))
	for _, item := range data {
		row, ok := item.(map[string]any)
		if !ok {
			t.Fatalf("record type = %T, want map[string]any", item)
		}
		rows = append(rows, row)
	}
	return rows
}

func textRecord(id int64, payload string) *types.Record {
	return &types.Record{
		ID:         id,
		Kind:       types.RecordKindText,
		Offset:     id * 10,
		Payload:    []byte(payload),
		ReceivedAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
}

func binaryRecord(id int64, n uint64) *types.Record {
	return &types.Record{
		ID:             id,
		Kind:           types.RecordKindBinary,
		Tag:            0xAA,
		DeclaredLength: n,
		Digest:         "deadbeef",
	}
}

func payloadChunk(recordID, seq int64, offset uint64, data string, last bool) *types.PayloadChunk {
	return &types.PayloadChunk{
		RecordID: recordID,
		Seq:      seq,
		Offset:   offset,
		IsLast:   last,
		Data:     []byte(data),
	}
}

// toInt64 converts JSON-decoded numbers to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return -1
	}
}

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr    error
	GetErr    error
	ExistsErr error
	ListErr   error
	DeleteErr error

	PutCalls int
	PutPaths []string
}

func (s *FailingStore) Put(_ context.Context, path string, _ io.Reader) error {
	s.PutCalls++
	s.PutPaths = append(s.PutPaths, path)
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, s.GetErr
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, s.ExistsErr
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, s.ListErr
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return s.DeleteErr
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

// FailingStoreFactory creates a factory that returns a FailingStore.
func FailingStoreFactory(store *FailingStore) lode.StoreFactory {
	return func() (lode.Store, error) {
		return store, nil
	}
}

// FailingFactoryFactory creates a factory that fails to create a store.
func FailingFactoryFactory(err error) lode.StoreFactory {
	return func() (lode.Store, error) {
		return nil, err
	}
}

// flakyStore delegates to a real store but fails Put while putErr is set.
type flakyStore struct {
	lode.Store

	mu     sync.Mutex
	putErr error
}

func (s *flakyStore) setPutErr(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

func (s *flakyStore) Put(ctx context.Context, path string, r io.Reader) error {
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, path, r)
}
