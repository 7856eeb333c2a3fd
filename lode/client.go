package lode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/types"
)

// ErrCommitWithoutChunks is returned when a non-empty binary record is
// committed before any of its chunks were written.
var ErrCommitWithoutChunks = errors.New("binary commit rejected: no chunks written for record")

// ErrLengthMismatch is returned when the bytes written for a binary record
// do not sum to its declared length.
var ErrLengthMismatch = errors.New("binary commit rejected: chunk bytes do not match declared length")

// ErrChunkOutOfOrder is returned when a chunk's payload offset does not
// continue the bytes already written for its record.
var ErrChunkOutOfOrder = errors.New("chunk rejected: payload offset is not contiguous")

// LodeClient is a real Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: source/day/session_id/record_kind.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	mu         sync.Mutex         // guards offsets and chunksSeen
	offsets    map[int64]uint64   // payload bytes written per binary record
	chunksSeen map[int64]struct{} // binary records that have had chunks written
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
		offsets:      make(map[int64]uint64),
		chunksSeen:   make(map[int64]struct{}),
	}
}

// WriteRecords writes a batch of records to Lode.
// Text records are stored whole; binary records become commit rows.
//
// Enforces "chunks before commit": a non-empty binary record is rejected
// unless its chunks were written first and sum to the declared length.
// Chunk state for committed records is released after a successful write.
func (c *LodeClient) WriteRecords(ctx context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var committed []int64

	rows := make([]any, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case types.RecordKindText:
			rows = append(rows, toTextRecordMap(r, c.config))
		case types.RecordKindBinary:
			if err := c.checkCommitLocked(r); err != nil {
				return err
			}
			committed = append(committed, r.ID)
			rows = append(rows, toBinaryRecordMap(r, c.config))
		default:
			return fmt.Errorf("lode: unknown record kind %q", r.Kind)
		}
	}

	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}

	for _, id := range committed {
		delete(c.offsets, id)
		delete(c.chunksSeen, id)
	}
	return nil
}

func (c *LodeClient) checkCommitLocked(r *types.Record) error {
	if r.DeclaredLength == 0 {
		return nil
	}
	if _, seen := c.chunksSeen[r.ID]; !seen {
		return fmt.Errorf("%w: record %d", ErrCommitWithoutChunks, r.ID)
	}
	if got := c.offsets[r.ID]; got != r.DeclaredLength {
		return fmt.Errorf("%w: record %d wrote %d of %d bytes", ErrLengthMismatch, r.ID, got, r.DeclaredLength)
	}
	return nil
}

// WriteChunks writes a batch of payload chunks to Lode.
// State (offsets, chunksSeen) is only updated after a successful write.
func (c *LodeClient) WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Compute offsets locally first (don't modify state yet)
	local := make(map[int64]uint64)
	rows := make([]any, 0, len(chunks))
	for _, chunk := range chunks {
		written, ok := local[chunk.RecordID]
		if !ok {
			written = c.offsets[chunk.RecordID]
		}
		if chunk.Offset != written {
			return fmt.Errorf("%w: record %d chunk %d at offset %d, expected %d",
				ErrChunkOutOfOrder, chunk.RecordID, chunk.Seq, chunk.Offset, written)
		}
		rows = append(rows, toChunkRecordMap(chunk, c.config))
		local[chunk.RecordID] = written + uint64(len(chunk.Data))
	}

	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}

	for id, written := range local {
		c.offsets[id] = written
		c.chunksSeen[id] = struct{}{}
	}
	return nil
}

// WriteMetrics persists a metrics snapshot as a single metrics record.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	row := toMetricsRecordMap(snap, c.config, completedAt)
	if _, err := c.dataset.Write(ctx, []any{row}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
