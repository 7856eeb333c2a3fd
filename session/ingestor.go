package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/justapithecus/framecap/framing"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/types"
)

// Counters is a point-in-time view of ingestion counters.
type Counters struct {
	TotalRecords  int64
	TextRecords   int64
	BinaryRecords int64
	FailedRecords int64
	FramingErrors int64
	BytesFed      int64
	PayloadBytes  int64
	PendingBytes  int64
}

// Ingestor feeds raw bytes through the framer and hands every frame to
// the policy.
//
// Recoverable framing errors are logged, counted and skipped. A fatal
// framing error ends ingestion. A record whose persistence fails is
// counted once as failed; for binary records the remaining chunks and
// the commit are skipped. Storage failures end ingestion once more than
// maxStorageFailures have occurred, or immediately when the policy
// reports it can no longer accept writes.
//
// Feed, Finish and Reset must be called from one goroutine. Counters
// may be read concurrently.
type Ingestor struct {
	acc       *framing.Accumulator
	policy    policy.Policy
	logger    *log.Logger
	collector *metrics.Collector

	maxStorageFailures int
	storageFailures    int
	failedBinary       map[int64]struct{}

	total, text, binary, failed atomic.Int64
	framingErrors               atomic.Int64
	bytesFed, payloadBytes      atomic.Int64
	pending                     atomic.Int64
}

// IngestorConfig configures an Ingestor.
type IngestorConfig struct {
	// Framing configures the accumulator.
	Framing framing.Config
	// MaxStorageFailures is the number of failed records tolerated before
	// ingestion stops. Negative tolerates every failure.
	MaxStorageFailures int
}

// NewIngestor creates an ingestor.
// logger and collector may be nil.
func NewIngestor(cfg IngestorConfig, pol policy.Policy, logger *log.Logger, collector *metrics.Collector, opts ...framing.Option) (*Ingestor, error) {
	if pol == nil {
		return nil, errors.New("ingestor: policy is required")
	}
	acc, err := framing.NewAccumulator(cfg.Framing, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingestor: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		acc:                acc,
		policy:             pol,
		logger:             logger,
		collector:          collector,
		maxStorageFailures: cfg.MaxStorageFailures,
		failedBinary:       make(map[int64]struct{}),
	}, nil
}

// Feed frames data and dispatches every complete frame.
//
// Returns:
//   - nil: data consumed, ingestion may continue
//   - *SessionError with Kind=ErrorProtocol: fatal framing error
//   - *SessionError with Kind=ErrorStorage: storage failure limit reached
//   - ctx's error: the policy was blocked when ctx ended
func (i *Ingestor) Feed(ctx context.Context, data []byte) error {
	i.bytesFed.Add(int64(len(data)))
	if err := i.acc.Feed(data); err != nil {
		return i.fatalFrameError(err)
	}
	defer i.pending.Store(int64(i.acc.Pending()))

	for {
		frame, ok, err := i.acc.TryExtract()
		if err != nil {
			if framing.IsFatalFrameError(err) {
				i.reportFrameError(err)
				return i.fatalFrameError(err)
			}
			i.reportFrameError(err)
			continue
		}
		if !ok {
			return nil
		}
		if err := i.dispatch(ctx, frame); err != nil {
			return err
		}
	}
}

// Finish reports any residue left at end of stream.
// Residue is a framing error, never fatal.
func (i *Ingestor) Finish() {
	if i.acc.Err() != nil {
		return
	}
	if err := i.acc.Finish(); err != nil {
		i.reportFrameError(err)
		if fe, ok := framing.AsFrameError(err); ok && fe.RecordID > 0 {
			if _, already := i.failedBinary[fe.RecordID]; !already {
				i.failed.Add(1)
			}
			delete(i.failedBinary, fe.RecordID)
		}
	}
	i.pending.Store(int64(i.acc.Pending()))
}

// Reset discards framer state and zeroes counters.
func (i *Ingestor) Reset() {
	i.acc.Reset()
	i.storageFailures = 0
	clear(i.failedBinary)
	for _, c := range []*atomic.Int64{
		&i.total, &i.text, &i.binary, &i.failed, &i.framingErrors,
		&i.bytesFed, &i.payloadBytes, &i.pending,
	} {
		c.Store(0)
	}
}

// Offset returns the stream offset consumed by the framer.
func (i *Ingestor) Offset() int64 {
	return i.acc.Offset()
}

// Records returns the cumulative record count.
func (i *Ingestor) Records() int64 {
	return i.total.Load()
}

// Counters returns a snapshot of ingestion counters.
func (i *Ingestor) Counters() Counters {
	return Counters{
		TotalRecords:  i.total.Load(),
		TextRecords:   i.text.Load(),
		BinaryRecords: i.binary.Load(),
		FailedRecords: i.failed.Load(),
		FramingErrors: i.framingErrors.Load(),
		BytesFed:      i.bytesFed.Load(),
		PayloadBytes:  i.payloadBytes.Load(),
		PendingBytes:  i.pending.Load(),
	}
}

func (i *Ingestor) dispatch(ctx context.Context, frame framing.Frame) error {
	switch frame.Kind {
	case framing.FrameText:
		rec := frame.Record
		i.total.Add(1)
		i.text.Add(1)
		i.payloadBytes.Add(int64(len(rec.Payload)))
		i.collector.IncTextRecord(len(rec.Payload))
		if err := i.policy.IngestRecord(ctx, rec); err != nil {
			return i.storageFailure(ctx, rec.ID, err)
		}

	case framing.FrameChunk:
		chunk := frame.Chunk
		if _, skip := i.failedBinary[chunk.RecordID]; skip {
			return nil
		}
		if err := i.policy.IngestChunk(ctx, chunk); err != nil {
			i.failedBinary[chunk.RecordID] = struct{}{}
			return i.storageFailure(ctx, chunk.RecordID, err)
		}

	case framing.FrameBinary:
		rec := frame.Record
		i.total.Add(1)
		i.binary.Add(1)
		i.payloadBytes.Add(int64(rec.DeclaredLength))
		i.collector.IncBinaryRecord(rec.DeclaredLength)
		if _, skip := i.failedBinary[rec.ID]; skip {
			delete(i.failedBinary, rec.ID)
			i.logger.Debug("skipping commit of failed binary record", map[string]any{
				"record_id": rec.ID,
			})
			return nil
		}
		if err := i.policy.IngestRecord(ctx, rec); err != nil {
			return i.storageFailure(ctx, rec.ID, err)
		}
	}
	return nil
}

// storageFailure counts a failed record and decides whether ingestion stops.
func (i *Ingestor) storageFailure(ctx context.Context, recordID int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}

	i.failed.Add(1)
	i.storageFailures++
	i.logger.Warn("record persistence failed", map[string]any{
		"record_id": recordID,
		"offset":    i.acc.Offset(),
		"failures":  i.storageFailures,
		"error":     err.Error(),
	})

	unrecoverable := errors.Is(err, policy.ErrPipelineBroken) || errors.Is(err, policy.ErrPolicyClosed)
	overLimit := i.maxStorageFailures >= 0 && i.storageFailures > i.maxStorageFailures
	if !unrecoverable && !overLimit {
		return nil
	}
	return &SessionError{
		Kind:     ErrorStorage,
		Offset:   i.acc.Offset(),
		RecordID: recordID,
		Records:  i.total.Load(),
		Err:      err,
	}
}

func (i *Ingestor) reportFrameError(err error) {
	i.framingErrors.Add(1)
	fe, ok := framing.AsFrameError(err)
	if !ok {
		i.collector.IncFramingError("unknown", false)
		i.logger.Warn("framing error", map[string]any{"error": err.Error()})
		return
	}
	i.collector.IncFramingError(fe.Kind.String(), fe.IsFatal())

	fields := map[string]any{
		"kind":   fe.Kind.String(),
		"offset": fe.Offset,
		"length": fe.Length,
		"error":  fe.Msg,
	}
	if fe.RecordID > 0 {
		fields["record_id"] = fe.RecordID
	}
	if len(fe.Raw) > 0 {
		fields["raw"] = fmt.Sprintf("%q", fe.Raw)
	}
	if fe.IsFatal() {
		i.logger.Error("fatal framing error", fields)
		return
	}
	i.logger.Warn("framing error", fields)
}

func (i *Ingestor) fatalFrameError(err error) error {
	se := &SessionError{
		Kind:    ErrorProtocol,
		Offset:  i.acc.Offset(),
		Records: i.total.Load(),
		Err:     err,
	}
	if fe, ok := framing.AsFrameError(err); ok {
		se.Offset = fe.Offset
		se.RecordID = fe.RecordID
	}
	return se
}

// statistics fills the ingestion fields of s.
func (c Counters) statistics(s *types.Statistics) {
	s.TotalRecords = c.TotalRecords
	s.TextRecords = c.TextRecords
	s.BinaryRecords = c.BinaryRecords
	s.FailedRecords = c.FailedRecords
	s.FramingErrors = c.FramingErrors
	s.BytesReceived = c.BytesFed
	s.PayloadBytes = c.PayloadBytes
	s.PendingBytes = c.PendingBytes
}
