package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/framecap/capture"
	"github.com/justapithecus/framecap/framing"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/types"
)

// DefaultReplayChunkSize is the read size for raw replay input.
const DefaultReplayChunkSize = 32 * 1024

// sniffBufferSize holds any capture header for detection.
const sniffBufferSize = 8 * 1024

// ReplayConfig configures an offline replay.
type ReplayConfig struct {
	// Meta is the identity the replayed records are stored under.
	Meta *types.SessionMeta
	// Framing configures the framer.
	Framing framing.Config
	// MaxStorageFailures is the number of failed records tolerated. Negative tolerates all.
	MaxStorageFailures int
	// ChunkSize is the read size for raw input (default DefaultReplayChunkSize).
	// Capture input keeps its recorded chunk boundaries.
	ChunkSize int
	// FlushTimeout bounds the final policy flush (default DefaultFlushTimeout).
	FlushTimeout time.Duration
	// Policy receives every framed record. Required.
	Policy    policy.Policy
	Logger    *log.Logger
	Collector *metrics.Collector
}

// ReplayResult is the result of a replay.
type ReplayResult struct {
	Meta    *types.SessionMeta
	Outcome *Outcome
	Err     error
	// Capture is the capture header, nil for raw input.
	Capture     *capture.Header
	Chunks      int64
	Duration    time.Duration
	Statistics  types.Statistics
	PolicyStats policy.Stats
}

// Replay feeds r through the same framer and policy path as a live
// session. r is either a capture log, detected by its header, or raw
// stream bytes.
//
// Replay returns an error only when it cannot start: bad config or an
// unreadable capture header. Everything after that is reported in the
// result.
func Replay(ctx context.Context, r io.Reader, cfg ReplayConfig) (*ReplayResult, error) {
	if cfg.Meta == nil {
		return nil, errors.New("replay: meta is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultReplayChunkSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	ing, err := NewIngestor(IngestorConfig{
		Framing:            cfg.Framing,
		MaxStorageFailures: cfg.MaxStorageFailures,
	}, cfg.Policy, logger, cfg.Collector)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(r, max(cfg.ChunkSize, sniffBufferSize))
	next, header, err := replaySource(br, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cfg.Collector.IncSessionStarted()
	logger.Info("starting replay", map[string]any{
		"capture": header != nil,
	})

	result := &ReplayResult{Meta: cfg.Meta, Capture: header}
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = &SessionError{Kind: ErrorCanceled, Offset: ing.Offset(), Records: ing.Records(), Err: err}
			break
		}
		data, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = &SessionError{Kind: ErrorTransport, Offset: ing.Offset(), Records: ing.Records(), Err: err}
			break
		}
		result.Chunks++
		cfg.Collector.AddBytesReceived(len(data))
		if err := ing.Feed(ctx, data); err != nil {
			var se *SessionError
			if !errors.As(err, &se) {
				se = &SessionError{Kind: ErrorCanceled, Offset: ing.Offset(), Records: ing.Records(), Err: err}
			}
			runErr = se
			break
		}
	}
	ing.Finish()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.FlushTimeout)
	if err := cfg.Policy.Flush(flushCtx); err != nil && runErr == nil {
		runErr = &SessionError{Kind: ErrorStorage, Offset: ing.Offset(), Records: ing.Records(), Err: fmt.Errorf("policy flush failed: %w", err)}
	}
	cancel()

	ing.Counters().statistics(&result.Statistics)
	result.Statistics.Phase = types.PhaseDisconnected
	result.Err = runErr
	result.Outcome = DetermineOutcome(runErr, false, 0, result.Statistics.TotalRecords)
	result.Duration = time.Since(start)
	result.PolicyStats = cfg.Policy.Stats()

	if result.Outcome.IsSuccess() {
		cfg.Collector.IncSessionCompleted()
	} else {
		cfg.Collector.IncSessionFailed()
	}
	ps := result.PolicyStats
	cfg.Collector.AbsorbPolicyStats(ps.TotalRecords, ps.RecordsPersisted, ps.ChunksPersisted)

	logger.Info("replay finished", map[string]any{
		"outcome":        string(result.Outcome.Status),
		"chunks":         result.Chunks,
		"records":        result.Statistics.TotalRecords,
		"framing_errors": result.Statistics.FramingErrors,
		"duration":       result.Duration.String(),
	})
	return result, nil
}

// replaySource returns a chunk iterator over br: capture frames when br
// starts with a capture header, fixed-size reads otherwise.
func replaySource(br *bufio.Reader, chunkSize int) (func() ([]byte, error), *capture.Header, error) {
	if capture.Sniff(br) {
		cr, err := capture.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("replay: %w", err)
		}
		h := cr.Header()
		return func() ([]byte, error) {
			c, err := cr.Next()
			if err != nil {
				return nil, err
			}
			return c.Data, nil
		}, &h, nil
	}

	buf := make([]byte, chunkSize)
	return func() ([]byte, error) {
		n, err := br.Read(buf)
		if n > 0 {
			return append([]byte(nil), buf[:n]...), nil
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}, nil, nil
}
