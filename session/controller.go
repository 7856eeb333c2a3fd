// Package session drives one collection session against a remote feed.
//
// A Controller dials the peer, authenticates, feeds every inbound chunk
// through the framer into a storage policy, sends the stop command once
// the record target is reached and drains the stream until the peer
// closes it or the drain deadline expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/framecap/framing"
	"github.com/justapithecus/framecap/lode"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/transport"
	"github.com/justapithecus/framecap/types"
)

// Defaults.
const (
	DefaultNetwork       = "tcp"
	DefaultTerminator    = "\n"
	DefaultAuthCommand   = "AUTH"
	DefaultStatusCommand = "STATUS"
	DefaultDrainTimeout  = 30 * time.Second
	DefaultFlushTimeout  = 30 * time.Second
)

var (
	// ErrSessionActive is returned by Start and Reset while a session runs.
	ErrSessionActive = errors.New("session: already running")
	// ErrResetRequired is returned by Start on a finished controller.
	ErrResetRequired = errors.New("session: finished, call Reset before starting again")
)

// Dialer opens the transport stream. Tests inject one over net.Pipe.
type Dialer func(ctx context.Context) (*transport.Stream, error)

// ChunkRecorder receives every inbound chunk before framing.
// *capture.Writer implements it.
type ChunkRecorder interface {
	WriteChunk(data []byte, receivedAt time.Time) error
}

// Config configures a Controller.
type Config struct {
	// Meta is the session identity.
	Meta *types.SessionMeta
	// Network and Address locate the peer. Network defaults to "tcp".
	Network string
	Address string
	// Token is sent as "AUTH <token>" after connecting.
	Token string
	// Terminator ends every outbound command (default "\n").
	Terminator string
	// StatusCommand is the stop command (default "STATUS").
	StatusCommand string
	// Target is the record count that triggers the stop command. Zero disables it.
	Target int64
	// DrainTimeout bounds draining after the stop command.
	DrainTimeout time.Duration
	// CloseTimeout bounds the outbound drain on close.
	CloseTimeout time.Duration
	// FlushTimeout bounds the final policy flush.
	FlushTimeout time.Duration
	// MaxStorageFailures is the number of failed records tolerated. Negative tolerates all.
	MaxStorageFailures int
	// Framing configures the framer.
	Framing framing.Config
	// Transport configures the stream.
	Transport transport.Config

	// Policy receives every framed record. Required.
	Policy policy.Policy
	// Logger defaults to a session-scoped JSON logger.
	Logger *log.Logger
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
	// Recorder, if set, receives every inbound chunk (capture log).
	Recorder ChunkRecorder
	// FileWriter, if set, receives the session summary sidecar.
	FileWriter lode.FileWriter
	// Dialer overrides transport.Dial.
	Dialer Dialer
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	if c.StatusCommand == "" {
		c.StatusCommand = DefaultStatusCommand
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = transport.DefaultCloseTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	return c
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Meta == nil {
		return errors.New("session: meta is required")
	}
	if err := c.Meta.Validate(); err != nil {
		return fmt.Errorf("session: invalid meta: %w", err)
	}
	if c.Policy == nil {
		return errors.New("session: policy is required")
	}
	if c.Address == "" && c.Dialer == nil {
		return errors.New("session: address is required")
	}
	if c.Target < 0 {
		return fmt.Errorf("session: target must be >= 0, got %d", c.Target)
	}
	return c.Framing.Validate()
}

// Result is the result of a finished session.
type Result struct {
	// Meta is the session identity.
	Meta *types.SessionMeta
	// Outcome is the session classification.
	Outcome *Outcome
	// Err is the error that ended the session, nil on a clean end.
	Err error
	// StartedAt is when Start was called.
	StartedAt time.Time
	// Duration is the total session duration.
	Duration time.Duration
	// StatusSent reports whether the stop command went out.
	StatusSent bool
	// Statistics is the final counter snapshot.
	Statistics types.Statistics
	// PolicyStats is the storage policy snapshot.
	PolicyStats policy.Stats
	// TransportStats is the stream snapshot.
	TransportStats transport.Stats
}

// Controller runs one session at a time.
type Controller struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	ingestor  *Ingestor

	mu            sync.Mutex
	phase         types.Phase
	running       bool
	finished      bool
	stream        *transport.Stream
	transport     transport.Stats
	statusSent    bool
	stopRequested bool
	stopCh        chan struct{}
	done          chan struct{}
	result        *Result
	cancel        context.CancelFunc
	recordFailed  bool
}

// New creates a Controller in the disconnected phase.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

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

	return &Controller{
		cfg:       cfg,
		logger:    logger,
		collector: cfg.Collector,
		ingestor:  ing,
		phase:     types.PhaseDisconnected,
	}, nil
}

// Start begins a session in the background and returns immediately.
// Use Wait for the result. The session ends when ctx is canceled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrSessionActive
	}
	if c.finished {
		return ErrResetRequired
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.phase = types.PhaseConnecting

	go func() {
		defer cancel()
		result := c.run(runCtx, c.stopCh)

		c.mu.Lock()
		c.result = result
		c.running = false
		c.finished = true
		c.stream = nil
		c.phase = types.PhaseDisconnected
		done := c.done
		c.mu.Unlock()
		close(done)
	}()
	return nil
}

// Run starts a session and waits for it to end.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c.Wait(), nil
}

// Wait blocks until the running session ends and returns its result.
// Returns the last result, or nil if no session was started.
func (c *Controller) Wait() *Result {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Stop asks a running session to end: the stop command is sent (once)
// and the stream is drained as if the target had been reached.
// It does not wait; use Wait.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.stopRequested {
		return
	}
	c.stopRequested = true
	close(c.stopCh)
}

// Reset returns a finished controller to its initial state: counters
// and framer residue are discarded and the phase is disconnected.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrSessionActive
	}
	c.ingestor.Reset()
	c.phase = types.PhaseDisconnected
	c.finished = false
	c.statusSent = false
	c.stopRequested = false
	c.transport = transport.Stats{}
	c.result = nil
	c.done = nil
	return nil
}

// Statistics returns a snapshot of the session counters.
// Safe to call from any goroutine.
func (c *Controller) Statistics() types.Statistics {
	c.mu.Lock()
	phase := c.phase
	stream := c.stream
	stalls := c.transport.Stalls
	stop := c.stopRequested || c.statusSent
	c.mu.Unlock()

	if stream != nil {
		stalls = stream.Stats().Stalls
	}

	var s types.Statistics
	c.ingestor.Counters().statistics(&s)
	s.ReadStalls = stalls
	s.Phase = phase
	s.Target = c.cfg.Target
	s.StopRequested = stop
	return s
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() types.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p types.Phase) {
	c.mu.Lock()
	prev := c.phase
	c.phase = p
	c.mu.Unlock()
	if prev != p {
		c.logger.Debug("phase changed", map[string]any{
			"from": string(prev),
			"to":   string(p),
		})
	}
}

// run executes the session end to end.
//
// Execution flow:
//  1. Dial the peer
//  2. Send AUTH
//  3. Feed chunks until EOF, a fatal error or the drain deadline
//  4. Drain outbound messages and close the stream
//  5. Flush the policy
//  6. Determine outcome
func (c *Controller) run(ctx context.Context, stopCh <-chan struct{}) *Result {
	startedAt := time.Now()
	c.collector.IncSessionStarted()
	c.logger.Info("starting session", map[string]any{
		"network": c.cfg.Network,
		"address": c.cfg.Address,
		"target":  c.cfg.Target,
	})

	stream, err := c.dial(ctx, stopCh)
	if err != nil {
		c.collector.IncTransportError()
		c.logger.Error("failed to connect", map[string]any{
			"error": err.Error(),
		})
		return c.finish(ctx, startedAt, err, nil)
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	if c.cfg.Meta.Remote == "" {
		c.cfg.Meta.Remote = stream.RemoteAddr()
	}

	c.setPhase(types.PhaseAuthenticating)
	if err := stream.Send(ctx, c.command(DefaultAuthCommand+" "+c.cfg.Token)); err != nil {
		return c.finish(ctx, startedAt, c.transportError(err), stream)
	}

	err = c.collect(ctx, stream, stopCh)
	return c.finish(ctx, startedAt, err, stream)
}

func (c *Controller) dial(ctx context.Context, stopCh <-chan struct{}) (*transport.Stream, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	var (
		stream *transport.Stream
		err    error
	)
	if c.cfg.Dialer != nil {
		stream, err = c.cfg.Dialer(dialCtx)
	} else {
		stream, err = transport.Dial(dialCtx, c.cfg.Network, c.cfg.Address, c.cfg.Transport)
	}
	if err == nil {
		return stream, nil
	}

	kind := ErrorTransport
	if dialCtx.Err() != nil {
		kind = ErrorCanceled
	}
	return nil, &SessionError{Kind: kind, Phase: types.PhaseConnecting, Err: err}
}

// collect feeds inbound chunks until the stream ends.
func (c *Controller) collect(ctx context.Context, stream *transport.Stream, stopCh <-chan struct{}) error {
	feedCtx := ctx
	var drainDeadline <-chan time.Time
	draining := false

	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if err := stream.Err(); err != nil {
					c.collector.IncTransportError()
					return c.transportError(err)
				}
				c.logger.Info("peer closed stream", map[string]any{
					"records": c.ingestor.Records(),
				})
				return nil
			}

			if c.Phase() == types.PhaseAuthenticating {
				c.setPhase(types.PhaseCollecting)
			}
			c.collector.AddBytesReceived(len(chunk.Data))
			c.record(chunk)

			if err := c.ingestor.Feed(feedCtx, chunk.Data); err != nil {
				return c.feedError(ctx, err, draining)
			}

			if !draining && c.cfg.Target > 0 && c.ingestor.Records() >= c.cfg.Target {
				ctxDrain, cancel, timer, err := c.beginDrain(ctx, stream, "target reached")
				if err != nil {
					return err
				}
				defer cancel()
				defer timer.Stop()
				feedCtx, drainDeadline, draining = ctxDrain, timer.C, true
			}

		case <-stopCh:
			stopCh = nil
			if draining {
				continue
			}
			ctxDrain, cancel, timer, err := c.beginDrain(ctx, stream, "stop requested")
			if err != nil {
				return err
			}
			defer cancel()
			defer timer.Stop()
			feedCtx, drainDeadline, draining = ctxDrain, timer.C, true

		case <-drainDeadline:
			c.collector.IncDrainTimeout()
			c.logger.Warn("drain deadline expired", map[string]any{
				"timeout": c.cfg.DrainTimeout.String(),
				"records": c.ingestor.Records(),
			})
			return c.sessionError(ErrorDrainTimeout,
				fmt.Errorf("peer did not close the stream within %s", c.cfg.DrainTimeout))

		case <-ctx.Done():
			return c.sessionError(ErrorCanceled, ctx.Err())
		}
	}
}

// beginDrain sends the stop command and arms the drain deadline.
func (c *Controller) beginDrain(ctx context.Context, stream *transport.Stream, reason string) (context.Context, context.CancelFunc, *time.Timer, error) {
	c.setPhase(types.PhaseStopping)
	if err := stream.Send(ctx, c.command(c.cfg.StatusCommand)); err != nil {
		return nil, nil, nil, c.transportError(err)
	}
	c.mu.Lock()
	c.statusSent = true
	c.mu.Unlock()

	c.logger.Info("stop command sent", map[string]any{
		"reason":        reason,
		"records":       c.ingestor.Records(),
		"drain_timeout": c.cfg.DrainTimeout.String(),
	})

	deadline := time.Now().Add(c.cfg.DrainTimeout)
	drainCtx, cancel := context.WithDeadline(ctx, deadline)
	c.setPhase(types.PhaseDraining)
	return drainCtx, cancel, time.NewTimer(c.cfg.DrainTimeout), nil
}

// feedError classifies an error returned by the ingestor.
func (c *Controller) feedError(ctx context.Context, err error, draining bool) error {
	var se *SessionError
	if errors.As(err, &se) {
		se.Phase = c.Phase()
		return se
	}
	if ctx.Err() != nil {
		return c.sessionError(ErrorCanceled, err)
	}
	if draining && errors.Is(err, context.DeadlineExceeded) {
		c.collector.IncDrainTimeout()
		c.logger.Warn("drain deadline expired while storage was blocked", map[string]any{
			"records": c.ingestor.Records(),
		})
		return c.sessionError(ErrorDrainTimeout, err)
	}
	return c.sessionError(ErrorStorage, err)
}

func (c *Controller) record(chunk transport.Chunk) {
	if c.cfg.Recorder == nil || c.recordFailed {
		return
	}
	if err := c.cfg.Recorder.WriteChunk(chunk.Data, chunk.ReceivedAt); err != nil {
		c.recordFailed = true
		c.logger.Warn("capture write failed, capture disabled", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Controller) command(cmd string) []byte {
	return []byte(cmd + c.cfg.Terminator)
}

func (c *Controller) transportError(err error) error {
	return c.sessionError(ErrorTransport, err)
}

func (c *Controller) sessionError(kind ErrorKind, err error) *SessionError {
	return &SessionError{
		Kind:    kind,
		Phase:   c.Phase(),
		Offset:  c.ingestor.Offset(),
		Records: c.ingestor.Records(),
		Err:     err,
	}
}

// finish closes the stream, flushes the policy and builds the result.
func (c *Controller) finish(ctx context.Context, startedAt time.Time, sessErr error, stream *transport.Stream) *Result {
	var tstats transport.Stats
	if stream != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CloseTimeout)
		closeErr := stream.Shutdown(closeCtx)
		cancel()
		if closeErr != nil {
			c.logger.Warn("outbound drain incomplete on close", map[string]any{
				"error": closeErr.Error(),
			})
			if sessErr == nil {
				sessErr = c.transportError(closeErr)
			}
		}
		tstats = stream.Stats()
		c.mu.Lock()
		c.transport = tstats
		c.mu.Unlock()
		c.collector.SetReadStalls(tstats.Stalls)
	}

	c.ingestor.Finish()

	// Best-effort flush on every termination path.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlushTimeout)
	flushErr := c.cfg.Policy.Flush(flushCtx)
	flushCancel()
	if flushErr != nil {
		c.logger.Warn("policy flush failed", map[string]any{
			"error": flushErr.Error(),
		})
		if sessErr == nil {
			sessErr = c.sessionError(ErrorStorage, fmt.Errorf("policy flush failed: %w", flushErr))
		}
	}

	c.mu.Lock()
	statusSent := c.statusSent
	c.mu.Unlock()

	stats := c.Statistics()
	stats.Phase = types.PhaseDisconnected
	stats.ReadStalls = tstats.Stalls

	outcome := DetermineOutcome(sessErr, statusSent, c.cfg.Target, stats.TotalRecords)
	result := &Result{
		Meta:           c.cfg.Meta,
		Outcome:        outcome,
		Err:            sessErr,
		StartedAt:      startedAt,
		Duration:       time.Since(startedAt),
		StatusSent:     statusSent,
		Statistics:     stats,
		PolicyStats:    c.cfg.Policy.Stats(),
		TransportStats: tstats,
	}

	if outcome.IsSuccess() {
		c.collector.IncSessionCompleted()
	} else {
		c.collector.IncSessionFailed()
	}
	ps := result.PolicyStats
	c.collector.AbsorbPolicyStats(ps.TotalRecords, ps.RecordsPersisted, ps.ChunksPersisted)

	if c.cfg.FileWriter != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlushTimeout)
		if err := WriteSummary(writeCtx, c.cfg.FileWriter, result); err != nil {
			c.logger.Warn("session summary write failed", map[string]any{
				"error": err.Error(),
			})
		}
		cancel()
	}

	fields := map[string]any{
		"outcome":        string(outcome.Status),
		"records":        stats.TotalRecords,
		"failed_records": stats.FailedRecords,
		"framing_errors": stats.FramingErrors,
		"bytes_received": stats.BytesReceived,
		"read_stalls":    stats.ReadStalls,
		"duration":       result.Duration.String(),
	}
	if sessErr != nil {
		fields["error"] = sessErr.Error()
		c.logger.Error("session ended", fields)
	} else {
		c.logger.Info("session ended", fields)
	}
	return result
}
