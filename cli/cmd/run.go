package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/framecap/capture"
	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/cli/tui"
	"github.com/justapithecus/framecap/framing"
	"github.com/justapithecus/framecap/lode"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/session"
	"github.com/justapithecus/framecap/transport"
	"github.com/justapithecus/framecap/types"
)

// Exit codes for run and replay.
const (
	exitCompleted   = session.ExitCodeCompleted
	exitIncomplete  = session.ExitCodeIncomplete
	exitTransport   = session.ExitCodeTransport
	exitStorage     = session.ExitCodeStorage
	exitProtocol    = session.ExitCodeProtocol
	exitConfigError = session.ExitCodeConfigError
)

// metricsWriteTimeout bounds persisting the metrics record after a session.
const metricsWriteTimeout = 30 * time.Second

// RunCommand returns the run command.
// This is the only command that talks to a remote feed.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		// Session identity
		&cli.StringFlag{Name: "source", Usage: "Source identifier for partitioning (required)"},
		&cli.StringFlag{Name: "session-id", Usage: "Session ID (default: random UUID)"},
		// Remote
		&cli.StringFlag{Name: "address", Usage: "Remote feed address host:port (required)"},
		&cli.StringFlag{Name: "network", Usage: "Dial network", Value: session.DefaultNetwork},
		&cli.StringFlag{Name: "token", Usage: "Authentication token sent as AUTH <token>", EnvVars: []string{"FRAMECAP_TOKEN"}},
		&cli.BoolFlag{Name: "tls", Usage: "Dial with TLS"},
		&cli.StringFlag{Name: "tls-server-name", Usage: "TLS server name override"},
		&cli.DurationFlag{Name: "dial-timeout", Usage: "Connection timeout", Value: transport.DefaultDialTimeout},
		&cli.IntFlag{Name: "read-size", Usage: "Transport read buffer size", Value: transport.DefaultReadSize},
		// Session lifecycle
		&cli.Int64Flag{Name: "target", Usage: "Record count that triggers STATUS (0 disables)"},
		&cli.StringFlag{Name: "status-command", Usage: "Stop command sent at target", Value: session.DefaultStatusCommand},
		&cli.StringFlag{Name: "terminator", Usage: "Outbound command terminator", Value: session.DefaultTerminator},
		&cli.DurationFlag{Name: "drain-timeout", Usage: "Max wait for the peer to close after STATUS", Value: session.DefaultDrainTimeout},
		&cli.DurationFlag{Name: "flush-timeout", Usage: "Max wait for the final storage flush", Value: session.DefaultFlushTimeout},
		&cli.IntFlag{Name: "max-storage-failures", Usage: "Failed records tolerated before aborting (-1: unlimited)"},
		// Framing
		&cli.StringFlag{Name: "layout", Usage: "Binary length layout, e.g. 5le or 2be", Value: framing.Layout5LE.String()},
		&cli.Uint64Flag{Name: "max-binary-length", Usage: "Largest declared binary length accepted"},
		&cli.Int64Flag{Name: "max-noise-bytes", Usage: "Longest noise run tolerated"},
		&cli.IntFlag{Name: "max-text-length", Usage: "Longest text payload scanned"},
		&cli.IntFlag{Name: "max-chunk-size", Usage: "Largest binary chunk emitted"},
		// Capture
		&cli.StringFlag{Name: "capture", Usage: "Write every inbound chunk to this capture file"},
		// Output
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "info"},
		&cli.BoolFlag{Name: "quiet", Usage: "Suppress result output"},
		&cli.BoolFlag{Name: "tui", Usage: "Show a live session monitor"},
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, policyFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Collect records from a remote feed into storage",
		Flags:  flags,
		Action: runAction,
	}
}

// runChoice is the fully resolved run configuration.
type runChoice struct {
	source    string
	sessionID string
	network   string
	address   string
	token     string
	tls       bool
	tlsName   string
	dialTO    time.Duration
	readSize  int

	target        int64
	statusCommand string
	terminator    string
	drainTimeout  time.Duration
	flushTimeout  time.Duration
	maxFailures   int

	framing     framing.Config
	capturePath string
	storage     storageChoice
	policy      policyChoice
	adapterType string
	logLevel    string
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	rc, err := resolveRunConfig(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	var ac *adapterChoice
	if rc.adapterType != "" {
		if ac, err = parseAdapterConfigWithPrecedence(c, cfg, rc.adapterType); err != nil {
			return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitConfigError)
		}
	}

	meta := &types.SessionMeta{
		SessionID: rc.sessionID,
		Source:    rc.source,
		Remote:    rc.address,
	}
	logger, err := log.NewLoggerWithLevel(meta, rc.logLevel)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer func() { _ = logger.Sync() }()
	logger.Sugar().Debugf("dialing %s %s with %s policy into %s storage", rc.network, rc.address, rc.policy.name, rc.storage.backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startedAt := time.Now()
	lodeCfg := lode.Config{
		Dataset:   rc.storage.dataset,
		Source:    rc.source,
		Day:       lode.DeriveDay(startedAt),
		SessionID: rc.sessionID,
		Policy:    rc.policy.name,
	}
	client, err := buildLodeClient(ctx, rc.storage, lodeCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create storage client: %v", err), exitStorage)
	}

	collector := metrics.NewCollector(rc.policy.name, rc.storage.backend, rc.sessionID, rc.source)
	sink := lode.NewInstrumentedSink(lode.NewSink(lodeCfg, client), collector)
	pol, err := buildPolicy(rc.policy, sink, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create policy: %v", err), exitConfigError)
	}
	defer func() { _ = pol.Close() }()

	sessCfg := session.Config{
		Meta:               meta,
		Network:            rc.network,
		Address:            rc.address,
		Token:              rc.token,
		Terminator:         rc.terminator,
		StatusCommand:      rc.statusCommand,
		Target:             rc.target,
		DrainTimeout:       rc.drainTimeout,
		FlushTimeout:       rc.flushTimeout,
		MaxStorageFailures: rc.maxFailures,
		Framing:            rc.framing,
		Transport:          rc.transportConfig(),
		Policy:             pol,
		Logger:             logger,
		Collector:          collector,
		FileWriter:         client,
	}

	if rc.capturePath != "" {
		f, err := os.Create(rc.capturePath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to create capture file: %v", err), exitConfigError)
		}
		defer func() { _ = f.Close() }()

		recorder, err := capture.NewWriter(f, capture.Header{
			SessionID: rc.sessionID,
			Source:    rc.source,
			Remote:    rc.address,
			Layout:    rc.framing.Layout.String(),
			StartedAt: startedAt,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to start capture: %v", err), exitConfigError)
		}
		sessCfg.Recorder = recorder
	}

	ctrl, err := session.New(sessCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	// First signal stops gracefully (STATUS then drain); second cancels.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Info("signal received, stopping session", nil)
		ctrl.Stop()
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := ctrl.Start(ctx); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	done := make(chan struct{})
	var result *session.Result
	go func() {
		result = ctrl.Wait()
		close(done)
	}()

	if c.Bool("tui") {
		if err := tui.RunMonitor(ctrl, done); err != nil {
			logger.Warn("monitor exited", map[string]any{"error": err.Error()})
		}
	}
	<-done

	persistMetrics(client, collector, logger)

	if ac != nil {
		a, err := buildAdapter(ac)
		if err != nil {
			logger.Warn("completion adapter unavailable", map[string]any{"error": err.Error()})
		} else {
			publishEvent(a, buildSessionCompletedEvent(result, rc.storage, lodeCfg.Day), logger)
			_ = a.Close()
		}
	}

	if !c.Bool("quiet") {
		printSessionResult(os.Stdout, result, rc.policy.name)
	}

	return cli.Exit("", result.Outcome.ExitCode())
}

// resolveRunConfig merges flags with the config file and validates the result.
func resolveRunConfig(c *cli.Context, cfg *fcconfig.Config) (*runChoice, error) {
	var err error
	rc := &runChoice{
		source:    resolveString(c, "source", configVal(cfg, func(c *fcconfig.Config) string { return c.Source })),
		sessionID: c.String("session-id"),
		network:   resolveString(c, "network", configVal(cfg, func(c *fcconfig.Config) string { return c.Remote.Network })),
		address:   resolveString(c, "address", configVal(cfg, func(c *fcconfig.Config) string { return c.Remote.Address })),
		token:     resolveString(c, "token", configVal(cfg, func(c *fcconfig.Config) string { return c.Remote.Token })),
		tls:       resolveBool(c, "tls", configVal(cfg, func(c *fcconfig.Config) bool { return c.Remote.TLS })),
		tlsName:   resolveString(c, "tls-server-name", configVal(cfg, func(c *fcconfig.Config) string { return c.Remote.TLSServerName })),
		dialTO:    resolveDuration(c, "dial-timeout", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Remote.DialTimeout.Duration })),
		readSize:  resolveInt(c, "read-size", configVal(cfg, func(c *fcconfig.Config) int { return c.Remote.ReadSize })),

		target:        resolveInt64Ptr(c, "target", configVal(cfg, func(c *fcconfig.Config) *int64 { return c.Session.Target })),
		statusCommand: resolveString(c, "status-command", configVal(cfg, func(c *fcconfig.Config) string { return c.Session.StatusCommand })),
		terminator:    resolveString(c, "terminator", configVal(cfg, func(c *fcconfig.Config) string { return c.Session.Terminator })),
		drainTimeout:  resolveDuration(c, "drain-timeout", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Session.DrainTimeout.Duration })),
		flushTimeout:  resolveDuration(c, "flush-timeout", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Session.FlushTimeout.Duration })),
		maxFailures:   resolveIntPtr(c, "max-storage-failures", configVal(cfg, func(c *fcconfig.Config) *int { return c.Session.MaxStorageFailures })),

		capturePath: resolveString(c, "capture", configVal(cfg, func(c *fcconfig.Config) string { return c.Capture.Path })),
		storage:     resolveStorage(c, cfg),
		policy:      resolvePolicy(c, cfg),
		adapterType: resolveString(c, "adapter", configVal(cfg, func(c *fcconfig.Config) string { return c.Adapter.Type })),
		logLevel:    c.String("log-level"),
	}

	if rc.terminator, err = unescape(rc.terminator); err != nil {
		return nil, fmt.Errorf("invalid --terminator: %w", err)
	}
	if rc.source == "" {
		return nil, errors.New("--source is required (flag or config file)")
	}
	if rc.address == "" {
		return nil, errors.New("--address is required (flag or config remote.address)")
	}
	if rc.target < 0 {
		return nil, fmt.Errorf("--target must be >= 0, got %d", rc.target)
	}
	if err := validateStorageConfig(rc.storage); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(rc.policy); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}

	if rc.framing, err = resolveFramingConfig(c, cfg); err != nil {
		return nil, err
	}

	if rc.sessionID == "" {
		rc.sessionID = uuid.NewString()
	}
	return rc, nil
}

func (rc *runChoice) transportConfig() transport.Config {
	tc := transport.Config{
		ReadSize:    rc.readSize,
		DialTimeout: rc.dialTO,
	}
	if rc.tls {
		tc.TLS = &tls.Config{
			ServerName: rc.tlsName,
			MinVersion: tls.VersionTLS12,
		}
	}
	return tc
}

// resolveFramingConfig builds the framer config shared by run and replay.
func resolveFramingConfig(c *cli.Context, cfg *fcconfig.Config) (framing.Config, error) {
	fcfg := configVal(cfg, func(c *fcconfig.Config) fcconfig.FramingConfig { return c.Framing })

	layoutName := resolveString(c, "layout", fcfg.Layout)
	layout, err := framing.ParseLengthLayout(layoutName)
	if err != nil {
		return framing.Config{}, fmt.Errorf("invalid --layout: %w", err)
	}
	tags, err := fcfg.TagBytes()
	if err != nil {
		return framing.Config{}, err
	}

	maxBinary := c.Uint64("max-binary-length")
	if !c.IsSet("max-binary-length") && fcfg.MaxBinaryLength != 0 {
		maxBinary = fcfg.MaxBinaryLength
	}

	fc := framing.Config{
		Layout:          layout,
		Tags:            tags,
		MaxBinaryLength: maxBinary,
		MaxNoiseBytes:   resolveInt64(c, "max-noise-bytes", fcfg.MaxNoiseBytes),
		MaxTextLength:   resolveInt(c, "max-text-length", fcfg.MaxTextLength),
		MaxChunkSize:    resolveInt(c, "max-chunk-size", fcfg.MaxChunkSize),
	}
	if err := fc.Validate(); err != nil {
		return framing.Config{}, fmt.Errorf("invalid framing config: %w", err)
	}
	return fc, nil
}

// unescape interprets Go escapes so a literal \r\n on the command line is CRLF.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	return strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
}

// persistMetrics writes the collector snapshot as a metrics record.
// Failures are logged; the session outcome is already decided.
func persistMetrics(client *lode.LodeClient, collector *metrics.Collector, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsWriteTimeout)
	defer cancel()

	if err := client.WriteMetrics(ctx, collector.Snapshot(), time.Now()); err != nil {
		logger.Warn("metrics record not persisted", map[string]any{"error": err.Error()})
	}
}
