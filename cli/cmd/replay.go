package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/framing"
	"github.com/justapithecus/framecap/lode"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/metrics"
	"github.com/justapithecus/framecap/session"
	"github.com/justapithecus/framecap/types"
)

// ReplayCommand returns the replay command.
// Replay re-frames a capture file or raw byte dump into storage offline.
func ReplayCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Capture file or raw byte dump (required)", Required: true},
		&cli.StringFlag{Name: "source", Usage: "Source identifier for partitioning (required)"},
		&cli.StringFlag{Name: "session-id", Usage: "Session ID (default: random UUID)"},
		&cli.IntFlag{Name: "chunk-size", Usage: "Read size for raw input", Value: session.DefaultReplayChunkSize},
		&cli.IntFlag{Name: "max-storage-failures", Usage: "Failed records tolerated before aborting (-1: unlimited)"},
		&cli.DurationFlag{Name: "flush-timeout", Usage: "Max wait for the final storage flush", Value: session.DefaultFlushTimeout},
		&cli.StringFlag{Name: "layout", Usage: "Binary length layout, e.g. 5le or 2be", Value: framing.Layout5LE.String()},
		&cli.Uint64Flag{Name: "max-binary-length", Usage: "Largest declared binary length accepted"},
		&cli.Int64Flag{Name: "max-noise-bytes", Usage: "Longest noise run tolerated"},
		&cli.IntFlag{Name: "max-text-length", Usage: "Longest text payload scanned"},
		&cli.IntFlag{Name: "max-chunk-size", Usage: "Largest binary chunk emitted"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "info"},
		&cli.BoolFlag{Name: "quiet", Usage: "Suppress result output"},
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, policyFlags()...)

	return &cli.Command{
		Name:   "replay",
		Usage:  "Re-frame a capture file or raw byte dump into storage",
		Flags:  flags,
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	source := resolveString(c, "source", configVal(cfg, func(c *fcconfig.Config) string { return c.Source }))
	if source == "" {
		return cli.Exit("--source is required (flag or config file)", exitConfigError)
	}
	sessionID := c.String("session-id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	storage := resolveStorage(c, cfg)
	if err := validateStorageConfig(storage); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	pc := resolvePolicy(c, cfg)
	if err := validatePolicyConfig(pc); err != nil {
		return cli.Exit(fmt.Sprintf("invalid policy config: %v", err), exitConfigError)
	}
	fc, err := resolveFramingConfig(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	in, err := os.Open(c.String("input"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open input: %v", err), exitConfigError)
	}
	defer func() { _ = in.Close() }()

	meta := &types.SessionMeta{SessionID: sessionID, Source: source}
	logger, err := log.NewLoggerWithLevel(meta, c.String("log-level"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer func() { _ = logger.Sync() }()
	logger.Sugar().Debugf("replaying %s with %s policy", c.String("input"), pc.name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lodeCfg := lode.Config{
		Dataset:   storage.dataset,
		Source:    source,
		Day:       lode.DeriveDay(time.Now()),
		SessionID: sessionID,
		Policy:    pc.name,
	}
	client, err := buildLodeClient(ctx, storage, lodeCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create storage client: %v", err), exitStorage)
	}

	collector := metrics.NewCollector(pc.name, storage.backend, sessionID, source)
	pol, err := buildPolicy(pc, lode.NewInstrumentedSink(lode.NewSink(lodeCfg, client), collector), logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create policy: %v", err), exitConfigError)
	}
	defer func() { _ = pol.Close() }()

	result, err := session.Replay(ctx, in, session.ReplayConfig{
		Meta:               meta,
		Framing:            fc,
		MaxStorageFailures: resolveIntPtr(c, "max-storage-failures", configVal(cfg, func(c *fcconfig.Config) *int { return c.Session.MaxStorageFailures })),
		ChunkSize:          c.Int("chunk-size"),
		FlushTimeout:       c.Duration("flush-timeout"),
		Policy:             pol,
		Logger:             logger,
		Collector:          collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	persistMetrics(client, collector, logger)

	if !c.Bool("quiet") {
		printReplayResult(os.Stdout, result)
	}
	return cli.Exit("", result.Outcome.ExitCode())
}
