package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/cli/reader"
	"github.com/justapithecus/framecap/cli/render"
	"github.com/justapithecus/framecap/lode"
)

// statsQueryTimeout bounds a metrics read from storage.
const statsQueryTimeout = 30 * time.Second

// StatsCommand returns the stats command.
// It reads the most recent persisted metrics record and never dials a feed.
func StatsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), ConfigFlag,
		&cli.StringFlag{Name: "session-id", Usage: "Read metrics for a specific session"},
		&cli.StringFlag{Name: "source", Usage: "Filter by source partition"},
	)
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show persisted session metrics",
		Flags:  append(flags, storageFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sc := resolveStorage(c, cfg)
	if err := validateStorageConfig(sc); err != nil {
		return err
	}
	source := resolveString(c, "source", configVal(cfg, func(c *fcconfig.Config) string { return c.Source }))

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsQueryTimeout)
	defer cancel()

	snapshot, err := readMetricsSnapshot(ctx, sc, c.String("session-id"), source)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", snapshot)
	}
	return r.Render(snapshot)
}

func readMetricsSnapshot(ctx context.Context, sc storageChoice, sessionID, source string) (*reader.MetricsSnapshot, error) {
	ds, err := buildReadDataset(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	record, err := lode.QueryLatestMetrics(ctx, ds, sessionID, source)
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return nil, cli.Exit(fmt.Sprintf("no metrics found in dataset %q", sc.dataset), 1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics from Lode: %w", err)
	}

	snapshot, err := reader.ParseMetricsRecord(record)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics record: %w", err)
	}
	return snapshot, nil
}
