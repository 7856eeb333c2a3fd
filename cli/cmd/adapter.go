package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/framecap/adapter"
	natsadapter "github.com/justapithecus/framecap/adapter/nats"
	redisadapter "github.com/justapithecus/framecap/adapter/redis"
	"github.com/justapithecus/framecap/adapter/webhook"
	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/session"
	"github.com/justapithecus/framecap/types"
)

// adapterPublishTimeout bounds the whole publish, retries included.
const adapterPublishTimeout = 30 * time.Second

// adapterChoice holds parsed adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	subject     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
	backoff     time.Duration
}

func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "adapter", Usage: "Completion adapter: webhook, redis or nats"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Adapter endpoint URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
		&cli.StringFlag{Name: "adapter-subject", Usage: "NATS subject"},
		&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header as Key=Value (repeatable)"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt timeout", Value: 10 * time.Second},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Retry attempts on failure", Value: 3},
		&cli.DurationFlag{Name: "adapter-backoff", Usage: "Delay before the first retry", Value: adapter.DefaultBackoff},
	}
}

// parseAdapterConfigWithPrecedence resolves adapter settings for adapterType.
// CLI flags win over config values; config headers are merged under CLI headers.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *fcconfig.Config, adapterType string) (*adapterChoice, error) {
	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *fcconfig.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *fcconfig.Config) string { return c.Adapter.Channel })),
		subject:     resolveString(c, "adapter-subject", configVal(cfg, func(c *fcconfig.Config) string { return c.Adapter.Subject })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     resolveIntPtr(c, "adapter-retries", configVal(cfg, func(c *fcconfig.Config) *int { return c.Adapter.Retries })),
		backoff:     resolveDuration(c, "adapter-backoff", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Adapter.Backoff.Duration })),
		headers:     map[string]string{},
	}

	for k, v := range configVal(cfg, func(c *fcconfig.Config) map[string]string { return c.Adapter.Headers }) {
		ac.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected Key=Value)", h)
		}
		ac.headers[k] = v
	}

	switch adapterType {
	case "webhook":
		if ac.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=webhook")
		}
	case "redis":
		if ac.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=redis")
		}
	case "nats":
		if ac.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=nats")
		}
	default:
		return nil, fmt.Errorf("unknown adapter type: %q (must be webhook, redis or nats)", adapterType)
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}
	return ac, nil
}

func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
			Backoff: ac.backoff,
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
			Backoff: ac.backoff,
		})
	case "nats":
		return natsadapter.New(natsadapter.Config{
			URL:     ac.url,
			Subject: ac.subject,
			Timeout: ac.timeout,
			Retries: ac.retries,
			Backoff: ac.backoff,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %q", ac.adapterType)
	}
}

// buildSessionCompletedEvent flattens a session result into the published event.
func buildSessionCompletedEvent(result *session.Result, sc storageChoice, day string) *adapter.SessionCompletedEvent {
	stats := result.Statistics
	event := &adapter.SessionCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeSessionCompleted,
		SessionID:       result.Meta.SessionID,
		Source:          result.Meta.Source,
		Day:             day,
		Remote:          result.Meta.Remote,
		Outcome:         string(result.Outcome.Status),
		ExitCode:        result.Outcome.ExitCode(),
		StoragePath:     buildStoragePath(sc, sc.dataset, result.Meta.Source, day, result.Meta.SessionID),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		StatusSent:      result.StatusSent,
		TotalRecords:    stats.TotalRecords,
		TextRecords:     stats.TextRecords,
		BinaryRecords:   stats.BinaryRecords,
		FailedRecords:   stats.FailedRecords,
		FramingErrors:   stats.FramingErrors,
		BytesReceived:   stats.BytesReceived,
		DurationMs:      result.Duration.Milliseconds(),
	}
	return event
}

// publishEvent delivers the completion event. Failures are logged, never fatal:
// the session data is already durable.
func publishEvent(a adapter.Adapter, event *adapter.SessionCompletedEvent, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), adapterPublishTimeout)
	defer cancel()

	if err := a.Publish(ctx, event); err != nil {
		logger.Warn("completion event not published", map[string]any{
			"error":   err.Error(),
			"outcome": event.Outcome,
		})
		return
	}
	logger.Info("completion event published", map[string]any{"outcome": event.Outcome})
}
