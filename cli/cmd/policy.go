package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/policy"
)

// Policy names accepted by --policy.
const (
	policyStrict    = "strict"
	policyStreaming = "streaming"
	policyPipelined = "pipelined"
)

// policyChoice holds parsed policy configuration.
type policyChoice struct {
	name           string
	flushCount     int
	flushInterval  time.Duration
	maxBufferBytes int64
	queueSize      int
}

func policyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "policy", Usage: "Storage policy: strict, streaming or pipelined", Value: policyStrict},
		&cli.IntFlag{Name: "flush-count", Usage: "Flush after N records (streaming policy)"},
		&cli.DurationFlag{Name: "flush-interval", Usage: "Flush every interval (streaming policy)"},
		&cli.Int64Flag{Name: "max-buffer-bytes", Usage: "Blocking flush threshold in bytes (streaming policy)"},
		&cli.IntFlag{Name: "queue-size", Usage: "Queued writes before ingestion blocks (pipelined policy)"},
	}
}

// resolvePolicy merges policy flags with the config file.
func resolvePolicy(c *cli.Context, cfg *fcconfig.Config) policyChoice {
	return policyChoice{
		name:           resolveString(c, "policy", configVal(cfg, func(c *fcconfig.Config) string { return c.Policy.Name })),
		flushCount:     resolveInt(c, "flush-count", configVal(cfg, func(c *fcconfig.Config) int { return c.Policy.FlushCount })),
		flushInterval:  resolveDuration(c, "flush-interval", configVal(cfg, func(c *fcconfig.Config) time.Duration { return c.Policy.FlushInterval.Duration })),
		maxBufferBytes: resolveInt64(c, "max-buffer-bytes", configVal(cfg, func(c *fcconfig.Config) int64 { return c.Policy.MaxBufferBytes })),
		queueSize:      resolveInt(c, "queue-size", configVal(cfg, func(c *fcconfig.Config) int { return c.Policy.QueueSize })),
	}
}

func validatePolicyConfig(choice policyChoice) error {
	switch choice.name {
	case policyStrict:
		if choice.flushCount > 0 || choice.flushInterval > 0 || choice.maxBufferBytes > 0 || choice.queueSize > 0 {
			fmt.Fprintf(os.Stderr, "Warning: flush/buffer/queue flags ignored for strict policy\n")
		}
		return nil

	case policyStreaming:
		if choice.flushCount <= 0 && choice.flushInterval <= 0 {
			return errors.New("streaming policy requires --flush-count > 0 or --flush-interval > 0")
		}
		if choice.maxBufferBytes < 0 {
			return fmt.Errorf("--max-buffer-bytes must be >= 0, got %d", choice.maxBufferBytes)
		}
		return nil

	case policyPipelined:
		if choice.queueSize < 0 {
			return fmt.Errorf("--queue-size must be >= 0, got %d", choice.queueSize)
		}
		return nil

	default:
		return fmt.Errorf("invalid policy: %s (must be strict, streaming or pipelined)", choice.name)
	}
}

func buildPolicy(choice policyChoice, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch choice.name {
	case policyStrict:
		return policy.NewStrictPolicy(sink), nil

	case policyStreaming:
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:     choice.flushCount,
			FlushInterval:  choice.flushInterval,
			MaxBufferBytes: choice.maxBufferBytes,
			Logger:         logger,
		})

	case policyPipelined:
		return policy.NewPipelinedPolicy(sink, policy.PipelinedConfig{
			QueueSize: choice.queueSize,
			Logger:    logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown policy: %s", choice.name)
	}
}
