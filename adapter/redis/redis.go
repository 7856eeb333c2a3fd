// Package redis announces completed sessions on a Redis pub/sub channel.
//
// The channel name may contain {source}, replaced by the event's source,
// so subscribers can follow one feed with SUBSCRIBE or all of them with
// PSUBSCRIBE.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/framecap/adapter"
)

const (
	DefaultChannel = "framecap:session_completed"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

const sourcePlaceholder = "{source}"

// Config configures the pub/sub adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db].
	URL     string
	Channel string
	// Timeout bounds each PUBLISH (default 5s).
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter publishes completion events with PUBLISH.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New parses the URL and fills in defaults. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// ChannelFor returns the channel an event from source is published on.
func (a *Adapter) ChannelFor(source string) string {
	return strings.ReplaceAll(a.cfg.Channel, sourcePlaceholder, source)
}

// Publish sends event as JSON. A closed client is not retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event.Source)

	attempts, err := adapter.Retry(ctx, a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		if err := a.client.Publish(pctx, channel, payload).Err(); err != nil {
			if errors.Is(err, goredis.ErrClosed) {
				return adapter.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("redis: publish to %s canceled: %w", channel, err)
	}
	return fmt.Errorf("redis: publish to %s failed after %d attempts: %w", channel, attempts, err)
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
