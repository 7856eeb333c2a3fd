package config

import (
	"fmt"
	"time"
)

// Config represents a framecap.yaml configuration file.
// All values are optional and act as defaults for framecap run flags.
// CLI flags always override config values.
type Config struct {
	Source  string        `yaml:"source"`
	Remote  RemoteConfig  `yaml:"remote"`
	Session SessionConfig `yaml:"session"`
	Framing FramingConfig `yaml:"framing"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Capture CaptureConfig `yaml:"capture"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// RemoteConfig locates and authenticates against the peer.
type RemoteConfig struct {
	Address       string   `yaml:"address"`
	Network       string   `yaml:"network"`
	Token         string   `yaml:"token"`
	TLS           bool     `yaml:"tls"`
	TLSServerName string   `yaml:"tls_server_name"`
	DialTimeout   Duration `yaml:"dial_timeout"`
	ReadSize      int      `yaml:"read_size"`
}

// SessionConfig holds session lifecycle defaults.
type SessionConfig struct {
	Target             *int64   `yaml:"target,omitempty"`
	StatusCommand      string   `yaml:"status_command"`
	Terminator         string   `yaml:"terminator"`
	DrainTimeout       Duration `yaml:"drain_timeout"`
	FlushTimeout       Duration `yaml:"flush_timeout"`
	MaxStorageFailures *int     `yaml:"max_storage_failures,omitempty"`
}

// FramingConfig holds framer limits. Zero values use framing defaults.
type FramingConfig struct {
	Layout          string `yaml:"layout"`
	Tags            []int  `yaml:"tags,omitempty"`
	MaxBinaryLength uint64 `yaml:"max_binary_length"`
	MaxNoiseBytes   int64  `yaml:"max_noise_bytes"`
	MaxTextLength   int    `yaml:"max_text_length"`
	MaxChunkSize    int    `yaml:"max_chunk_size"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name           string   `yaml:"name"`
	FlushCount     int      `yaml:"flush_count"`
	FlushInterval  Duration `yaml:"flush_interval"`
	MaxBufferBytes int64    `yaml:"max_buffer_bytes"`
	QueueSize      int      `yaml:"queue_size"`
}

// CaptureConfig enables the raw chunk capture log.
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Subject string            `yaml:"subject,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Backoff Duration          `yaml:"backoff,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// TagBytes converts the configured binary tags to bytes.
// Returns nil when none are configured so framing defaults apply.
func (f FramingConfig) TagBytes() ([]byte, error) {
	if len(f.Tags) == 0 {
		return nil, nil
	}
	tags := make([]byte, 0, len(f.Tags))
	for _, t := range f.Tags {
		if t < 0 || t > 0xFF {
			return nil, fmt.Errorf("framing tag %d out of byte range", t)
		}
		tags = append(tags, byte(t))
	}
	return tags, nil
}
