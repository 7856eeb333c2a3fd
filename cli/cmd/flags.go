// Package cmd provides CLI commands for the framecap binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	fcconfig "github.com/justapithecus/framecap/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}

	// ConfigFlag points at a framecap.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to framecap.yaml (flags override file values)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// storageFlags are shared by run, replay and stats.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID (default: \"framecap\")"},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (R2, MinIO)"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force S3 path-style addressing"},
	}
}

// loadConfig loads --config when set. A nil config means flags only.
func loadConfig(c *cli.Context) (*fcconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return fcconfig.Load(path)
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *fcconfig.Config, get func(*fcconfig.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value when set on the command line,
// then the config value, then the flag default.
func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) || configValue == "" {
		return c.String(name)
	}
	return configValue
}

// resolveInt follows the resolveString precedence. A zero config value
// means unset.
func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) || configValue == 0 {
		return c.Int(name)
	}
	return configValue
}

// resolveInt64 follows the resolveString precedence. A zero config value
// means unset.
func resolveInt64(c *cli.Context, name string, configValue int64) int64 {
	if c.IsSet(name) || configValue == 0 {
		return c.Int64(name)
	}
	return configValue
}

// resolveIntPtr distinguishes an explicit zero in config from an omitted key.
func resolveIntPtr(c *cli.Context, name string, configValue *int) int {
	if c.IsSet(name) || configValue == nil {
		return c.Int(name)
	}
	return *configValue
}

// resolveInt64Ptr distinguishes an explicit zero in config from an omitted key.
func resolveInt64Ptr(c *cli.Context, name string, configValue *int64) int64 {
	if c.IsSet(name) || configValue == nil {
		return c.Int64(name)
	}
	return *configValue
}

// resolveBool lets config enable a flag; the command line always wins.
func resolveBool(c *cli.Context, name string, configValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return configValue || c.Bool(name)
}

// resolveDuration follows the resolveString precedence. A zero config
// value means unset.
func resolveDuration(c *cli.Context, name string, configValue time.Duration) time.Duration {
	if c.IsSet(name) || configValue == 0 {
		return c.Duration(name)
	}
	return configValue
}
