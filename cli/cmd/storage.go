package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	fcconfig "github.com/justapithecus/framecap/cli/config"
	"github.com/justapithecus/framecap/lode"
)

// storageChoice holds resolved storage configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStorage merges storage flags with the config file.
func resolveStorage(c *cli.Context, cfg *fcconfig.Config) storageChoice {
	sc := storageChoice{
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(c *fcconfig.Config) string { return c.Storage.Dataset })),
		backend:   resolveString(c, "storage-backend", configVal(cfg, func(c *fcconfig.Config) string { return c.Storage.Backend })),
		path:      resolveString(c, "storage-path", configVal(cfg, func(c *fcconfig.Config) string { return c.Storage.Path })),
		region:    resolveString(c, "storage-region", configVal(cfg, func(c *fcconfig.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(c *fcconfig.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(c *fcconfig.Config) bool { return c.Storage.S3PathStyle })),
	}
	if sc.dataset == "" {
		sc.dataset = lode.DefaultDataset
	}
	return sc
}

// validateStorageConfig checks that a usable backend and path are present.
func validateStorageConfig(sc storageChoice) error {
	switch {
	case sc.backend == "":
		return errors.New("--storage-backend is required (fs or s3)")
	case sc.backend != "fs" && sc.backend != "s3":
		return fmt.Errorf("invalid --storage-backend %q (must be fs or s3)", sc.backend)
	case sc.path == "":
		return errors.New("--storage-path is required")
	}
	if sc.backend == "s3" {
		if bucket, _ := lode.ParseS3Path(sc.path); bucket == "" {
			return fmt.Errorf("--storage-path %q must start with a bucket name", sc.path)
		}
	}
	return nil
}

func (sc storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(sc.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       sc.region,
		Endpoint:     sc.endpoint,
		UsePathStyle: sc.pathStyle,
	}
}

// buildLodeClient creates the write client for the chosen backend.
func buildLodeClient(ctx context.Context, sc storageChoice, cfg lode.Config) (*lode.LodeClient, error) {
	switch sc.backend {
	case "fs":
		return lode.NewLodeClient(cfg, sc.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, sc.s3Config())
	default:
		return nil, fmt.Errorf("unknown storage-backend: %s (must be fs or s3)", sc.backend)
	}
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, sc storageChoice) (lodelibrary.Dataset, error) {
	switch sc.backend {
	case "fs":
		return lode.NewReadDatasetFS(sc.dataset, sc.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, sc.dataset, sc.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", sc.backend)
	}
}

// buildStoragePath renders the partition location of a session for
// completion events. Unknown backends get the bare partition path.
func buildStoragePath(sc storageChoice, dataset, source, day, sessionID string) string {
	partition := fmt.Sprintf("datasets/%s/partitions/source=%s/day=%s/session_id=%s",
		dataset, source, day, sessionID)

	switch sc.backend {
	case "fs":
		abs, err := filepath.Abs(sc.path)
		if err != nil {
			abs = sc.path
		}
		return "file://" + filepath.ToSlash(filepath.Join(abs, partition))
	case "s3":
		bucket, prefix := lode.ParseS3Path(sc.path)
		if prefix = strings.Trim(prefix, "/"); prefix != "" {
			return "s3://" + bucket + "/" + prefix + "/" + partition
		}
		return "s3://" + bucket + "/" + partition
	default:
		return partition
	}
}
