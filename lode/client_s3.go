package lode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the framecap dataset in an S3 (or S3-compatible) bucket.
// Credentials always come from the AWS default chain.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. MinIO or R2.
	Endpoint string
	// UsePathStyle puts the bucket in the URL path. Most S3-compatible
	// providers need it.
	UsePathStyle bool
}

// Validate rejects a missing bucket or a malformed endpoint.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid S3 endpoint %q", c.Endpoint)
		}
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" (or a bare "bucket").
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, strings.Trim(prefix, "/")
}

func (c *S3Config) loadOptions() []func(*config.LoadOptions) error {
	if c.Region == "" {
		return nil
	}
	return []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
}

func (c *S3Config) applyClientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		endpoint := c.Endpoint
		o.BaseEndpoint = &endpoint
	}
	o.UsePathStyle = c.UsePathStyle
}

// NewS3Factory returns a store factory whose stores share one S3 client.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, s3cfg.loadOptions()...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for bucket %s: %w", s3cfg.Bucket, err)
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.applyClientOptions)

	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}
	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}

// NewLodeS3Client opens the record sink against S3.
func NewLodeS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeClient, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewLodeClientWithFactory(cfg, factory)
}
