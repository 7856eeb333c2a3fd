// Package lode persists framed records to a Lode dataset.
//
// Records land in a Hive-partitioned dataset keyed by
// source/day/session_id/record_kind, encoded as JSONL.
package lode

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "framecap"

// DeriveDay computes the partition day from session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode sink configuration.
// All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition key naming the remote feed.
	Source string
	// Day is the partition key derived from session start time (YYYY-MM-DD UTC).
	Day string
	// SessionID is the partition key for the session identifier.
	SessionID string
	// Policy is the ingestion policy name, stamped on metrics records.
	Policy string
}

// Validate checks that every partition key is present.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("lode: dataset is required")
	case c.Source == "":
		return errors.New("lode: source is required")
	case c.Day == "":
		return errors.New("lode: day is required")
	case c.SessionID == "":
		return errors.New("lode: session_id is required")
	}
	return nil
}

// Client abstracts the Lode storage client.
// Real implementations connect to Lode; stubs are used for testing.
type Client interface {
	// WriteRecords writes a batch of framed records.
	// Must preserve ordering within the batch.
	WriteRecords(ctx context.Context, records []*types.Record) error

	// WriteChunks writes a batch of binary payload chunks.
	// Must preserve ordering within the batch.
	WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	config Config
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(config Config, client Client) *Sink {
	return &Sink{
		config: config,
		client: client,
	}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []*types.Record) error {
	return s.client.WriteRecords(ctx, records)
}

// WriteChunks implements policy.Sink.
func (s *Sink) WriteChunks(ctx context.Context, chunks []*types.PayloadChunk) error {
	return s.client.WriteChunks(ctx, chunks)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Verify Sink implements policy.Sink.
var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	Records [][]*types.Record
	Chunks  [][]*types.PayloadChunk
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client.
func (c *StubClient) WriteRecords(_ context.Context, records []*types.Record) error {
	c.Records = append(c.Records, records)
	return nil
}

// WriteChunks implements Client.
func (c *StubClient) WriteChunks(_ context.Context, chunks []*types.PayloadChunk) error {
	c.Chunks = append(c.Chunks, chunks)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
