package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// ErrInvalidFilename rejects sidecar names that would leave the session's
// files/ directory.
var ErrInvalidFilename = errors.New("invalid sidecar filename")

// FileWriter stores small per-session files, such as the session summary,
// beside the record partitions. Sidecars are plain objects and never
// appear in dataset snapshots.
type FileWriter interface {
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

var (
	_ FileWriter = (*LodeClient)(nil)
	_ FileWriter = (*StubFileWriter)(nil)
)

func validSidecarName(name string) bool {
	return name != "" && name != "." && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// PutFile writes data under the session's files/ prefix. The content type
// is not stored; Lode stores carry raw bytes only.
func (c *LodeClient) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if !validSidecarName(filename) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	store, err := c.sidecarStore()
	if err != nil {
		return WrapInitError(err, c.config.Dataset)
	}

	p := c.FilePath(filename)
	return WrapWriteError(store.Put(ctx, p, bytes.NewReader(data)), p)
}

// sidecarStore opens the raw store once per client.
func (c *LodeClient) sidecarStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// FilePath is the object key of a sidecar:
// datasets/<dataset>/partitions/source=<s>/day=<d>/session_id=<id>/files/<name>.
func (c *LodeClient) FilePath(filename string) string {
	return path.Join(
		"datasets", c.config.Dataset, "partitions",
		"source="+c.config.Source,
		"day="+c.config.Day,
		"session_id="+c.config.SessionID,
		"files", filename,
	)
}

// StubFileRecord is one captured PutFile call.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StubFileWriter captures sidecar writes in memory for tests.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        bytes.Clone(data),
	})
	return nil
}
