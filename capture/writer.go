package capture

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Writer appends inbound chunks to a capture stream.
// Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	seq    int64
	offset int64
	frames int64
	bytes  int64
}

// NewWriter writes the header and returns a Writer positioned for chunks.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Type = HeaderType
	h.Version = FormatVersion
	if h.StartedAt.IsZero() {
		h.StartedAt = time.Now()
	}
	if _, err := writeFrame(w, h); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteChunk records one transport read. Chunks larger than MaxChunkSize
// are split across frames so every frame stays under MaxFrameSize.
func (cw *Writer) WriteChunk(data []byte, receivedAt time.Time) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for {
		n := min(len(data), MaxChunkSize)
		cw.seq++
		frame := Chunk{
			Type:       ChunkType,
			Seq:        cw.seq,
			Offset:     cw.offset,
			ReceivedAt: receivedAt.UTC(),
			Data:       data[:n],
		}
		written, err := writeFrame(cw.w, frame)
		if err != nil {
			cw.seq--
			return fmt.Errorf("capture: write chunk %d: %w", frame.Seq, err)
		}
		cw.offset += int64(n)
		cw.frames++
		cw.bytes += int64(written)

		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

// Stats reports chunk frames and total bytes written after the header.
func (cw *Writer) Stats() (frames, bytes int64) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.frames, cw.bytes
}
