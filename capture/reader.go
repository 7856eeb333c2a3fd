package capture

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Reader replays a capture stream chunk by chunk.
type Reader struct {
	r      io.Reader
	header Header
	seq    int64
	offset int64
}

// NewReader reads and validates the header frame.
func NewReader(r io.Reader) (*Reader, error) {
	payload, err := readFrame(r)
	if err == io.EOF {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "empty capture stream", Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, err
	}

	var h Header
	if err := msgpack.Unmarshal(payload, &h); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode capture header", Err: err}
	}
	if h.Type != HeaderType {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("not a capture stream: first frame type %q", h.Type)}
	}
	if h.Version != FormatVersion {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unsupported capture version %d", h.Version)}
	}
	return &Reader{r: r, header: h}, nil
}

// Header returns the capture header.
func (cr *Reader) Header() Header {
	return cr.header
}

// Next returns the next chunk, or io.EOF when the capture ends cleanly.
// Chunks must arrive with consecutive seq numbers and contiguous offsets.
func (cr *Reader) Next() (*Chunk, error) {
	payload, err := readFrame(cr.r)
	if err != nil {
		return nil, err
	}

	var c Chunk
	if err := msgpack.Unmarshal(payload, &c); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode capture chunk", Err: err}
	}
	if c.Type != ChunkType {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unexpected frame type %q", c.Type)}
	}
	if c.Seq != cr.seq+1 || c.Offset != cr.offset {
		return nil, &FrameError{
			Kind: FrameErrorSequence,
			Msg: fmt.Sprintf("chunk seq %d at offset %d does not follow seq %d ending at offset %d",
				c.Seq, c.Offset, cr.seq, cr.offset),
		}
	}
	cr.seq = c.Seq
	cr.offset += int64(len(c.Data))
	return &c, nil
}
