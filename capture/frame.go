// Package capture records the raw inbound byte stream of a session as
// length-prefixed msgpack frames, so a session can be re-framed offline
// with its original chunk boundaries.
//
// A capture file is one Header frame followed by Chunk frames. Each frame
// is a 4-byte big-endian payload length followed by a msgpack payload.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// MaxChunkSize bounds the raw bytes carried by one chunk frame.
	MaxChunkSize = 8 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	HeaderType = "framecap_capture"
	ChunkType  = "chunk"
)

// FormatVersion is the capture file format version written in headers.
const FormatVersion = 1

// Header opens every capture file.
type Header struct {
	Type      string    `msgpack:"type"`
	Version   int       `msgpack:"version"`
	SessionID string    `msgpack:"session_id"`
	Source    string    `msgpack:"source"`
	Remote    string    `msgpack:"remote,omitempty"`
	Layout    string    `msgpack:"layout"`
	StartedAt time.Time `msgpack:"started_at"`
}

// Chunk is one inbound transport read, exactly as received.
type Chunk struct {
	Type       string    `msgpack:"type"`
	Seq        int64     `msgpack:"seq"`
	Offset     int64     `msgpack:"offset"`
	ReceivedAt time.Time `msgpack:"received_at"`
	Data       []byte    `msgpack:"data"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error or unexpected frame type.
	FrameErrorDecode
	// FrameErrorSequence indicates a chunk whose seq or offset does not follow its predecessor.
	FrameErrorSequence
)

// FrameError represents a capture decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether reading cannot continue past this error.
// Only decode errors of a single frame are recoverable.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError returns true if the error is a fatal capture frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// readFrame reads a single length-prefixed payload.
// Returns io.EOF only when the stream ends exactly on a frame boundary.
func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// writeFrame marshals v and writes it with its length prefix.
func writeFrame(w io.Writer, v any) (int, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("capture: encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return 0, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return w.Write(buf)
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// maxSniffHeader bounds how far Sniff looks ahead for a header frame.
const maxSniffHeader = 4096

// Sniff reports whether br starts with a capture header frame.
// It only peeks, so br can be handed to a raw reader when Sniff is false.
func Sniff(br *bufio.Reader) bool {
	prefix, err := br.Peek(LengthPrefixSize)
	if err != nil {
		return false
	}
	n := int(binary.BigEndian.Uint32(prefix))
	if n == 0 || n > maxSniffHeader || LengthPrefixSize+n > br.Size() {
		return false
	}
	frame, err := br.Peek(LengthPrefixSize + n)
	if err != nil {
		return false
	}
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(frame[LengthPrefixSize:], &probe); err != nil {
		return false
	}
	return probe.Type == HeaderType
}
