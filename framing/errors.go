package framing

import (
	"errors"
	"fmt"
)

// maxRawSample bounds the raw bytes attached to a FrameError.
const maxRawSample = 32

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorNoise is a run of bytes that start neither variant.
	FrameErrorNoise FrameErrorKind = iota
	// FrameErrorMalformedText is a delimited text record that failed validation.
	FrameErrorMalformedText
	// FrameErrorUnterminatedText is a '$' followed by another '$' before any ';'.
	FrameErrorUnterminatedText
	// FrameErrorTextTooLong is a '$' with no delimiter within the text length cap.
	FrameErrorTextTooLong
	// FrameErrorTruncated is a fragment still pending when the stream ended.
	FrameErrorTruncated
	// FrameErrorOverflow is a noise run or declared length beyond its ceiling.
	FrameErrorOverflow
)

// String returns the kind's log name.
func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorNoise:
		return "noise"
	case FrameErrorMalformedText:
		return "malformed_text"
	case FrameErrorUnterminatedText:
		return "unterminated_text"
	case FrameErrorTextTooLong:
		return "text_too_long"
	case FrameErrorTruncated:
		return "truncated"
	case FrameErrorOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FrameError describes a framing failure with enough context to locate it in a capture.
type FrameError struct {
	Kind FrameErrorKind
	// Offset is the absolute stream offset of the first offending byte.
	Offset int64
	// Length is the number of bytes skipped or involved.
	Length int64
	// RecordID is the binary record the error belongs to, if any.
	RecordID int64
	// Raw is a bounded sample of the offending bytes.
	Raw []byte
	Msg string
	Err error
}

func (e *FrameError) Error() string {
	msg := fmt.Sprintf("%s at offset %d (%d bytes): %s", e.Kind, e.Offset, e.Length, e.Msg)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot be parsed further.
// Only overflows are fatal; everything else resynchronises.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorOverflow
}

// IsFatalFrameError returns true if err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// AsFrameError unwraps err to a *FrameError.
func AsFrameError(err error) (*FrameError, bool) {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr, true
	}
	return nil, false
}

// sample copies at most maxRawSample bytes of b.
func sample(b []byte) []byte {
	if len(b) > maxRawSample {
		b = b[:maxRawSample]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
