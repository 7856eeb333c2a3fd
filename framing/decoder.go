package framing

import (
	"errors"
	"io"
)

// DefaultReadSize is the read buffer size used by Decoder.
const DefaultReadSize = 64 * 1024

// Decoder frames a finite byte stream read from an io.Reader.
// It drives an Accumulator and is used for captures and files.
type Decoder struct {
	reader   io.Reader
	acc      *Accumulator
	buf      []byte
	eof      bool
	finished bool
	read     int64
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, cfg Config, opts ...Option) (*Decoder, error) {
	acc, err := NewAccumulator(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		reader: r,
		acc:    acc,
		buf:    make([]byte, DefaultReadSize),
	}, nil
}

// Next returns the next frame.
//
// Errors:
//   - io.EOF: stream ended and nothing is pending
//   - *FrameError: a framing error; call Next again unless IsFatal
//   - any other error: the reader failed
//
// A record cut off by the end of stream is reported once as a
// FrameErrorTruncated before io.EOF.
func (d *Decoder) Next() (Frame, error) {
	for {
		frame, ok, err := d.acc.TryExtract()
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return frame, nil
		}

		if d.eof {
			if !d.finished {
				d.finished = true
				if err := d.acc.Finish(); err != nil {
					return Frame{}, err
				}
			}
			return Frame{}, io.EOF
		}

		n, err := d.reader.Read(d.buf)
		if n > 0 {
			d.read += int64(n)
			if ferr := d.acc.Feed(d.buf[:n]); ferr != nil {
				return Frame{}, ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			return Frame{}, err
		}
	}
}

// BytesRead returns the number of bytes read from the underlying reader.
func (d *Decoder) BytesRead() int64 {
	return d.read
}

// Accumulator exposes the underlying accumulator.
func (d *Decoder) Accumulator() *Accumulator {
	return d.acc
}
