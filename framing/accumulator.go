package framing

import (
	"fmt"
	"time"

	"github.com/justapithecus/framecap/types"
)

// FrameKind discriminates accumulator output.
type FrameKind int

const (
	// FrameText carries a complete text record.
	FrameText FrameKind = iota
	// FrameChunk carries a slice of an in-progress binary payload.
	FrameChunk
	// FrameBinary carries a completed binary record's metadata.
	// All of its chunks have been emitted before it.
	FrameBinary
)

// String returns the kind's log name.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameChunk:
		return "chunk"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Frame is one unit of accumulator output.
// Record is set for FrameText and FrameBinary, Chunk for FrameChunk.
type Frame struct {
	Kind   FrameKind
	Record *types.Record
	Chunk  *types.PayloadChunk
}

// noiseRun tracks consecutive unclassifiable bytes so a run is reported once.
type noiseRun struct {
	offset int64
	length int64
	raw    []byte
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithClock overrides the clock used for ReceivedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		if now != nil {
			a.now = now
		}
	}
}

// Accumulator turns an arbitrarily chunked byte stream into frames.
//
// Feed appends bytes to the residue; TryExtract classifies the residue
// head and returns at most one frame per call. Callers drain with
// TryExtract until it reports neither a frame nor an error before
// feeding more. Output is independent of how the input was chunked.
//
// Consumed bytes are released by cursor arithmetic and compacted on
// the next Feed. Binary payloads are handed out as chunks as soon as
// they arrive, so memory stays bounded by the largest fed chunk plus
// MaxTextLength regardless of declared record length.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	cfg  Config
	tags [256]bool
	now  func() time.Time

	buf   []byte
	start int   // cursor: first unconsumed byte in buf
	base  int64 // absolute stream offset of buf[0]

	// scanned is how far past the cursor the text scan has looked,
	// so a long pending text record is not rescanned on every Feed.
	scanned int

	nextID int64
	bin    *binaryState
	noise  noiseRun

	// err is the sticky fatal error. Only Reset clears it.
	err error
}

// NewAccumulator creates an accumulator. Zero config fields take defaults.
func NewAccumulator(cfg Config, opts ...Option) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	a := &Accumulator{
		cfg: cfg,
		now: time.Now,
	}
	for _, tag := range cfg.Tags {
		a.tags[tag] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the effective configuration.
func (a *Accumulator) Config() Config {
	return a.cfg
}

// Feed appends data to the residue. The accumulator copies data.
// Returns the sticky fatal error, if any.
func (a *Accumulator) Feed(data []byte) error {
	if a.err != nil {
		return a.err
	}
	if len(data) == 0 {
		return nil
	}
	a.compact()
	a.buf = append(a.buf, data...)
	return nil
}

// compact moves the residue to the front of buf.
func (a *Accumulator) compact() {
	if a.start == 0 {
		return
	}
	n := copy(a.buf, a.buf[a.start:])
	a.buf = a.buf[:n]
	a.base += int64(a.start)
	a.start = 0
}

// advance moves the cursor forward n bytes.
func (a *Accumulator) advance(n int) {
	a.start += n
	a.scanned = 0
}

// Pending returns the number of unconsumed residue bytes.
func (a *Accumulator) Pending() int {
	return len(a.buf) - a.start
}

// Offset returns the absolute stream offset of the cursor.
func (a *Accumulator) Offset() int64 {
	return a.base + int64(a.start)
}

// InBinary reports whether a binary payload is in progress, and if so
// its record ID and the bytes still expected.
func (a *Accumulator) InBinary() (id int64, remaining uint64, ok bool) {
	if a.bin == nil {
		return 0, 0, false
	}
	return a.bin.record.ID, a.bin.remaining, true
}

// Err returns the sticky fatal error, or nil.
func (a *Accumulator) Err() error {
	return a.err
}

// TryExtract returns the next frame from the residue.
//
// Results:
//   - (frame, true, nil): a frame was extracted
//   - (_, false, nil): more data is needed
//   - (_, false, *FrameError): a framing error; recoverable unless IsFatal
//
// After a fatal error every call returns the same error until Reset.
func (a *Accumulator) TryExtract() (Frame, bool, error) {
	if a.err != nil {
		return Frame{}, false, a.err
	}
	if a.bin != nil {
		return a.extractPayload()
	}

	for a.start < len(a.buf) {
		c := a.buf[a.start]
		if c != TextStart && !a.tags[c] {
			if err := a.skipNoise(); err != nil {
				return Frame{}, false, err
			}
			continue
		}

		// A start byte ends any noise run; report it before the record.
		if a.noise.length > 0 {
			return Frame{}, false, a.flushNoise()
		}

		if c == TextStart {
			return a.extractText()
		}
		return a.extractHeader()
	}
	return Frame{}, false, nil
}

// skipNoise drops bytes up to the next possible record start.
func (a *Accumulator) skipNoise() error {
	end := a.start
	for end < len(a.buf) {
		c := a.buf[end]
		if c == TextStart || a.tags[c] {
			break
		}
		end++
	}

	if a.noise.length == 0 {
		a.noise.offset = a.Offset()
	}
	if room := maxRawSample - len(a.noise.raw); room > 0 {
		take := a.buf[a.start:end]
		if len(take) > room {
			take = take[:room]
		}
		a.noise.raw = append(a.noise.raw, take...)
	}
	a.noise.length += int64(end - a.start)
	a.advance(end - a.start)

	if a.noise.length > a.cfg.MaxNoiseBytes {
		a.err = &FrameError{
			Kind:   FrameErrorOverflow,
			Offset: a.noise.offset,
			Length: a.noise.length,
			Raw:    a.noise.raw,
			Msg:    fmt.Sprintf("noise run exceeds %d bytes", a.cfg.MaxNoiseBytes),
		}
		a.noise = noiseRun{}
		return a.err
	}
	return nil
}

// flushNoise reports and clears the current noise run.
func (a *Accumulator) flushNoise() error {
	err := &FrameError{
		Kind:   FrameErrorNoise,
		Offset: a.noise.offset,
		Length: a.noise.length,
		Raw:    a.noise.raw,
		Msg:    "skipped bytes matching neither record variant",
	}
	a.noise = noiseRun{}
	return err
}

// Finish reports whatever is still pending at end of stream and
// discards it. It returns nil when the stream ended on a record boundary.
func (a *Accumulator) Finish() error {
	if a.err != nil {
		return a.err
	}

	if a.noise.length > 0 {
		err := a.flushNoise()
		a.advance(a.Pending())
		return err
	}

	if a.bin != nil {
		rec := a.bin.record
		err := &FrameError{
			Kind:     FrameErrorTruncated,
			Offset:   rec.Offset,
			Length:   int64(a.bin.delivered),
			RecordID: rec.ID,
			Msg: fmt.Sprintf("binary record ended after %d of %d payload bytes",
				a.bin.delivered, rec.DeclaredLength),
		}
		a.bin = nil
		a.advance(a.Pending())
		return err
	}

	if a.Pending() > 0 {
		residue := a.buf[a.start:]
		err := &FrameError{
			Kind:   FrameErrorTruncated,
			Offset: a.Offset(),
			Length: int64(len(residue)),
			Raw:    sample(residue),
			Msg:    "stream ended inside a record",
		}
		a.advance(len(residue))
		return err
	}
	return nil
}

// Reset returns the accumulator to its initial state, keeping buffer capacity.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.start = 0
	a.base = 0
	a.scanned = 0
	a.nextID = 0
	a.bin = nil
	a.noise = noiseRun{}
	a.err = nil
}

// errAt builds a FrameError located at the cursor.
func (a *Accumulator) errAt(kind FrameErrorKind, raw []byte, msg string) *FrameError {
	return &FrameError{
		Kind:   kind,
		Offset: a.Offset(),
		Length: int64(len(raw)),
		Raw:    sample(raw),
		Msg:    msg,
	}
}
