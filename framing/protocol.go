// Package framing implements the wire grammar of the remote feed.
//
// Two record variants share one byte stream:
//   - text:   '$' payload ';' where payload is >= 5 printable ASCII bytes
//   - binary: tag byte, fixed-width unsigned length, payload of that length
//
// The Accumulator is the single authoritative parser. Live sessions, the
// replay command and tests all frame through it.
package framing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire constants.
const (
	// TextStart opens a text record.
	TextStart byte = '$'
	// TextEnd closes a text record.
	TextEnd byte = ';'
	// MinTextPayload is the minimum text payload length in bytes.
	MinTextPayload = 5

	// TagPrimary is the common binary header tag.
	TagPrimary byte = 0xAA
	// TagVariant is the rare binary header tag. Framed identically to TagPrimary.
	TagVariant byte = 0xBB
)

// Default limits.
const (
	// DefaultMaxBinaryLength is the sanity ceiling for a declared binary length (4 TiB).
	DefaultMaxBinaryLength = uint64(1) << 42
	// DefaultMaxNoiseBytes caps a single run of unclassifiable bytes (1 MiB).
	DefaultMaxNoiseBytes = 1 << 20
	// DefaultMaxTextLength caps a text payload (64 KiB).
	DefaultMaxTextLength = 64 * 1024
	// DefaultMaxChunkSize caps the size of one binary payload chunk (1 MiB).
	DefaultMaxChunkSize = 1 << 20
)

// DefaultTags returns the recognised binary header tags.
func DefaultTags() []byte {
	return []byte{TagPrimary, TagVariant}
}

// LengthLayout describes the binary length field that follows the tag byte.
// Observed peers disagree on width and byte order, so both are configuration.
type LengthLayout struct {
	// Width is the field width in bytes (1-8).
	Width int
	// BigEndian selects network byte order. False means little-endian.
	BigEndian bool
}

// Length layout presets seen in captured traffic.
var (
	// Layout5LE is a 5-byte little-endian length at offset 1.
	Layout5LE = LengthLayout{Width: 5}
	// Layout2BE is a 2-byte big-endian length at offset 1.
	Layout2BE = LengthLayout{Width: 2, BigEndian: true}
)

// ErrInvalidLayout is returned for an unusable length layout.
var ErrInvalidLayout = errors.New("invalid length layout")

// Validate checks the field width.
func (l LengthLayout) Validate() error {
	if l.Width < 1 || l.Width > 8 {
		return fmt.Errorf("%w: width %d not in 1..8", ErrInvalidLayout, l.Width)
	}
	return nil
}

// HeaderSize is the tag byte plus the length field.
func (l LengthLayout) HeaderSize() int {
	return 1 + l.Width
}

// MaxLength is the largest length the field can express.
func (l LengthLayout) MaxLength() uint64 {
	if l.Width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(l.Width))) - 1
}

// Decode reads a length from b, which must hold exactly Width bytes.
func (l LengthLayout) Decode(b []byte) uint64 {
	var n uint64
	if l.BigEndian {
		for _, c := range b[:l.Width] {
			n = n<<8 | uint64(c)
		}
		return n
	}
	for i := l.Width - 1; i >= 0; i-- {
		n = n<<8 | uint64(b[i])
	}
	return n
}

// Put writes n into b, which must hold at least Width bytes.
func (l LengthLayout) Put(b []byte, n uint64) {
	for i := 0; i < l.Width; i++ {
		shift := 8 * uint(i)
		if l.BigEndian {
			b[l.Width-1-i] = byte(n >> shift)
		} else {
			b[i] = byte(n >> shift)
		}
	}
}

// String renders the layout in the form accepted by ParseLengthLayout.
func (l LengthLayout) String() string {
	if l.BigEndian {
		return strconv.Itoa(l.Width) + "be"
	}
	return strconv.Itoa(l.Width) + "le"
}

// ParseLengthLayout parses "<width><le|be>", e.g. "5le" or "2be".
func ParseLengthLayout(s string) (LengthLayout, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return LengthLayout{}, fmt.Errorf("%w: %q (expected e.g. 5le or 2be)", ErrInvalidLayout, s)
	}

	var layout LengthLayout
	switch s[len(s)-2:] {
	case "le":
	case "be":
		layout.BigEndian = true
	default:
		return LengthLayout{}, fmt.Errorf("%w: %q (byte order must be le or be)", ErrInvalidLayout, s)
	}

	width, err := strconv.Atoi(s[:len(s)-2])
	if err != nil {
		return LengthLayout{}, fmt.Errorf("%w: %q: %v", ErrInvalidLayout, s, err)
	}
	layout.Width = width

	if err := layout.Validate(); err != nil {
		return LengthLayout{}, err
	}
	return layout, nil
}

// Config bounds the accumulator.
type Config struct {
	// Layout is the binary length field layout.
	Layout LengthLayout
	// Tags are the recognised binary header tags. Empty means DefaultTags.
	Tags []byte
	// MaxBinaryLength is the sanity ceiling for a declared length.
	// Larger declarations are a fatal protocol overflow.
	MaxBinaryLength uint64
	// MaxNoiseBytes is the longest run of noise tolerated before a fatal overflow.
	MaxNoiseBytes int64
	// MaxTextLength is the longest text payload scanned before giving up on a '$'.
	MaxTextLength int
	// MaxChunkSize is the largest binary payload chunk emitted.
	MaxChunkSize int
}

// DefaultConfig returns the documented 5-byte little-endian layout with default limits.
func DefaultConfig() Config {
	return Config{
		Layout:          Layout5LE,
		Tags:            DefaultTags(),
		MaxBinaryLength: DefaultMaxBinaryLength,
		MaxNoiseBytes:   DefaultMaxNoiseBytes,
		MaxTextLength:   DefaultMaxTextLength,
		MaxChunkSize:    DefaultMaxChunkSize,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Layout.Width == 0 {
		c.Layout = d.Layout
	}
	if len(c.Tags) == 0 {
		c.Tags = d.Tags
	}
	if c.MaxBinaryLength == 0 {
		c.MaxBinaryLength = d.MaxBinaryLength
	}
	if c.MaxNoiseBytes == 0 {
		c.MaxNoiseBytes = d.MaxNoiseBytes
	}
	if c.MaxTextLength == 0 {
		c.MaxTextLength = d.MaxTextLength
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	for _, tag := range c.Tags {
		if tag == TextStart || tag == TextEnd {
			return fmt.Errorf("binary tag 0x%02X collides with a text delimiter", tag)
		}
	}
	if c.MaxNoiseBytes < 0 {
		return fmt.Errorf("max noise bytes must be >= 0, got %d", c.MaxNoiseBytes)
	}
	if c.MaxTextLength < MinTextPayload {
		return fmt.Errorf("max text length must be >= %d, got %d", MinTextPayload, c.MaxTextLength)
	}
	if c.MaxChunkSize < 1 {
		return fmt.Errorf("max chunk size must be >= 1, got %d", c.MaxChunkSize)
	}
	return nil
}
