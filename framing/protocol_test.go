package framing

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestParseLengthLayout(t *testing.T) {
	tests := []struct {
		input   string
		want    LengthLayout
		wantErr bool
	}{
		{input: "5le", want: Layout5LE},
		{input: "2be", want: Layout2BE},
		{input: " 8BE ", want: LengthLayout{Width: 8, BigEndian: true}},
		{input: "1le", want: LengthLayout{Width: 1}},
		{input: "9le", wantErr: true},
		{input: "0be", wantErr: true},
		{input: "5xx", wantErr: true},
		{input: "le", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLengthLayout(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLayout) {
					t.Fatalf("ParseLengthLayout(%q) error = %v, want ErrInvalidLayout", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLengthLayout(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLengthLayout(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if parsed, _ := ParseLengthLayout(got.String()); parsed != got {
				t.Errorf("String() %q does not parse back", got.String())
			}
		})
	}
}

func TestLengthLayout_PutDecode(t *testing.T) {
	buf := make([]byte, 8)

	Layout5LE.Put(buf, 0x0102030405)
	if !bytes.Equal(buf[:5], []byte{0x05, 0x04, 0x03, 0x02, 0x01}) {
		t.Errorf("5le bytes = %x", buf[:5])
	}
	if got := Layout5LE.Decode(buf[:5]); got != 0x0102030405 {
		t.Errorf("5le Decode = %#x", got)
	}

	Layout2BE.Put(buf, 0x1234)
	if !bytes.Equal(buf[:2], []byte{0x12, 0x34}) {
		t.Errorf("2be bytes = %x", buf[:2])
	}
	if got := Layout2BE.Decode(buf[:2]); got != 0x1234 {
		t.Errorf("2be Decode = %#x", got)
	}

	if Layout2BE.MaxLength() != 0xFFFF {
		t.Errorf("2be MaxLength = %#x", Layout2BE.MaxLength())
	}
	if (LengthLayout{Width: 8}).MaxLength() != ^uint64(0) {
		t.Error("8-byte MaxLength should be the full uint64 range")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("zero Config should validate with defaults: %v", err)
	}

	bad := []Config{
		{Layout: LengthLayout{Width: 9}},
		{Tags: []byte{TextStart}},
		{MaxNoiseBytes: -1},
		{MaxTextLength: 2},
		{MaxChunkSize: -5},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d: Validate() = nil, want error", i)
		}
	}
}

func TestValidateTextPayload(t *testing.T) {
	valid := []string{"HELLO", "a b c", strings.Repeat("~", 100)}
	for _, p := range valid {
		if err := ValidateTextPayload([]byte(p)); err != nil {
			t.Errorf("ValidateTextPayload(%q) = %v", p, err)
		}
	}

	invalid := []string{"abcd", "abc$de", "abc;de", "abc\x7fde", "\x1fabcde"}
	for _, p := range invalid {
		if err := ValidateTextPayload([]byte(p)); err == nil {
			t.Errorf("ValidateTextPayload(%q) = nil, want error", p)
		}
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	err := &FrameError{
		Kind:   FrameErrorMalformedText,
		Offset: 42,
		Length: 6,
		Msg:    "malformed text record",
		Err:    errors.New("payload is 4 bytes"),
	}
	want := "malformed_text at offset 42 (6 bytes): malformed text record: payload is 4 bytes"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF is not a fatal frame error")
	}
	if IsFatalFrameError(&FrameError{Kind: FrameErrorNoise}) {
		t.Error("noise is recoverable")
	}
	if !IsFatalFrameError(&FrameError{Kind: FrameErrorOverflow}) {
		t.Error("overflow is fatal")
	}
}

func TestDecoder_MixedStream(t *testing.T) {
	stream := mixedStream(Layout2BE)

	readers := map[string]io.Reader{
		"whole":    bytes.NewReader(stream),
		"one-byte": iotest.OneByteReader(bytes.NewReader(stream)),
		"half":     iotest.HalfReader(bytes.NewReader(stream)),
	}

	for name, r := range readers {
		t.Run(name, func(t *testing.T) {
			dec, err := NewDecoder(r, Config{Layout: Layout2BE})
			if err != nil {
				t.Fatalf("NewDecoder failed: %v", err)
			}

			c := newCollector(t)
			for {
				frame, err := dec.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("Next failed: %v", err)
				}
				c.add(frame)
			}

			if len(c.records) != 5 {
				t.Fatalf("records = %d, want 5", len(c.records))
			}
			if dec.BytesRead() != int64(len(stream)) {
				t.Errorf("BytesRead() = %d, want %d", dec.BytesRead(), len(stream))
			}
		})
	}
}

func TestDecoder_TruncatedThenEOF(t *testing.T) {
	stream := AppendText(nil, []byte("HELLO"))
	stream = append(stream, AppendBinaryHeader(nil, Layout5LE, TagPrimary, 100)...)
	stream = append(stream, "partial"...)

	dec, err := NewDecoder(bytes.NewReader(stream), DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	var kinds []FrameKind
	var truncated *FrameError
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if ferr, ok := AsFrameError(err); ok {
			truncated = ferr
			continue
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		kinds = append(kinds, frame.Kind)
	}

	if len(kinds) != 2 || kinds[0] != FrameText || kinds[1] != FrameChunk {
		t.Errorf("kinds = %v, want [text chunk]", kinds)
	}
	if truncated == nil || truncated.Kind != FrameErrorTruncated || truncated.RecordID != 2 {
		t.Fatalf("truncated = %v, want truncated record 2", truncated)
	}
	if truncated.Length != int64(len("partial")) {
		t.Errorf("Length = %d, want %d", truncated.Length, len("partial"))
	}
}

func TestDecoder_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	dec, err := NewDecoder(iotest.ErrReader(boom), DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	if _, err := dec.Next(); !errors.Is(err, boom) {
		t.Errorf("Next() = %v, want boom", err)
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader(nil), DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
}
