package framing

import (
	"fmt"

	"github.com/justapithecus/framecap/types"
)

// isTextByte reports whether c may appear in a text payload.
func isTextByte(c byte) bool {
	return c >= 0x20 && c <= 0x7E && c != TextStart && c != TextEnd
}

// ValidateTextPayload checks a text payload against the grammar.
func ValidateTextPayload(p []byte) error {
	if len(p) < MinTextPayload {
		return fmt.Errorf("payload is %d bytes, minimum is %d", len(p), MinTextPayload)
	}
	for i, c := range p {
		if !isTextByte(c) {
			return fmt.Errorf("invalid byte 0x%02X at payload index %d", c, i)
		}
	}
	return nil
}

// extractText handles a residue that starts with TextStart.
//
// The scan stops at the first ';'. A second '$' or a binary tag byte
// before it means the record was cut short; the cursor moves to that
// byte so it can be classified on its own. A '$' with no ';' within
// MaxTextLength bytes is dropped alone and scanning resumes after it.
func (a *Accumulator) extractText() (Frame, bool, error) {
	residue := a.buf[a.start:]

	i := a.scanned
	if i < 1 {
		i = 1
	}
	for ; i < len(residue); i++ {
		c := residue[i]
		if c == TextEnd {
			return a.completeText(residue[1:i], i+1)
		}
		if c == TextStart || a.tags[c] {
			err := a.errAt(FrameErrorUnterminatedText, residue[:i],
				fmt.Sprintf("text record interrupted by 0x%02X before ';'", c))
			a.advance(i)
			return Frame{}, false, err
		}
		if i > a.cfg.MaxTextLength {
			err := a.errAt(FrameErrorTextTooLong, residue[:i],
				fmt.Sprintf("no ';' within %d bytes of '$'", a.cfg.MaxTextLength))
			err.Length = 1
			a.advance(1)
			return Frame{}, false, err
		}
	}

	a.scanned = i
	return Frame{}, false, nil
}

// completeText validates a delimited payload and consumes the whole record.
// A malformed record is skipped past its ';' either way.
func (a *Accumulator) completeText(payload []byte, consumed int) (Frame, bool, error) {
	if err := ValidateTextPayload(payload); err != nil {
		ferr := a.errAt(FrameErrorMalformedText, a.buf[a.start:a.start+consumed], "malformed text record")
		ferr.Err = err
		a.advance(consumed)
		return Frame{}, false, ferr
	}

	a.nextID++
	rec := &types.Record{
		ID:         a.nextID,
		Kind:       types.RecordKindText,
		Offset:     a.Offset(),
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: a.now(),
	}
	a.advance(consumed)
	return Frame{Kind: FrameText, Record: rec}, true, nil
}
