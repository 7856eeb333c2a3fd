package framing

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/justapithecus/framecap/types"
)

// binaryState is the pending fragment of a binary record whose header
// has been parsed. Only counters and a running digest are retained;
// payload bytes leave as chunks.
type binaryState struct {
	record    *types.Record
	remaining uint64
	delivered uint64
	seq       int64
	hash      *blake3.Hasher
}

// extractHeader handles a residue that starts with a binary tag.
// A partial header is pending, not noise.
func (a *Accumulator) extractHeader() (Frame, bool, error) {
	residue := a.buf[a.start:]
	size := a.cfg.Layout.HeaderSize()
	if len(residue) < size {
		return Frame{}, false, nil
	}

	tag := residue[0]
	length := a.cfg.Layout.Decode(residue[1:size])
	if length > a.cfg.MaxBinaryLength {
		ferr := a.errAt(FrameErrorOverflow, residue[:size],
			fmt.Sprintf("declared length %d exceeds ceiling %d", length, a.cfg.MaxBinaryLength))
		a.err = ferr
		return Frame{}, false, ferr
	}

	a.nextID++
	a.bin = &binaryState{
		record: &types.Record{
			ID:             a.nextID,
			Kind:           types.RecordKindBinary,
			Offset:         a.Offset(),
			Tag:            tag,
			DeclaredLength: length,
		},
		remaining: length,
		hash:      blake3.New(),
	}
	a.advance(size)
	return a.extractPayload()
}

// extractPayload emits the next payload chunk, or the completed record
// once every declared byte has been delivered.
func (a *Accumulator) extractPayload() (Frame, bool, error) {
	b := a.bin
	if b.remaining == 0 {
		rec := b.record
		rec.Digest = hex.EncodeToString(b.hash.Sum(nil))
		rec.ReceivedAt = a.now()
		a.bin = nil
		return Frame{Kind: FrameBinary, Record: rec}, true, nil
	}

	avail := a.Pending()
	if avail == 0 {
		return Frame{}, false, nil
	}

	n := uint64(avail)
	if n > b.remaining {
		n = b.remaining
	}
	if n > uint64(a.cfg.MaxChunkSize) {
		n = uint64(a.cfg.MaxChunkSize)
	}

	data := make([]byte, n)
	copy(data, a.buf[a.start:])
	_, _ = b.hash.Write(data)

	b.seq++
	chunk := &types.PayloadChunk{
		RecordID: b.record.ID,
		Seq:      b.seq,
		Offset:   b.delivered,
		IsLast:   n == b.remaining,
		Data:     data,
	}
	b.delivered += n
	b.remaining -= n
	a.advance(int(n))

	return Frame{Kind: FrameChunk, Chunk: chunk}, true, nil
}
