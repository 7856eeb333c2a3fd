// Package types defines core domain types shared by the framer, the session
// controller and the storage layer.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// RecordKind discriminates the two framed record variants.
type RecordKind string

const (
	// RecordKindText is a '$'-delimited printable ASCII record.
	RecordKindText RecordKind = "text"
	// RecordKindBinary is a tagged, length-prefixed record.
	RecordKindBinary RecordKind = "binary"
)

// Record is one fully framed application message.
//
// For text records Payload holds the bytes between the delimiters.
// For binary records the payload has already been delivered as
// PayloadChunks; the record carries metadata only.
type Record struct {
	// ID is the framer-assigned ordinal of the record within the stream, starting at 1.
	// Binary records receive their ID when the header is parsed, so chunks can reference it.
	ID int64
	// Kind is the variant discriminator.
	Kind RecordKind
	// Offset is the absolute stream offset of the record's first byte.
	Offset int64
	// Payload is the text payload. Nil for binary records.
	Payload []byte
	// Tag is the binary header tag byte. Zero for text records.
	Tag byte
	// DeclaredLength is the binary payload length from the header.
	DeclaredLength uint64
	// Digest is the hex blake3 digest of the binary payload.
	Digest string
	// ReceivedAt is when framing completed.
	ReceivedAt time.Time
}

// Size returns the payload size in bytes regardless of variant.
func (r *Record) Size() uint64 {
	if r.Kind == RecordKindBinary {
		return r.DeclaredLength
	}
	return uint64(len(r.Payload))
}

// PayloadChunk is a contiguous slice of a binary record's payload.
// Chunks of one record arrive in order, before the record itself.
type PayloadChunk struct {
	// RecordID is the ID the owning binary record carries.
	RecordID int64
	// Seq is the chunk sequence number within the record, starting at 1.
	Seq int64
	// Offset is the offset of Data within the payload.
	Offset uint64
	// IsLast is true for the chunk that completes the payload.
	IsLast bool
	// Data is the chunk's bytes. Owned by the chunk.
	Data []byte
}
