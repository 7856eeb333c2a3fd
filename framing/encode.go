package framing

// AppendText appends the text record "$payload;" to dst.
// The payload is not validated; see ValidateTextPayload.
func AppendText(dst, payload []byte) []byte {
	dst = append(dst, TextStart)
	dst = append(dst, payload...)
	return append(dst, TextEnd)
}

// AppendBinaryHeader appends a binary header declaring n payload bytes.
func AppendBinaryHeader(dst []byte, layout LengthLayout, tag byte, n uint64) []byte {
	var field [8]byte
	layout.Put(field[:], n)
	dst = append(dst, tag)
	return append(dst, field[:layout.Width]...)
}

// AppendBinary appends a complete binary record to dst.
func AppendBinary(dst []byte, layout LengthLayout, tag byte, payload []byte) []byte {
	dst = AppendBinaryHeader(dst, layout, tag, uint64(len(payload)))
	return append(dst, payload...)
}
