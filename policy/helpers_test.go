package policy_test

import (
	"github.com/justapithecus/framecap/types"
)

func textRecord(id int64) *types.Record {
	return &types.Record{
		ID:      id,
		Kind:    types.RecordKindText,
		Payload: []byte("HELLO"),
	}
}

func binaryRecord(id int64, declared uint64) *types.Record {
	return &types.Record{
		ID:             id,
		Kind:           types.RecordKindBinary,
		Tag:            0xAA,
		DeclaredLength: declared,
	}
}

func chunk(recordID, seq int64, data string, last bool) *types.PayloadChunk {
	return &types.PayloadChunk{
		RecordID: recordID,
		Seq:      seq,
		IsLast:   last,
		Data:     []byte(data),
	}
}
