package net

import (
	"encoding/binary"
	"errors"
)

// PRE_HEAD_SIZE is the length of the frame prefix.
const PRE_HEAD_SIZE = 4

// PreHead prefixes every frame with the size of the envelope that follows.
type PreHead struct {
	BodySize uint32
}

// EncodePreHead writes hdr into the first PRE_HEAD_SIZE bytes of buf.
func EncodePreHead(hdr *PreHead, buf []byte) {
	binary.LittleEndian.PutUint32(buf[:PRE_HEAD_SIZE], hdr.BodySize)
}

// DecodePreHead parses a frame prefix. Empty frames are invalid.
func DecodePreHead(buf []byte) (*PreHead, error) {
	if len(buf) < PRE_HEAD_SIZE {
		return nil, errors.New("prehead: buffer too small")
	}
	hdr := &PreHead{BodySize: binary.LittleEndian.Uint32(buf)}
	if hdr.BodySize == 0 {
		return nil, errors.New("prehead: empty frame")
	}
	return hdr, nil
}
