package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreHead(t *testing.T) {
	tests := []struct {
		name string
		size uint32
	}{
		{"small", 1},
		{"typical", 300},
		{"max uint32", 0xFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, PRE_HEAD_SIZE)
			EncodePreHead(&PreHead{BodySize: tt.size}, buf)
			hdr, err := DecodePreHead(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.size, hdr.BodySize)
		})
	}
}

func TestPreHeadLittleEndian(t *testing.T) {
	buf := make([]byte, PRE_HEAD_SIZE)
	EncodePreHead(&PreHead{BodySize: 0x01020304}, buf)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)
}

func TestDecodePreHeadErrors(t *testing.T) {
	_, err := DecodePreHead([]byte{1, 2})
	assert.Error(t, err)

	_, err = DecodePreHead(make([]byte, PRE_HEAD_SIZE))
	assert.Error(t, err)
}
