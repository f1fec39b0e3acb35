package net

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lcx/hopnet/message"
)

// Envelope fields. The envelope uses protobuf wire format so that fields can
// be added later without breaking older peers; the body is msgpack.
const (
	_fieldKind protowire.Number = 1
	_fieldBody protowire.Number = 2
)

var errNoKind = errors.New("envelope: missing kind")

// Codec turns messages into envelopes and back. It is safe for concurrent use.
type Codec struct {
	mh *codec.MsgpackHandle
}

// NewCodec returns a Codec with the msgpack settings both ends share.
func NewCodec() *Codec {
	mh := &codec.MsgpackHandle{}
	mh.WriteExt = true
	return &Codec{mh: mh}
}

// Encode returns the envelope for m.
func (c *Codec) Encode(m message.Message) ([]byte, error) {
	var body []byte
	if err := codec.NewEncoderBytes(&body, c.mh).Encode(m); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	b := make([]byte, 0, len(body)+8)
	b = protowire.AppendTag(b, _fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))
	b = protowire.AppendTag(b, _fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

// EncodeFrame returns PreHead plus envelope, ready to be written to a socket.
// Envelopes larger than limit fail with ErrFrameTooLarge.
func (c *Codec) EncodeFrame(m message.Message, limit int) ([]byte, error) {
	env, err := c.Encode(m)
	if err != nil {
		return nil, err
	}
	if len(env) > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFrameTooLarge, m.Kind(), len(env))
	}
	frame := make([]byte, PRE_HEAD_SIZE+len(env))
	EncodePreHead(&PreHead{BodySize: uint32(len(env))}, frame)
	copy(frame[PRE_HEAD_SIZE:], env)
	return frame, nil
}

// Decode parses an envelope. Unknown envelope fields are skipped; unknown
// kinds fail with message.ErrUnknownKind.
func (c *Codec) Decode(b []byte) (message.Message, error) {
	var (
		kind    uint64
		hasKind bool
		body    []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == _fieldKind && typ == protowire.VarintType:
			kind, n = protowire.ConsumeVarint(b)
			hasKind = true
		case num == _fieldBody && typ == protowire.BytesType:
			body, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if !hasKind {
		return nil, errNoKind
	}
	if kind > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", message.ErrUnknownKind, kind)
	}
	m, err := message.New(message.Kind(kind))
	if err != nil {
		return nil, err
	}
	if err := codec.NewDecoderBytes(body, c.mh).Decode(m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Kind(), err)
	}
	return m, nil
}
