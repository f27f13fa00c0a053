package pack

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes/decodes the non-array values a Packer inlines or spills
// to shared memory. Two implementations ship: MsgpackZlibCodec (the
// default, matching type_serialize's Msgpack+Zlib ByteCoding) and
// CBORCodec (an alternate encoding selected per-message the same way
// ByteCoding selects in the original).
type Codec interface {
	// Encode serializes v. level is a compression hint (e.g.
	// compress/zlib's 0-9 levels); implementations that don't compress
	// ignore it.
	Encode(v any, level int) ([]byte, error)
	Decode(data []byte, v any) error

	// Code returns the PacketQ Coding value this codec is
	// negotiated under, so a client and server agree on the wire without
	// either side hard-coding the other's codec map.
	Code() int32
}

// Coding identifiers negotiated via PacketQ.Coding (the reply uses the
// request's codec),
// matching type_serialize.ByteCoding's ordinal layout closely enough
// for this repository's two shipped codecs.
const (
	CodingMsgpackZlib int32 = 0
	CodingCBOR        int32 = 1
)

// MsgpackZlibCodec is the default Codec: msgpack for structure,
// zlib for compression, mirroring type_serialize's Msgpack ByteCoding.
type MsgpackZlibCodec struct{}

func (MsgpackZlibCodec) Code() int32 { return CodingMsgpackZlib }

func (MsgpackZlibCodec) Encode(v any, level int) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}

	if level <= 0 {
		level = zlib.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackZlibCodec) Decode(data []byte, v any) error {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, v)
}

// CBORCodec is the alternate Codec, grounded on filegrind-capns-go's use
// of fxamacker/cbor for compact binary payloads. It does not compress.
type CBORCodec struct{}

func (CBORCodec) Code() int32 { return CodingCBOR }

func (CBORCodec) Encode(v any, level int) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBORCodec) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
