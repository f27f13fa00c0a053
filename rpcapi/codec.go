package rpcapi

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this package's messages are
// negotiated under. Real protoc-gen-go output marshals through
// google.golang.org/protobuf's wire format via proto.Message; since no
// .proto file is compiled here, rpcapi's messages are plain structs and
// travel over grpc's pluggable encoding.Codec hook instead, reusing
// msgpack (already in this module's dependency stack for pack.Codec)
// rather than hand-rolling a second serializer.
const CodecName = "reccd-msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (msgpackCodec) Name() string { return CodecName }
