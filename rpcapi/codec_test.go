package rpcapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/reccd/reccd/rpcapi"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(rpcapi.CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, rpcapi.CodecName, codec.Name())
}

func TestCodecRoundTripsPacketQ(t *testing.T) {
	codec := encoding.GetCodec(rpcapi.CodecName)
	require.NotNil(t, codec)

	in := &rpcapi.PacketQ{
		Session: "abc123",
		Method:  "GET",
		Path:    "/ping",
		Args: []*rpcapi.Content{
			{Data: []byte("hello"), Size: 5},
			{SmName: "reccd-shm-1", Size: 1 << 20, Array: &rpcapi.ArrayMeta{Shape: []int64{10, 10}, Dtype: "float64"}},
		},
		Kwargs: map[string]*rpcapi.Content{
			"name": {Data: []byte("world")},
		},
	}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(rpcapi.PacketQ)
	require.NoError(t, codec.Unmarshal(data, out))

	assert.Equal(t, in.Session, out.Session)
	assert.Equal(t, in.Method, out.Method)
	assert.Equal(t, in.Path, out.Path)
	require.Len(t, out.Args, 2)
	assert.Equal(t, in.Args[0].Data, out.Args[0].Data)
	assert.Equal(t, in.Args[1].SmName, out.Args[1].SmName)
	require.NotNil(t, out.Args[1].Array)
	assert.Equal(t, in.Args[1].Array.Shape, out.Args[1].Array.Shape)
	assert.Equal(t, in.Kwargs["name"].Data, out.Kwargs["name"].Data)
}
