package pack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/pack"
)

func TestMsgpackZlibCodecRoundTrip(t *testing.T) {
	codec := pack.MsgpackZlibCodec{}

	data, err := codec.Encode(map[string]any{"hello": "world", "n": 42}, 0)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, codec.Decode(data, &out))
	assert.Equal(t, "world", out["hello"])
	assert.EqualValues(t, 42, out["n"])
}

func TestCBORCodecRoundTrip(t *testing.T) {
	codec := pack.CBORCodec{}

	data, err := codec.Encode([]int{1, 2, 3}, 0)
	require.NoError(t, err)

	var out []int
	require.NoError(t, codec.Decode(data, &out))
	assert.Equal(t, []int{1, 2, 3}, out)
}
