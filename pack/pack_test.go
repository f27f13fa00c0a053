package pack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/pack"
	"github.com/reccd/reccd/rpcapi"
)

type floatArray struct {
	shape []int64
	data  []byte
}

func newFloatArray(n int) *floatArray {
	return &floatArray{shape: []int64{int64(n)}, data: make([]byte, n*8)}
}

func (a *floatArray) Shape() []int64   { return a.shape }
func (a *floatArray) Strides() []int64 { return []int64{8} }
func (a *floatArray) Dtype() string    { return "float64" }
func (a *floatArray) Bytes() []byte    { return a.data }

func TestPackUnpackInversionNoSharedMemory(t *testing.T) {
	packer := pack.NewPacker(pack.MsgpackZlibCodec{}, nil, pack.ShmNegotiation{})

	packed, err := packer.Pack([]any{"hello", 42}, map[string]any{"flag": true})
	require.NoError(t, err)
	defer packed.Release()

	assert.Nil(t, packed.Slots)
	for _, c := range packed.Args {
		assert.Empty(t, c.SmName)
	}

	unpacker := pack.NewUnpacker(pack.MsgpackZlibCodec{}, nil)
	resp, err := unpacker.Unpack(packed.Args, packed.Kwargs)
	require.NoError(t, err)

	require.Len(t, resp.Args, 2)
	assert.Equal(t, "hello", resp.Args[0])
	assert.EqualValues(t, 42, resp.Args[1])
	assert.Equal(t, true, resp.Kwargs["flag"])
}

func TestPackSpillsLargeArrayToSharedMemory(t *testing.T) {
	pool := pack.NewMmapPool(t.TempDir())
	neg := pack.ShmNegotiation{MinSmSize: 4, MinSmByte: 16, IsSm: true}
	packer := pack.NewPacker(pack.MsgpackZlibCodec{}, pool, neg)

	big := newFloatArray(100) // 800 bytes, well over both thresholds
	small := newFloatArray(1) // 8 bytes, under both thresholds

	packed, err := packer.Pack([]any{big, small}, nil)
	require.NoError(t, err)
	defer packed.Release()

	require.Len(t, packed.Args, 2)
	assert.NotEmpty(t, packed.Args[0].SmName, "large array should spill to shared memory")
	assert.Empty(t, packed.Args[1].SmName, "small array should stay inline")
	require.NotNil(t, packed.Args[0].Array)
	assert.Equal(t, []int64{100}, packed.Args[0].Array.Shape)

	unpacker := pack.NewUnpacker(pack.MsgpackZlibCodec{}, packed.Slots.ByName())
	resp, err := unpacker.Unpack(packed.Args, nil)
	require.NoError(t, err)

	spilled, ok := resp.Args[0].(*pack.RawArray)
	require.True(t, ok)
	assert.Equal(t, []int64{100}, spilled.Shape)
	assert.Len(t, spilled.Data, 800)

	inline, ok := resp.Args[1].(*pack.RawArray)
	require.True(t, ok)
	assert.Len(t, inline.Data, 8)
}

func TestUnpackMissingSharedMemorySegmentErrors(t *testing.T) {
	unpacker := pack.NewUnpacker(pack.MsgpackZlibCodec{}, nil)
	_, err := unpacker.Unpack([]*rpcapi.Content{{SmName: "ghost", Size: 8}}, nil)
	assert.Error(t, err)
}

func TestUnpackUnreferencedSharedMemorySegmentErrors(t *testing.T) {
	pool := pack.NewMmapPool(t.TempDir())
	neg := pack.ShmNegotiation{MinSmSize: 4, MinSmByte: 16, IsSm: true}
	packer := pack.NewPacker(pack.MsgpackZlibCodec{}, pool, neg)

	big := newFloatArray(100)
	packed, err := packer.Pack([]any{big}, nil)
	require.NoError(t, err)
	defer packed.Release()

	// Drop every Content's reference to the rented slot, simulating a
	// wire sm_names set wider than what args/kwargs actually use.
	unpacker := pack.NewUnpacker(pack.MsgpackZlibCodec{}, packed.Slots.ByName())
	_, err = unpacker.Unpack(nil, nil)
	assert.Error(t, err)
}
