// Package rpcapi holds the wire messages and gRPC service contract
// exchanged between daemon and daemonclient. It stands in for the
// Go code protoc-gen-go / protoc-gen-go-grpc would emit from a
// daemon_api.proto mirroring the original's daemon_api_pb2.py — this
// repository does not invoke protoc, so these files are written by
// hand: the service stubs follow protoc-gen-go-grpc's layout, while the
// messages are plain structs carried over the msgpack codec in codec.go
// rather than proto.Message implementations.
package rpcapi

// Pit is the Heartbeat request ("ping intent"): Delay is how many seconds
// the daemon sleeps before answering.
type Pit struct {
	Delay float64
}

// Pat is the Heartbeat response ("ping ack").
type Pat struct {
	Ok bool
}

// ArrayMeta carries array shape/dtype metadata alongside a Content's
// bytes, independent of whether those bytes traveled inline or through
// shared memory.
type ArrayMeta struct {
	Shape   []int64
	Dtype   string
	Strides []int64
}

// Content is one positional or keyword argument's wire representation:
// either inline Data, or a SmName naming a shared-memory segment holding
// Size bytes, plus optional array metadata.
type Content struct {
	Data   []byte
	SmName string
	Size   int64
	Array  *ArrayMeta
}

// RegisterQ is the Register request. TestSmName/TestSmPass carry the
// client's shared-memory write/read-back test: the client writes
// TestSmPass into the segment named TestSmName, and the server reads that
// segment and reports whether it holds the same bytes, deciding
// shared-memory viability for the pair.
type RegisterQ struct {
	Session    string
	Args       []string
	Kwargs     map[string]string
	TestSmName string
	TestSmPass []byte
}

// RegisterA is the Register response: a RegisterCode reporting whether
// the plugin had an on_register to call, whether shared memory validated
// (IsSm), and the shared-memory thresholds the plugin wants the client
// to honor on future requests.
type RegisterA struct {
	Code      int32
	IsSm      bool
	MinSmSize int64
	MinSmByte int64
}

// RegisterCode values for RegisterA.Code, mirroring RegisterCode in
// daemon_api_pb2.py.
const (
	RegisterCodeSuccess            int32 = 0
	RegisterCodeNotFoundRegisterFn int32 = 1
)

// PacketQ is one Packet request: a route to dispatch, its codec
// identifier, its packed arguments, and the shared-memory segment names
// rented for this exchange.
type PacketQ struct {
	Session string
	Method  string
	Path    string
	Coding  int32
	Args    []*Content
	Kwargs  map[string]*Content
	SmNames []string
}

// PacketA is one Packet response: the packed return value of the
// dispatched handler.
type PacketA struct {
	Session string
	Args    []*Content
	Kwargs  map[string]*Content
}
