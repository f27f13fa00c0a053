// Package daemonclient implements the client half of the plugin-hosting
// RPC contract: a direct port of reccd/daemon/daemon_client.py's
// DaemonClient onto rpcapi.ReccdAPIClient.
package daemonclient

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/reccd/reccd/internal/config"
	"github.com/reccd/reccd/internal/rerrors"
	"github.com/reccd/reccd/internal/rlog"
	"github.com/reccd/reccd/pack"
	"github.com/reccd/reccd/rpcapi"
)

// State mirrors DaemonClient's implicit Created/Connected/Registered
// states, made explicit here since Go has no duck-typed "is_open".
type State int

const (
	StateCreated State = iota
	StateConnected
	StateRegistered
	StateClosed
)

// Client drives the heartbeat -> register -> request conversation with
// one Servicer, maintaining the shared-memory policy discovered at
// Register time.
type Client struct {
	mu sync.Mutex

	address              string
	session              string
	disableSharedMemory  bool
	tlsConfig            *tls.Config
	pool                 pack.SharedMemoryPool
	codec                pack.Codec
	logger               *slog.Logger
	maxSendMessageLength int
	maxRecvMessageLength int

	dialOpts []grpc.DialOption

	state State
	conn  *grpc.ClientConn
	stub  rpcapi.ReccdAPIClient
	neg   pack.ShmNegotiation
}

// Option configures a Client.
type Option func(*Client)

// WithSharedMemoryPool supplies the pool Request rents slots from. A nil
// pool (the default) disables the shared-memory path entirely.
func WithSharedMemoryPool(pool pack.SharedMemoryPool) Option {
	return func(c *Client) { c.pool = pool }
}

// WithCodec overrides the default MsgpackZlibCodec.
func WithCodec(codec pack.Codec) Option {
	return func(c *Client) { c.codec = codec }
}

// WithDisableSharedMemory forces the shared-memory path off even if
// Register negotiates it as possible.
func WithDisableSharedMemory() Option {
	return func(c *Client) { c.disableSharedMemory = true }
}

// WithLogger overrides the default rlog-backed logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialOptions appends extra grpc.DialOption values to the ones Open
// always applies (transport credentials, message-size ceilings) —
// mirroring the teacher's GRPCDialOptions escape hatch, and the hook
// tests use to dial an in-memory bufconn listener.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// New builds a Client for desc. The session id is a fresh UUIDv4 with
// hyphens stripped, matching the original's uuid4().hex.
func New(desc config.BindDescriptor, opts ...Option) *Client {
	c := &Client{
		address:              desc.Address,
		session:              strings.ReplaceAll(uuid.New().String(), "-", ""),
		tlsConfig:            desc.TLS,
		codec:                pack.MsgpackZlibCodec{},
		logger:               rlog.New("daemonclient"),
		maxSendMessageLength: config.MaxSendMessageLength,
		maxRecvMessageLength: config.MaxReceiveMessageLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns this client's session id.
func (c *Client) Session() string { return c.session }

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PossibleSharedMemory reports whether the last Register negotiated
// shared-memory viability.
func (c *Client) PossibleSharedMemory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.neg.IsSm
}

// Open dials the server and blocks until the channel is ready or ctx is
// done, mirroring DaemonClient.open's wait_for(channel_ready(), timeout).
func (c *Client) Open(ctx context.Context) error {
	const op = rerrors.Op("daemonclient.Client.Open")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated && c.state != StateClosed {
		return rerrors.Callback(op, rerrors.KindCallbackInvalidState, "", "",
			fmt.Errorf("open called in state %d", c.state))
	}

	network, target := config.ParseAddress(c.address)
	dialTarget := target
	if network == "unix" {
		dialTarget = "unix:" + target
	}

	creds := insecure.NewCredentials()
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(c.maxSendMessageLength),
			grpc.MaxCallRecvMsgSize(c.maxRecvMessageLength),
		),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(dialTarget, opts...)
	if err != nil {
		return rerrors.Callback(op, rerrors.KindTransport, "", "", err)
	}

	conn.Connect()
	for {
		s := conn.GetState()
		if s == connectivity.Ready {
			break
		}
		if !conn.WaitForStateChange(ctx, s) {
			_ = conn.Close()
			return rerrors.Callback(op, rerrors.KindTransport, "", "", ctx.Err())
		}
	}

	c.conn = conn
	c.stub = rpcapi.NewReccdAPIClient(conn)
	c.state = StateConnected
	c.logger.Info("channel ready", "address", c.address, "session", c.session)
	return nil
}

// Close drops the channel and releases any retained shared-memory
// slots. Idempotent: closing twice is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.state = StateClosed
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.stub = nil
	c.state = StateClosed
	c.logger.Info("channel closed", "session", c.session)
	return err
}

// Heartbeat may be issued from StateConnected or later.
func (c *Client) Heartbeat(ctx context.Context, delay time.Duration) (bool, error) {
	const op = rerrors.Op("daemonclient.Client.Heartbeat")

	c.mu.Lock()
	stub := c.stub
	c.mu.Unlock()
	if stub == nil {
		return false, rerrors.Callback(op, rerrors.KindCallbackInvalidState, "", "",
			fmt.Errorf("heartbeat called before open"))
	}

	resp, err := stub.Heartbeat(ctx, &rpcapi.Pit{Delay: delay.Seconds()})
	if err != nil {
		return false, rerrors.Callback(op, rerrors.KindTransport, "", "", err)
	}
	return resp.Ok, nil
}

// Register updates the local ShmNegotiation and transitions to
// StateRegistered. It returns the server's RegisterCode.
func (c *Client) Register(ctx context.Context, args []string, kwargs map[string]string) (int32, error) {
	const op = rerrors.Op("daemonclient.Client.Register")

	c.mu.Lock()
	stub := c.stub
	pool := c.pool
	c.mu.Unlock()
	if stub == nil {
		return 0, rerrors.Callback(op, rerrors.KindCallbackInvalidState, "", "",
			fmt.Errorf("register called before open"))
	}

	req := &rpcapi.RegisterQ{Session: c.session, Args: args, Kwargs: kwargs}

	var testSlots *pack.Slots
	if !c.disableSharedMemory && pool != nil {
		slots, name, pass, err := rentShmTest(ctx, pool)
		if err == nil {
			req.TestSmName = name
			req.TestSmPass = pass
			testSlots = slots
		}
	}
	if testSlots != nil {
		defer testSlots.Release()
	}

	resp, err := stub.Register(ctx, req)
	if err != nil {
		return 0, rerrors.Callback(op, rerrors.KindTransport, "", "", err)
	}

	c.mu.Lock()
	c.neg.IsSm = resp.IsSm
	if resp.MinSmSize > c.neg.MinSmSize {
		c.neg.MinSmSize = resp.MinSmSize
	}
	if resp.MinSmByte > c.neg.MinSmByte {
		c.neg.MinSmByte = resp.MinSmByte
	}
	c.state = StateRegistered
	c.mu.Unlock()

	return resp.Code, nil
}

// rentShmTest rents one small slot, fills it with random bytes, and
// returns the slot (so the caller can keep it alive for the round trip),
// its name, and the bytes written — the client half of the Register
// shared-memory test.
func rentShmTest(ctx context.Context, pool pack.SharedMemoryPool) (*pack.Slots, string, []byte, error) {
	slots, err := pool.Rent(ctx, 1, 32)
	if err != nil {
		return nil, "", nil, err
	}
	pass := make([]byte, 32)
	if _, err := rand.Read(pass); err != nil {
		slots.Release()
		return nil, "", nil, err
	}
	slot := slots.Get(0)
	copy(slot.Bytes(), pass)
	return slots, slot.Name, pass, nil
}

// Request transmits a PacketQ and awaits a PacketA, using the shared
// memory path only when PossibleSharedMemory() && !disableSharedMemory.
func (c *Client) Request(ctx context.Context, method, path string, args []any, kwargs map[string]any) (*pack.Response, error) {
	const op = rerrors.Op("daemonclient.Client.Request")

	c.mu.Lock()
	stub := c.stub
	state := c.state
	neg := c.neg
	pool := c.pool
	codec := c.codec
	c.mu.Unlock()

	if state != StateRegistered {
		return nil, rerrors.Callback(op, rerrors.KindProtocolOrder, "", "",
			fmt.Errorf("request called in state %d; register must precede request", state))
	}

	useSm := neg.IsSm && !c.disableSharedMemory
	packNeg := pack.ShmNegotiation{}
	var activePool pack.SharedMemoryPool
	if useSm {
		packNeg = neg
		activePool = pool
	}

	packer := pack.NewPacker(codec, activePool, packNeg)
	packed, err := packer.Pack(args, kwargs)
	if err != nil {
		return nil, rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, "", "", err)
	}
	defer packed.Release()

	var smNames []string
	var slotsByName map[string]*pack.Slot
	if packed.Slots != nil {
		slotsByName = packed.Slots.ByName()
		for name := range slotsByName {
			smNames = append(smNames, name)
		}
	}

	req := &rpcapi.PacketQ{
		Session: c.session,
		Method:  method,
		Path:    path,
		Args:    packed.Args,
		Kwargs:  packed.Kwargs,
		SmNames: smNames,
		Coding:  codec.Code(),
	}

	resp, err := stub.Packet(ctx, req)
	if err != nil {
		// spec §4.5/§5: a failed or timed-out Packet call closes the
		// channel rather than leaving it open in an indeterminate state.
		_ = c.Close(context.Background())
		return nil, rerrors.Callback(op, rerrors.KindTransport, "", "", err)
	}

	unpacker := pack.NewUnpacker(codec, slotsByName)
	return unpacker.Unpack(resp.Args, resp.Kwargs)
}
