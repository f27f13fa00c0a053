// Package daemon implements the server half of the plugin-hosting RPC
// contract: Servicer answers Heartbeat/Register/Packet by delegating to
// a plugin.Host, a direct port of reccd/daemon/daemon_servicer.py's
// DaemonServicer onto rpcapi.ReccdAPIServer.
package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/reccd/reccd/pack"
	"github.com/reccd/reccd/plugin"
	"github.com/reccd/reccd/rpcapi"
)

// Servicer implements rpcapi.ReccdAPIServer over a single plugin.Host.
type Servicer struct {
	rpcapi.UnimplementedReccdAPIServer

	host   *plugin.Host
	pool   pack.SharedMemoryPool
	codecs map[int32]pack.Codec
	logger *slog.Logger
}

// Option configures a Servicer.
type Option func(*Servicer)

// WithSharedMemoryPool supplies the pool used to validate the Register
// shm-test and, indirectly, to back Packet's Unpacker. A nil pool (the
// default) means shared memory is never offered to clients.
func WithSharedMemoryPool(pool pack.SharedMemoryPool) Option {
	return func(s *Servicer) { s.pool = pool }
}

// WithLogger overrides the default rlog-backed logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Servicer) { s.logger = logger }
}

// NewServicer wraps host. Both shipped codecs are always registered,
// each under its own pack.Codec.Code(): MsgpackZlibCodec (coding=0, the
// default) and CBORCodec (coding=1, the alternate).
func NewServicer(host *plugin.Host, logger *slog.Logger, opts ...Option) *Servicer {
	msgpackZlib := pack.MsgpackZlibCodec{}
	cbor := pack.CBORCodec{}
	s := &Servicer{
		host: host,
		codecs: map[int32]pack.Codec{
			msgpackZlib.Code(): msgpackZlib,
			cbor.Code():        cbor,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open runs the plugin's on_open and builds its route table, mirroring
// DaemonServicer.open.
func (s *Servicer) Open(ctx context.Context) error {
	s.logger.Info("daemon opening", "module", s.host.Handle().ModuleName)
	if err := s.host.Open(ctx); err != nil {
		return err
	}
	s.logger.Info("daemon opened", "module", s.host.Handle().ModuleName)
	return nil
}

// Close runs the plugin's on_close, mirroring DaemonServicer.close.
func (s *Servicer) Close(ctx context.Context) error {
	s.logger.Info("daemon closing", "module", s.host.Handle().ModuleName)
	if err := s.host.Close(ctx); err != nil {
		return err
	}
	s.logger.Info("daemon closed", "module", s.host.Handle().ModuleName)
	return nil
}

// Heartbeat sleeps for request.Delay, observing ctx cancellation, then
// reports ok.
func (s *Servicer) Heartbeat(ctx context.Context, req *rpcapi.Pit) (*rpcapi.Pat, error) {
	s.logger.Debug("heartbeat", "delay", req.Delay)

	if req.Delay > 0 {
		timer := time.NewTimer(time.Duration(req.Delay * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	return &rpcapi.Pat{Ok: true}, nil
}

// Register validates the client's shared-memory test pair (if present),
// invokes the plugin's on_register, and reports the negotiated shared
// memory thresholds, mirroring DaemonServicer.Register.
func (s *Servicer) Register(ctx context.Context, req *rpcapi.RegisterQ) (*rpcapi.RegisterA, error) {
	s.logger.Debug("register", "session", req.Session, "args", req.Args, "kwargs", req.Kwargs)

	statusCode, err := s.host.Register(ctx, req.Args, req.Kwargs)
	code := rpcapi.RegisterCodeSuccess
	if !s.host.Handle().Caps.HasOnRegister {
		code = rpcapi.RegisterCodeNotFoundRegisterFn
	} else if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	isSm := false
	if req.TestSmName != "" && len(req.TestSmPass) > 0 {
		isSm, err = s.validateSharedMemory(req.TestSmName, req.TestSmPass)
		if err != nil {
			s.logger.Warn("shared-memory validation failed", "name", req.TestSmName, "error", err)
			isSm = false
		}
	}

	var minSmSize, minSmByte int64
	if isSm {
		minSmSize, minSmByte = s.host.RegisterThresholds()
	}
	s.logger.Debug("on_register status", "status", statusCode)

	return &rpcapi.RegisterA{
		Code:      int32(code),
		IsSm:      isSm,
		MinSmSize: minSmSize,
		MinSmByte: minSmByte,
	}, nil
}

// validateSharedMemory reads the named segment the client wrote pass
// into and reports whether it starts with pass, deciding shared-memory
// viability for this client-server pair. Without a pool it reports false.
func (s *Servicer) validateSharedMemory(name string, pass []byte) (bool, error) {
	if s.pool == nil {
		return false, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return false, err
	}
	if len(data) < len(pass) {
		return false, nil
	}
	return bytes.Equal(data[:len(pass)], pass), nil
}

// Packet resolves (method, path) via the plugin host, unpacks the
// request arguments, invokes the handler, and packs its result back,
// mirroring DaemonServicer.Packet. Handler errors are reported as
// RPC-level errors, never a silent empty PacketA.
func (s *Servicer) Packet(ctx context.Context, req *rpcapi.PacketQ) (*rpcapi.PacketA, error) {
	s.logger.Debug("packet", "session", req.Session, "method", req.Method, "path", req.Path)

	handler, params, err := s.host.Route(req.Method, req.Path)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	codec, ok := s.codecs[req.Coding]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown coding %d", req.Coding)
	}

	openedSlots, err := s.openSlotsFor(req.SmNames)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	defer openedSlots.Release()

	unpacker := pack.NewUnpacker(codec, openedSlots.ByName())
	reqResp, err := unpacker.Unpack(req.Args, req.Kwargs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := handler(ctx, params, reqResp.Args, reqResp.Kwargs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	packer := pack.NewPacker(codec, s.pool, pack.ShmNegotiation{})
	packed, err := packer.Pack(result.Args, result.Kwargs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	defer packed.Release()

	return &rpcapi.PacketA{Session: req.Session, Args: packed.Args, Kwargs: packed.Kwargs}, nil
}

// openSlotsFor opens every shared-memory segment the client rented for
// this request (req.SmNames) so the Unpacker can read their contents.
// On success the returned Slots is non-nil and its Release is safe to
// call, even when smNames is empty; on error it is nil.
func (s *Servicer) openSlotsFor(smNames []string) (*pack.Slots, error) {
	slots := &pack.Slots{}
	if len(smNames) == 0 || s.pool == nil {
		return slots, nil
	}
	for _, name := range smNames {
		slot, err := s.pool.Open(name)
		if err != nil {
			slots.Release()
			return nil, err
		}
		slots.Add(slot)
	}
	return slots, nil
}
