package rpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ReccdAPIClient is the client API for ReccdAPI, matching the shape
// protoc-gen-go-grpc emits for a service with three unary RPCs.
type ReccdAPIClient interface {
	Heartbeat(ctx context.Context, in *Pit, opts ...grpc.CallOption) (*Pat, error)
	Register(ctx context.Context, in *RegisterQ, opts ...grpc.CallOption) (*RegisterA, error)
	Packet(ctx context.Context, in *PacketQ, opts ...grpc.CallOption) (*PacketA, error)
}

type reccdAPIClient struct {
	cc   grpc.ClientConnInterface
	opts []grpc.CallOption
}

// NewReccdAPIClient wraps cc. Every call carries
// grpc.CallContentSubtype(CodecName), so both ends marshal through
// rpcapi's registered codec and no proto.Message implementation is needed.
func NewReccdAPIClient(cc grpc.ClientConnInterface) ReccdAPIClient {
	return &reccdAPIClient{cc: cc, opts: []grpc.CallOption{grpc.CallContentSubtype(CodecName)}}
}

func (c *reccdAPIClient) Heartbeat(ctx context.Context, in *Pit, opts ...grpc.CallOption) (*Pat, error) {
	out := new(Pat)
	err := c.cc.Invoke(ctx, "/reccd.ReccdAPI/Heartbeat", in, out, append(c.opts, opts...)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *reccdAPIClient) Register(ctx context.Context, in *RegisterQ, opts ...grpc.CallOption) (*RegisterA, error) {
	out := new(RegisterA)
	err := c.cc.Invoke(ctx, "/reccd.ReccdAPI/Register", in, out, append(c.opts, opts...)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *reccdAPIClient) Packet(ctx context.Context, in *PacketQ, opts ...grpc.CallOption) (*PacketA, error) {
	out := new(PacketA)
	err := c.cc.Invoke(ctx, "/reccd.ReccdAPI/Packet", in, out, append(c.opts, opts...)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReccdAPIServer is the server API for ReccdAPI.
type ReccdAPIServer interface {
	Heartbeat(context.Context, *Pit) (*Pat, error)
	Register(context.Context, *RegisterQ) (*RegisterA, error)
	Packet(context.Context, *PacketQ) (*PacketA, error)
}

// UnimplementedReccdAPIServer can be embedded to have forward compatible
// implementations; every method returns codes.Unimplemented.
type UnimplementedReccdAPIServer struct{}

func (UnimplementedReccdAPIServer) Heartbeat(context.Context, *Pit) (*Pat, error) {
	return nil, status.Error(codes.Unimplemented, "method Heartbeat not implemented")
}

func (UnimplementedReccdAPIServer) Register(context.Context, *RegisterQ) (*RegisterA, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}

func (UnimplementedReccdAPIServer) Packet(context.Context, *PacketQ) (*PacketA, error) {
	return nil, status.Error(codes.Unimplemented, "method Packet not implemented")
}

// RegisterReccdAPIServer registers srv on s.
func RegisterReccdAPIServer(s grpc.ServiceRegistrar, srv ReccdAPIServer) {
	s.RegisterService(&ReccdAPI_ServiceDesc, srv)
}

func _ReccdAPI_Heartbeat_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Pit)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReccdAPIServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/reccd.ReccdAPI/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReccdAPIServer).Heartbeat(ctx, req.(*Pit))
	}
	return interceptor(ctx, in, info, handler)
}

func _ReccdAPI_Register_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterQ)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReccdAPIServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/reccd.ReccdAPI/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReccdAPIServer).Register(ctx, req.(*RegisterQ))
	}
	return interceptor(ctx, in, info, handler)
}

func _ReccdAPI_Packet_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PacketQ)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReccdAPIServer).Packet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/reccd.ReccdAPI/Packet"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReccdAPIServer).Packet(ctx, req.(*PacketQ))
	}
	return interceptor(ctx, in, info, handler)
}

// ReccdAPI_ServiceDesc is the grpc.ServiceDesc for ReccdAPI, matching the
// layout protoc-gen-go-grpc generates.
var ReccdAPI_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "reccd.ReccdAPI",
	HandlerType: (*ReccdAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: _ReccdAPI_Heartbeat_Handler},
		{MethodName: "Register", Handler: _ReccdAPI_Register_Handler},
		{MethodName: "Packet", Handler: _ReccdAPI_Packet_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reccd/daemon_api.proto",
}
