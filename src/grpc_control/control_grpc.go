package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The control API uses only well-known message types, so the service
// descriptor is declared here instead of being generated from a .proto file.
//
//	service RelayControl {
//	  rpc GetThresholds(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc UpdateThresholds(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
const (
	ServiceName = "smartguard.relay.v1.RelayControl"

	getThresholdsMethod    = "/" + ServiceName + "/GetThresholds"
	updateThresholdsMethod = "/" + ServiceName + "/UpdateThresholds"
	getStatusMethod        = "/" + ServiceName + "/GetStatus"
)

// -----------------------------------------------------------------------------
// Server side
// -----------------------------------------------------------------------------

type RelayControlServer interface {
	GetThresholds(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedRelayControlServer can be embedded for forward compatibility.
type UnimplementedRelayControlServer struct{}

func (UnimplementedRelayControlServer) GetThresholds(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetThresholds not implemented")
}
func (UnimplementedRelayControlServer) UpdateThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateThresholds not implemented")
}
func (UnimplementedRelayControlServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func RegisterRelayControlServer(s grpc.ServiceRegistrar, srv RelayControlServer) {
	s.RegisterService(&RelayControl_ServiceDesc, srv)
}

// -----------------------------------------------------------------------------

func _RelayControl_GetThresholds_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayControlServer).GetThresholds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getThresholdsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayControlServer).GetThresholds(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _RelayControl_UpdateThresholds_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayControlServer).UpdateThresholds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: updateThresholdsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayControlServer).UpdateThresholds(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _RelayControl_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayControlServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RelayControl_ServiceDesc is the grpc.ServiceDesc for the RelayControl service.
var RelayControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetThresholds", Handler: _RelayControl_GetThresholds_Handler},
		{MethodName: "UpdateThresholds", Handler: _RelayControl_UpdateThresholds_Handler},
		{MethodName: "GetStatus", Handler: _RelayControl_GetStatus_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "smartguard/relay/v1/control.proto",
}

// -----------------------------------------------------------------------------
// Client side
// -----------------------------------------------------------------------------

type RelayControlClient interface {
	GetThresholds(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateThresholds(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type relayControlClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayControlClient(cc grpc.ClientConnInterface) RelayControlClient {
	return &relayControlClient{cc}
}

func (c *relayControlClient) GetThresholds(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getThresholdsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayControlClient) UpdateThresholds(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, updateThresholdsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayControlClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
