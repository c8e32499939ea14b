package grpc

// proto.go defines the gRPC server interface for bib.realizer.v1.RealizerService.
// Messages travel as JSON (see json_codec.go), so the descriptors below are
// written by hand instead of generated.

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "bib.realizer.v1.RealizerService"

// RealizerServiceServer is the server API for RealizerService.
type RealizerServiceServer interface {
	CalculateRealizedResults(context.Context, *CalculateRealizedResultsRequest) (*CalculateRealizedResultsResponse, error)
	CalculateBook(context.Context, *CalculateBookRequest) (*CalculateBookResponse, error)
	ResetRealizedResults(context.Context, *ResetRealizedResultsRequest) (*ResetRealizedResultsResponse, error)
	DeleteTradeResults(context.Context, *DeleteTradeResultsRequest) (*DeleteTradeResultsResponse, error)
	FlagRebuild(context.Context, *FlagRebuildRequest) (*FlagRebuildResponse, error)
	mustEmbedUnimplementedRealizerServiceServer()
}

// UnimplementedRealizerServiceServer provides forward-compatible default implementations.
type UnimplementedRealizerServiceServer struct{}

func (UnimplementedRealizerServiceServer) CalculateRealizedResults(context.Context, *CalculateRealizedResultsRequest) (*CalculateRealizedResultsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CalculateRealizedResults not implemented")
}
func (UnimplementedRealizerServiceServer) CalculateBook(context.Context, *CalculateBookRequest) (*CalculateBookResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CalculateBook not implemented")
}
func (UnimplementedRealizerServiceServer) ResetRealizedResults(context.Context, *ResetRealizedResultsRequest) (*ResetRealizedResultsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResetRealizedResults not implemented")
}
func (UnimplementedRealizerServiceServer) DeleteTradeResults(context.Context, *DeleteTradeResultsRequest) (*DeleteTradeResultsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteTradeResults not implemented")
}
func (UnimplementedRealizerServiceServer) FlagRebuild(context.Context, *FlagRebuildRequest) (*FlagRebuildResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method FlagRebuild not implemented")
}
func (UnimplementedRealizerServiceServer) mustEmbedUnimplementedRealizerServiceServer() {}

// RegisterRealizerServiceServer registers the RealizerServiceServer with the gRPC server.
func RegisterRealizerServiceServer(s grpclib.ServiceRegistrar, srv RealizerServiceServer) {
	s.RegisterService(&_RealizerService_serviceDesc, srv) //nolint:revive // gRPC handler registration
}

// FullMethod returns the full gRPC method name of a RealizerService method.
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

//nolint:revive // gRPC handler registration
var _RealizerService_serviceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RealizerServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "CalculateRealizedResults", Handler: _RealizerService_CalculateRealizedResults_Handler}, //nolint:revive // gRPC handler registration
		{MethodName: "CalculateBook", Handler: _RealizerService_CalculateBook_Handler},                       //nolint:revive // gRPC handler registration
		{MethodName: "ResetRealizedResults", Handler: _RealizerService_ResetRealizedResults_Handler},         //nolint:revive // gRPC handler registration
		{MethodName: "DeleteTradeResults", Handler: _RealizerService_DeleteTradeResults_Handler},             //nolint:revive // gRPC handler registration
		{MethodName: "FlagRebuild", Handler: _RealizerService_FlagRebuild_Handler},                           //nolint:revive // gRPC handler registration
	},
	Streams: []grpclib.StreamDesc{},
}

//nolint:revive,errcheck // gRPC handler registration
func _RealizerService_CalculateRealizedResults_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(CalculateRealizedResultsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RealizerServiceServer).CalculateRealizedResults(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("CalculateRealizedResults"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RealizerServiceServer).CalculateRealizedResults(ctx, req.(*CalculateRealizedResultsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

//nolint:revive,errcheck // gRPC handler registration
func _RealizerService_CalculateBook_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(CalculateBookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RealizerServiceServer).CalculateBook(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("CalculateBook"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RealizerServiceServer).CalculateBook(ctx, req.(*CalculateBookRequest))
	}
	return interceptor(ctx, in, info, handler)
}

//nolint:revive,errcheck // gRPC handler registration
func _RealizerService_ResetRealizedResults_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResetRealizedResultsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RealizerServiceServer).ResetRealizedResults(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("ResetRealizedResults"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RealizerServiceServer).ResetRealizedResults(ctx, req.(*ResetRealizedResultsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

//nolint:revive,errcheck // gRPC handler registration
func _RealizerService_DeleteTradeResults_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteTradeResultsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RealizerServiceServer).DeleteTradeResults(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("DeleteTradeResults"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RealizerServiceServer).DeleteTradeResults(ctx, req.(*DeleteTradeResultsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

//nolint:revive,errcheck // gRPC handler registration
func _RealizerService_FlagRebuild_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(FlagRebuildRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RealizerServiceServer).FlagRebuild(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("FlagRebuild"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RealizerServiceServer).FlagRebuild(ctx, req.(*FlagRebuildRequest))
	}
	return interceptor(ctx, in, info, handler)
}
