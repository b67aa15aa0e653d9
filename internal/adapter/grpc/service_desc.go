package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "cardguard.v1.CardGuardService"

// CardGuardServer is the server API for the CardGuard service.
// Every method exchanges google.protobuf.Struct payloads.
type CardGuardServer interface {
	IssueCard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionCardStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateControls(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AttemptTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenDispute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReverseTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateFraudScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(CardGuardServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc describes the CardGuard service for grpc.Server registration.
// It mirrors proto/cardguard/v1/cardguard.proto.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CardGuardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssueCard", Handler: structHandler("IssueCard", CardGuardServer.IssueCard)},
		{MethodName: "GetCard", Handler: structHandler("GetCard", CardGuardServer.GetCard)},
		{MethodName: "TransitionCardStatus", Handler: structHandler("TransitionCardStatus", CardGuardServer.TransitionCardStatus)},
		{MethodName: "UpdateControls", Handler: structHandler("UpdateControls", CardGuardServer.UpdateControls)},
		{MethodName: "AttemptTransaction", Handler: structHandler("AttemptTransaction", CardGuardServer.AttemptTransaction)},
		{MethodName: "GetTransaction", Handler: structHandler("GetTransaction", CardGuardServer.GetTransaction)},
		{MethodName: "ListTransactions", Handler: structHandler("ListTransactions", CardGuardServer.ListTransactions)},
		{MethodName: "OpenDispute", Handler: structHandler("OpenDispute", CardGuardServer.OpenDispute)},
		{MethodName: "ReverseTransaction", Handler: structHandler("ReverseTransaction", CardGuardServer.ReverseTransaction)},
		{MethodName: "UpdateFraudScore", Handler: structHandler("UpdateFraudScore", CardGuardServer.UpdateFraudScore)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cardguard/v1/cardguard.proto",
}

// RegisterCardGuardServer registers srv on s
func RegisterCardGuardServer(s grpc.ServiceRegistrar, srv CardGuardServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func structHandler(method string, call structMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CardGuardServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CardGuardServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls CardGuard methods over a client connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a CardGuard client
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method (e.g. "AttemptTransaction") with req
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
