package rpc

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tedx.registration.v1.RegistrationService"

const (
	MethodQuote              = "/" + ServiceName + "/Quote"
	MethodCreateOrder        = "/" + ServiceName + "/CreateOrder"
	MethodVerifyOrder        = "/" + ServiceName + "/VerifyOrder"
	MethodInvalidateCoupon   = "/" + ServiceName + "/InvalidateCoupon"
	MethodRecordRegistration = "/" + ServiceName + "/RecordRegistration"
)

const (
	defaultMaxMessageSize = 4 << 20
	messageHeadroom       = 1 << 20
)

// MaxMessageSize is the message limit needed for a RecordRegistration call
// carrying both uploads at their size limits. structpb carries bytes as base64.
func MaxMessageSize(maxPhotoBytes, maxIDCardBytes int64) int {
	size := base64.StdEncoding.EncodedLen(int(maxPhotoBytes)) + base64.StdEncoding.EncodedLen(int(maxIDCardBytes)) + messageHeadroom
	if size < defaultMaxMessageSize {
		return defaultMaxMessageSize
	}
	return size
}

// RegistrationServiceServer exchanges structpb.Struct messages, so the service
// needs no generated code.
type RegistrationServiceServer interface {
	Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	VerifyOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	InvalidateCoupon(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordRegistration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterRegistrationServiceServer(s grpc.ServiceRegistrar, srv RegistrationServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

type unaryMethod func(RegistrationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(RegistrationServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistrationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Quote", Handler: handler(MethodQuote, RegistrationServiceServer.Quote)},
		{MethodName: "CreateOrder", Handler: handler(MethodCreateOrder, RegistrationServiceServer.CreateOrder)},
		{MethodName: "VerifyOrder", Handler: handler(MethodVerifyOrder, RegistrationServiceServer.VerifyOrder)},
		{MethodName: "InvalidateCoupon", Handler: handler(MethodInvalidateCoupon, RegistrationServiceServer.InvalidateCoupon)},
		{MethodName: "RecordRegistration", Handler: handler(MethodRecordRegistration, RegistrationServiceServer.RecordRegistration)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tedx/registration/v1/registration.proto",
}
