package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "medsched.v1.AppointmentsService"

// AppointmentsServiceServer is served with google.protobuf.Struct messages so
// that clients need no generated stubs.
type AppointmentsServiceServer interface {
	GenerateSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveShift(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RejectAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv AppointmentsServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AppointmentsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AppointmentsServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GenerateSlots", AppointmentsServiceServer.GenerateSlots),
		unaryHandler("ResolveShift", AppointmentsServiceServer.ResolveShift),
		unaryHandler("CreateAppointment", AppointmentsServiceServer.CreateAppointment),
		unaryHandler("ConfirmAppointment", AppointmentsServiceServer.ConfirmAppointment),
		unaryHandler("CancelAppointment", AppointmentsServiceServer.CancelAppointment),
		unaryHandler("RejectAppointment", AppointmentsServiceServer.RejectAppointment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medsched/v1/appointments.proto",
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

// FullMethod returns the wire name of an AppointmentsService method.
func FullMethod(name string) string {
	return "/" + serviceName + "/" + name
}
