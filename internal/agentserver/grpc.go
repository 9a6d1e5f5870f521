package agentserver

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"bytemomo/bastion/internal/agent"
)

// agentService is the handler type of the Agent gRPC service.
type agentService interface {
	handshake(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: agent.ServiceName,
	HandlerType: (*agentService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: unaryHandler(agent.HandshakeMethod, agentService.handshake)},
		{MethodName: "Execute", Handler: unaryHandler(agent.ExecuteMethod, agentService.execute)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bastion/agent/v1/agent.proto",
}

type unaryMethod func(agentService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(agentService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(agentService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type grpcAgent struct {
	svc *Service
}

// RegisterGRPC installs the Agent service on s.
func RegisterGRPC(s grpc.ServiceRegistrar, svc *Service) {
	if svc == nil {
		svc = &Service{}
	}
	s.RegisterService(&serviceDesc, &grpcAgent{svc: svc})
}

// NewGRPCServer returns a gRPC server exposing the Agent service. A non-empty
// tokenSecret enforces bearer tokens carried in the authorization metadata.
func NewGRPCServer(svc *Service, tokenSecret string, opts ...grpc.ServerOption) *grpc.Server {
	if tokenSecret != "" {
		opts = append(opts, grpc.UnaryInterceptor(authInterceptor(tokenSecret)))
	}
	s := grpc.NewServer(opts...)
	RegisterGRPC(s, svc)
	return s
}

func (g *grpcAgent) handshake(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req agent.HandshakeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode handshake: %v", err)
	}
	resp, err := g.svc.Handshake(ctx, req)
	if errors.Is(err, ErrUnsupportedVersion) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(resp)
}

func (g *grpcAgent) execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req agent.ExecuteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode execute request: %v", err)
	}
	return toStruct(g.svc.Execute(ctx, req))
}

func authInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "bearer token required")
		}
		token, ok := bearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "bearer token required")
		}
		if _, err := agent.ParseToken(token, secret); err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return handler(ctx, req)
	}
}

func fromStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
