package agent

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC service served by agents. Messages are google.protobuf.Struct so the
// JSON and gRPC transports share one schema.
const (
	ServiceName     = "bastion.agent.v1.Agent"
	HandshakeMethod = "/" + ServiceName + "/Handshake"
	ExecuteMethod   = "/" + ServiceName + "/Execute"
)

type grpcTransport struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	auth    bearer
}

func newGRPCTransport(target string, tc *tls.Config, plaintext bool, timeout time.Duration, auth bearer) (*grpcTransport, error) {
	creds := credentials.NewTLS(tc)
	if plaintext {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, target, err)
	}
	return &grpcTransport{conn: conn, timeout: timeout, auth: auth}, nil
}

func (t *grpcTransport) handshake(ctx context.Context, req map[string]any) (map[string]any, error) {
	return t.invoke(ctx, HandshakeMethod, req)
}

func (t *grpcTransport) execute(ctx context.Context, req map[string]any) (map[string]any, error) {
	return t.invoke(ctx, ExecuteMethod, req)
}

func (t *grpcTransport) close() error {
	return t.conn.Close()
}

func (t *grpcTransport) invoke(ctx context.Context, method string, body map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	token, err := t.auth.token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}

	out := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, method, err)
	}
	return out.AsMap(), nil
}
