package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"bytemomo/bastion/internal/adapter/yamlconfig"
	"bytemomo/bastion/internal/agentserver"
	"bytemomo/bastion/internal/native"
	"bytemomo/bastion/internal/policy"
)

func (a *app) agentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "Run the reference remote agent"}
	cmd.AddCommand(a.agentServeCmd())
	return cmd
}

type serveOptions struct {
	addr, grpcAddr string
	cert, key      string
	clientCA       string
	policyPath     string
	agentID        string
	allowInsecure  bool
	shutdownGrace  time.Duration
}

func (a *app) agentServeCmd() *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent protocol over HTTPS and optionally gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.bind(cmd, "token-secret")
			return a.serve(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "127.0.0.1:8443", "HTTPS listen address")
	f.StringVar(&o.grpcAddr, "grpc-addr", "", "gRPC listen address (disabled when empty)")
	f.StringVar(&o.cert, "cert", "", "server certificate path")
	f.StringVar(&o.key, "key", "", "server key path")
	f.StringVar(&o.clientCA, "client-ca", "", "CA bundle; when set clients must present a certificate it issued")
	f.StringVar(&o.policyPath, "policy", "", "policy whose hash is reported during handshake")
	f.StringVar(&o.agentID, "agent-id", agentserver.DefaultAgentID, "agent id reported during handshake")
	f.String("token-secret", "", "HS256 secret; when set every request needs a bearer token")
	f.BoolVar(&o.allowInsecure, "allow-insecure", false, "serve plaintext when no certificate is given")
	f.DurationVar(&o.shutdownGrace, "shutdown-grace", 5*time.Second, "graceful shutdown timeout")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, o serveOptions) error {
	log := logrus.WithField("component", "agent")

	svc := &agentserver.Service{
		Registry: native.Default(),
		AgentID:  o.agentID,
		Log:      log,
	}
	if o.policyPath != "" {
		p, err := yamlconfig.LoadPolicy(o.policyPath)
		if err != nil {
			return err
		}
		if svc.PolicyHash, err = policy.Hash(p); err != nil {
			return err
		}
	}

	tc, err := serverTLS(o)
	if err != nil {
		return fail(exitMalformed, err)
	}
	secret := a.v.GetString("token-secret")

	// Bind gRPC first so a bad --grpc-addr fails before anything is serving.
	var grpcLn net.Listener
	if o.grpcAddr != "" {
		if grpcLn, err = net.Listen("tcp", o.grpcAddr); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           agentserver.NewHandler(agentserver.Config{Service: svc, TokenSecret: secret}),
		TLSConfig:         tc,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		var err error
		if tc != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	log.WithFields(logrus.Fields{"addr": o.addr, "tls": tc != nil}).Info("Serving agent HTTP API")

	var gs *grpc.Server
	if grpcLn != nil {
		var opts []grpc.ServerOption
		if tc != nil {
			opts = append(opts, grpc.Creds(credentials.NewTLS(tc)))
		}
		gs = agentserver.NewGRPCServer(svc, secret, opts...)
		go func() {
			if err := gs.Serve(grpcLn); err != nil {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
		log.WithField("addr", o.grpcAddr).Info("Serving agent gRPC API")
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownGrace)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	log.Info("Agent stopped")
	return err
}

// serverTLS returns nil only for explicitly allowed plaintext serving.
func serverTLS(o serveOptions) (*tls.Config, error) {
	if o.cert == "" && o.key == "" {
		if !o.allowInsecure {
			return nil, errors.New("--cert and --key are required unless --allow-insecure is set")
		}
		return nil, nil
	}
	if o.cert == "" || o.key == "" {
		return nil, errors.New("--cert and --key must be given together")
	}
	pair, err := tls.LoadX509KeyPair(o.cert, o.key)
	if err != nil {
		return nil, fmt.Errorf("load server key pair: %w", err)
	}
	tc := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if o.clientCA != "" {
		pem, err := os.ReadFile(o.clientCA)
		if err != nil {
			return nil, fmt.Errorf("read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client CA %s holds no certificates", o.clientCA)
		}
		tc.ClientCAs = pool
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tc, nil
}
