package testutil

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// PKI is a throwaway certificate authority with one server and one client
// leaf, written to a temp dir so configs can reference the files.
type PKI struct {
	CA     *x509.Certificate
	CAKey  *ecdsa.PrivateKey
	Server tls.Certificate
	Client tls.Certificate

	CAPath     string
	CertPath   string
	KeyPath    string
	ServerCert string
	ServerKey  string
}

// NewPKI generates and writes a fresh PKI. Leaves are valid for localhost
// and 127.0.0.1.
func NewPKI(t testing.TB) *PKI {
	t.Helper()
	ca, caKey, err := GenerateCA()
	if err != nil {
		t.Fatalf("generate CA: %v", err)
	}
	server, err := GenerateSignedCert(ca, caKey, "127.0.0.1", "localhost")
	if err != nil {
		t.Fatalf("generate server cert: %v", err)
	}
	client, err := GenerateSignedCert(ca, caKey, "bastion-client")
	if err != nil {
		t.Fatalf("generate client cert: %v", err)
	}

	dir := t.TempDir()
	p := &PKI{CA: ca, CAKey: caKey, Server: server, Client: client}
	p.CAPath = WriteCA(t, dir, ca)
	p.CertPath, p.KeyPath = WriteKeyPair(t, dir, "client", client)
	p.ServerCert, p.ServerKey = WriteKeyPair(t, dir, "server", server)
	return p
}

// ServerTLSConfig returns a server config presenting the server leaf. With
// requireClient set, peers must present a certificate issued by the CA.
func (p *PKI) ServerTLSConfig(requireClient bool) *tls.Config {
	tc := &tls.Config{
		Certificates: []tls.Certificate{p.Server},
		MinVersion:   tls.VersionTLS12,
	}
	if requireClient {
		tc.ClientAuth = tls.RequireAndVerifyClientCert
		tc.ClientCAs = CertPool(p.CA)
	}
	return tc
}

// NewTLSServer starts an HTTPS test server using the PKI's server leaf.
func NewTLSServer(t testing.TB, p *PKI, requireClient bool, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(h)
	srv.TLS = p.ServerTLSConfig(requireClient)
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

// ClosedAddr returns a loopback address nothing is listening on.
func ClosedAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
