package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// BuildTLSConfig builds the client TLS configuration. Without a CA bundle the
// system trust store is used.
func BuildTLSConfig(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.ServerName != "" {
		tc.ServerName = cfg.ServerName
	}

	if cfg.CAPath != "" {
		pem, err := os.ReadFile(cfg.CAPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA bundle: %v", ErrInvalidTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrInvalidTLSConfig, cfg.CAPath)
		}
		tc.RootCAs = pool
	}

	if cfg.CertPath != "" && cfg.KeyPath != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: load client certificate: %v", ErrInvalidTLSConfig, err)
		}
		tc.Certificates = []tls.Certificate{pair}
	}

	return tc, nil
}
