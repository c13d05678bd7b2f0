package forwarder

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/kiva-corp/localrun/internal/config"
)

// BuildHTTPClient constructs an HTTP client with the origin's TLS rules applied, for
// callers outside this package that need to dial the same origin (the session's health
// checker, specifically) with identical TLS options.
func BuildHTTPClient(cfg *config.TunnelConfig) (*http.Client, error) {
	return buildHTTPClient(cfg)
}

// buildHTTPClient constructs the client used to dial the origin, applying its TLS rules.
// It never sets Client.Timeout — callers apply the adaptive per-request timeout through the
// request context instead, since a single shared client serves requests with different
// deadlines.
func buildHTTPClient(cfg *config.TunnelConfig) (*http.Client, error) {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	if !cfg.UseTLS {
		return client, nil
	}

	tlsConfig := &tls.Config{}

	if cfg.AllowInvalidCert {
		tlsConfig.InsecureSkipVerify = true
	} else if cfg.CertPath != "" && cfg.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("forwarder: load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}

		if cfg.CAPath != "" {
			caBytes, err := os.ReadFile(cfg.CAPath)
			if err != nil {
				return nil, fmt.Errorf("forwarder: read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caBytes) {
				return nil, fmt.Errorf("forwarder: no certificates found in ca file %s", cfg.CAPath)
			}
			tlsConfig.RootCAs = pool
		}
	}

	client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return client, nil
}
