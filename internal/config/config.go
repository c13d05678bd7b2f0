// Package config builds and validates the immutable TunnelConfig a Session is opened with.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// TunnelConfig is immutable once constructed by New.
type TunnelConfig struct {
	OriginPort int
	OriginHost string

	BrokerBaseURL string
	Subdomain     string

	UseTLS           bool
	CertPath         string
	KeyPath          string
	CAPath           string
	AllowInvalidCert bool

	RequestTimeout time.Duration
	MaxRetries     int
}

// New builds a TunnelConfig from the given options, applying defaults and validating the
// combination of fields.
func New(opts TunnelConfig) (*TunnelConfig, error) {
	cfg := opts

	if cfg.OriginPort <= 0 {
		return nil, fmt.Errorf("config: origin port is required and must be positive")
	}
	if cfg.OriginHost == "" {
		cfg.OriginHost = protocol.DefaultOriginHost
	}
	if cfg.BrokerBaseURL == "" {
		cfg.BrokerBaseURL = protocol.DefaultBrokerBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = protocol.DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = protocol.DefaultMaxRetries
	}

	if cfg.Subdomain != "" {
		if ok, reason := protocol.ValidateSubdomain(cfg.Subdomain); !ok {
			return nil, fmt.Errorf("config: invalid subdomain: %s", reason)
		}
	}

	if cfg.UseTLS && !cfg.AllowInvalidCert {
		if cfg.CertPath == "" || cfg.KeyPath == "" {
			return nil, fmt.Errorf("config: --local-https requires --local-cert and --local-key unless --allow-invalid-cert is set")
		}
		if err := requireReadable(cfg.CertPath); err != nil {
			return nil, fmt.Errorf("config: local cert: %w", err)
		}
		if err := requireReadable(cfg.KeyPath); err != nil {
			return nil, fmt.Errorf("config: local key: %w", err)
		}
		if cfg.CAPath != "" {
			if err := requireReadable(cfg.CAPath); err != nil {
				return nil, fmt.Errorf("config: local ca: %w", err)
			}
		}
	}

	return &cfg, nil
}

func requireReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// OriginScheme returns "https" or "http" depending on UseTLS.
func (c *TunnelConfig) OriginScheme() string {
	if c.UseTLS {
		return "https"
	}
	return "http"
}
