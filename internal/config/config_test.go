package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New(TunnelConfig{OriginPort: 3000})
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.OriginHost)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Greater(t, cfg.RequestTimeout.Milliseconds(), int64(0))
}

func TestNew_RejectsMissingPort(t *testing.T) {
	_, err := New(TunnelConfig{})
	require.Error(t, err)
}

func TestNew_ValidatesSubdomain(t *testing.T) {
	_, err := New(TunnelConfig{OriginPort: 3000, Subdomain: "tooshort"})
	require.Error(t, err)

	cfg, err := New(TunnelConfig{OriginPort: 3000, Subdomain: "abc1234567"})
	require.NoError(t, err)
	assert.Equal(t, "abc1234567", cfg.Subdomain)
}

func TestNew_TLSRequiresCertAndKeyUnlessAllowInvalid(t *testing.T) {
	_, err := New(TunnelConfig{OriginPort: 3000, UseTLS: true})
	require.Error(t, err)

	cfg, err := New(TunnelConfig{OriginPort: 3000, UseTLS: true, AllowInvalidCert: true})
	require.NoError(t, err)
	assert.True(t, cfg.AllowInvalidCert)
}

func TestNew_TLSFilesMustBeReadable(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))

	cfg, err := New(TunnelConfig{OriginPort: 3000, UseTLS: true, CertPath: cert, KeyPath: key})
	require.NoError(t, err)
	assert.Equal(t, cert, cfg.CertPath)

	_, err = New(TunnelConfig{OriginPort: 3000, UseTLS: true, CertPath: filepath.Join(dir, "missing.pem"), KeyPath: key})
	require.Error(t, err)
}

func TestOriginScheme(t *testing.T) {
	cfg, err := New(TunnelConfig{OriginPort: 3000, UseTLS: true, AllowInvalidCert: true})
	require.NoError(t, err)
	assert.Equal(t, "https", cfg.OriginScheme())

	cfg2, err := New(TunnelConfig{OriginPort: 3000})
	require.NoError(t, err)
	assert.Equal(t, "http", cfg2.OriginScheme())
}
