package tlsutil

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "unexpected non-AEAD cipher suite: %d", cs)
	}
}

func TestClientConfig(t *testing.T) {
	tests := []struct {
		addr, serverName, want string
	}{
		{"redis.internal:6380", "", "redis.internal"},
		{"redis.internal:6380", "cache.example.com", "cache.example.com"},
		{"redis.internal", "", "redis.internal"},
	}
	for _, tt := range tests {
		cfg := ClientConfig(tt.addr, tt.serverName)
		assert.Equal(t, tt.want, cfg.ServerName)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	}

	// 每次返回独立副本
	a, b := ClientConfig("x:1", ""), ClientConfig("y:1", "")
	assert.NotSame(t, a, b)
}
