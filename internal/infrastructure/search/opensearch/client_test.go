package opensearch

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

func newTestConfig(addr string) ClientConfig {
	return ClientConfig{
		Addresses:      []string{addr},
		RequestTimeout: time.Second,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{"valid", ClientConfig{Addresses: []string{"http://localhost:9200"}}, ""},
		{"no addresses", ClientConfig{}, "invalid opensearch configuration"},
		{"negative retries", ClientConfig{Addresses: []string{"http://x"}, MaxRetries: -1}, "MaxRetries must be >= 0"},
		{"negative timeout", ClientConfig{Addresses: []string{"http://x"}, RequestTimeout: -time.Second}, "RequestTimeout must be >= 0"},
		{"tls without cert", ClientConfig{Addresses: []string{"https://x"}, TLSEnabled: true}, "TLSCertPath required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	assert.True(t, client.IsHealthy())
	assert.NotNil(t, client.GetClient())
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusServiceUnavailable)
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), nil)
	assert.Nil(t, client)
	assert.True(t, stderrors.Is(err, ErrConnectionFailed))
}

func TestNewClient_MissingCertificate(t *testing.T) {
	cfg := newTestConfig("https://localhost:9200")
	cfg.TLSEnabled = true
	cfg.TLSCertPath = "/nonexistent/ca.pem"
	_, err := NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestClient_PingTracksHealth(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	failing.Store(true)
	assert.Error(t, client.Ping(context.Background()))
	assert.False(t, client.IsHealthy())

	failing.Store(false)
	assert.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())
}
