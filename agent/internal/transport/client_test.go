package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotspool/shotspool/agent/internal/config"
)

func captureHeaders(t *testing.T) (*httptest.Server, <-chan http.Header) {
	t.Helper()
	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func agentCfg(auth config.AuthConfig) config.AgentConfig {
	return config.AgentConfig{
		Auth:     auth,
		Delivery: config.DeliveryConfig{Timeout: 2 * time.Second},
	}
}

func TestNew_AuthModes(t *testing.T) {
	t.Setenv("SHOTSPOOL_TEST_KEY", "k-123")
	t.Setenv("SHOTSPOOL_TEST_TOKEN", "tok")
	t.Setenv("SHOTSPOOL_TEST_PASS", "pw")

	tests := []struct {
		name   string
		auth   config.AuthConfig
		header string
		want   string
	}{
		{"apikey default header", config.AuthConfig{Mode: "apikey", KeyEnv: "SHOTSPOOL_TEST_KEY"}, "X-Api-Key", "k-123"},
		{"apikey custom header", config.AuthConfig{Mode: "apikey", Header: "X-Collector-Key", KeyEnv: "SHOTSPOOL_TEST_KEY"}, "X-Collector-Key", "k-123"},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "SHOTSPOOL_TEST_TOKEN"}, "Authorization", "Bearer tok"},
		{"basic", config.AuthConfig{Mode: "basic", Username: "u", PasswordEnv: "SHOTSPOOL_TEST_PASS"}, "Authorization", "Basic dTpwdw=="},
		{"none", config.AuthConfig{Mode: "none"}, "Authorization", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := captureHeaders(t)
			c, err := New(agentCfg(tc.auth))
			require.NoError(t, err)

			resp, err := c.R().Get(srv.URL)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode())

			h := <-got
			assert.Equal(t, tc.want, h.Get(tc.header))
		})
	}
}

func TestHTTPClient_MTLSMissingCert(t *testing.T) {
	_, err := HTTPClient(config.AuthConfig{Mode: "mtls", CertFile: "/nope.crt", KeyFile: "/nope.key"}, config.TLSConfig{}, time.Second)
	assert.Error(t, err)
}

func TestNew_AppliesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := agentCfg(config.AuthConfig{})
	cfg.Delivery.Timeout = 50 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.R().Get(srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
