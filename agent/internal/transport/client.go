package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shotspool/shotspool/agent/internal/config"
)

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// HTTPClient constructs an http.Client for the collector's auth and TLS
// settings. timeout bounds every request end to end.
func HTTPClient(auth config.AuthConfig, tlsOpts config.TLSConfig, timeout time.Duration) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("transport: load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if auth.CAFile != "" {
			caPEM, err := os.ReadFile(auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("transport: read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("transport: no valid certs found in ca file %q", auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsCfg

	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: auth},
		Timeout:   timeout,
	}, nil
}

// New returns a resty client for the collector described by cfg.
func New(cfg config.AgentConfig) (*resty.Client, error) {
	hc, err := HTTPClient(cfg.Auth, cfg.TLS, cfg.Delivery.Timeout)
	if err != nil {
		return nil, err
	}
	return resty.NewWithClient(hc).
		SetTimeout(cfg.Delivery.Timeout).
		SetLogger(slogLogger{}), nil
}

// slogLogger forwards resty's own messages to slog at debug level; request
// failures are classified and logged by the callers.
type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...interface{}) {
	slog.Debug("transport: resty error", "detail", fmt.Sprintf(format, v...))
}

func (slogLogger) Warnf(format string, v ...interface{}) {
	slog.Debug("transport: resty warning", "detail", fmt.Sprintf(format, v...))
}

func (slogLogger) Debugf(format string, v ...interface{}) {
	slog.Debug("transport: resty", "detail", fmt.Sprintf(format, v...))
}
