package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
)

func client(timeout time.Duration) *resty.Client {
	return resty.New().SetTimeout(timeout)
}

// collector serves /health and /upload with configurable behaviour.
type collector struct {
	healthStatus int
	healthBody   string
	uploadHead   int
	heads        atomic.Int32
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		if c.healthStatus == 0 {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(c.healthStatus)
		_, _ = w.Write([]byte(c.healthBody))
	case "/upload":
		if r.Method == http.MethodHead {
			c.heads.Add(1)
		}
		w.WriteHeader(c.uploadHead)
	default:
		http.NotFound(w, r)
	}
}

func TestIsReachable(t *testing.T) {
	tests := []struct {
		name      string
		c         *collector
		want      bool
		wantHeads int32
	}{
		{"healthy", &collector{healthStatus: 200, healthBody: `{"status":"ok"}`, uploadHead: 500}, true, 0},
		{"no health route, HEAD 405", &collector{uploadHead: 405}, true, 1},
		{"no health route, HEAD 501", &collector{uploadHead: 501}, true, 1},
		{"no health route, HEAD 200", &collector{uploadHead: 200}, true, 1},
		{"no health route, HEAD 404", &collector{uploadHead: 404}, false, 1},
		{"health 503, HEAD 502", &collector{healthStatus: 503, uploadHead: 502}, false, 1},
		{"health body not ok, HEAD 405", &collector{healthStatus: 200, healthBody: `{"status":"draining"}`, uploadHead: 405}, true, 1},
		{"health garbage, HEAD 404", &collector{healthStatus: 200, healthBody: `<html>`, uploadHead: 404}, false, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.c)
			defer srv.Close()

			p := New(client(time.Second), srv.URL+"/health", srv.URL+"/upload")
			assert.Equal(t, tc.want, p.IsReachable(context.Background()))
			assert.Equal(t, tc.wantHeads, tc.c.heads.Load())
		})
	}
}

func TestIsReachable_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := New(client(time.Second), url+"/health", url+"/upload")
	assert.False(t, p.IsReachable(context.Background()))
}

func TestIsReachable_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := New(client(50*time.Millisecond), srv.URL+"/health", srv.URL+"/upload")
	start := time.Now()
	assert.False(t, p.IsReachable(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsReachable_EmptyURLs(t *testing.T) {
	p := New(client(time.Second), "", "")
	assert.False(t, p.IsReachable(context.Background()))
}

func TestReachable(t *testing.T) {
	for status, want := range map[int]bool{
		200: true, 204: true, 301: true, 400: true, 401: true, 403: true,
		404: false, 405: true, 500: false, 501: true, 503: false, 0: false,
	} {
		assert.Equal(t, want, Reachable(status), "status %d", status)
	}
}
