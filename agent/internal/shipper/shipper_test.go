package shipper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotspool/shotspool/agent/internal/spool"
)

var captured = time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

func testItem() spool.Item {
	return spool.Item{
		Key:     spool.NewKey(captured, "desk-07"),
		Ext:     ".jpg",
		Payload: []byte("\xff\xd8fake-jpeg"),
	}
}

// upload records what the fake collector received.
type upload struct {
	filename    string
	contentType string
	payload     []byte
	timestamp   string
	source      string
	requestID   string
}

// fakeCollector answers uploads with respond and records each request.
type fakeCollector struct {
	mu      sync.Mutex
	uploads []upload
	calls   atomic.Int32
	respond func(call int, w http.ResponseWriter)
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := int(f.calls.Add(1))

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err == nil {
		data, _ := io.ReadAll(file)
		file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, upload{
			filename:    hdr.Filename,
			contentType: hdr.Header.Get("Content-Type"),
			payload:     data,
			timestamp:   r.FormValue("timestamp"),
			source:      r.FormValue("source"),
			requestID:   r.Header.Get("X-Request-ID"),
		})
		f.mu.Unlock()
	}
	f.respond(call, w)
}

func ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "path": "2025-03-14/x.jpg"})
}

func newShipper(url string, maxRetries int) (*Shipper, *[]time.Duration) {
	s := New(resty.New().SetTimeout(2*time.Second), Options{
		URL:        url,
		MaxRetries: maxRetries,
		RetryDelay: 5 * time.Second,
	})
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestTryDeliver_Success(t *testing.T) {
	fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) { ok(w) }}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s, _ := newShipper(srv.URL+"/upload", 0)
	out := s.TryDeliver(context.Background(), testItem())

	require.True(t, out.OK(), "outcome: %+v", out)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "2025-03-14/x.jpg", out.Path)
	assert.NoError(t, out.Err)

	require.Len(t, fc.uploads, 1)
	up := fc.uploads[0]
	assert.Equal(t, "20250314T092653589793Z_desk-07.jpg", up.filename)
	assert.Equal(t, "image/jpeg", up.contentType)
	assert.Equal(t, testItem().Payload, up.payload)
	assert.Equal(t, "2025-03-14T09:26:53.589793Z", up.timestamp)
	assert.Equal(t, "desk-07", up.source)
	assert.Equal(t, out.RequestID, up.requestID)
	assert.Len(t, up.requestID, 26)
}

func TestTryDeliver_Classification(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter)
		want    Result
		status  int
	}{
		{
			name:    "ok body",
			respond: ok,
			want:    Success,
			status:  http.StatusOK,
		},
		{
			name: "200 without ok status",
			respond: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"status":"stored?"}`))
			},
			want:   ServerRejected,
			status: http.StatusOK,
		},
		{
			name: "200 with non-json body",
			respond: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte("thanks"))
			},
			want:   ServerRejected,
			status: http.StatusOK,
		},
		{
			name: "400",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"missing file"}`))
			},
			want:   ServerRejected,
			status: http.StatusBadRequest,
		},
		{
			name: "500",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want:   ServerRejected,
			status: http.StatusInternalServerError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) { tc.respond(w) }}
			srv := httptest.NewServer(fc)
			defer srv.Close()

			s, _ := newShipper(srv.URL, 0)
			out := s.TryDeliver(context.Background(), testItem())
			assert.Equal(t, tc.want, out.Result)
			assert.Equal(t, tc.status, out.StatusCode)
			if tc.want != Success {
				assert.Error(t, out.Err)
			}
		})
	}
}

func TestTryDeliver_RejectionCarriesServerError(t *testing.T) {
	fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"empty filename"}`))
	}}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s, _ := newShipper(srv.URL, 0)
	out := s.TryDeliver(context.Background(), testItem())
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "empty filename")
}

func TestTryDeliver_ConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, _ := newShipper(url, 0)
	out := s.TryDeliver(context.Background(), testItem())
	assert.Equal(t, ConnectionFailed, out.Result)
	assert.Equal(t, 0, out.StatusCode)
	assert.Error(t, out.Err)
}

func TestTryDeliver_TimedOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := New(resty.New().SetTimeout(50*time.Millisecond), Options{URL: srv.URL})
	out := s.TryDeliver(context.Background(), testItem())
	assert.Equal(t, TimedOut, out.Result)
}

func TestDeliverWithRetry_Exhaustion(t *testing.T) {
	fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s, slept := newShipper(srv.URL, 2)
	out := s.DeliverWithRetry(context.Background(), testItem())

	assert.Equal(t, ServerRejected, out.Result)
	assert.Equal(t, http.StatusServiceUnavailable, out.StatusCode)
	assert.Equal(t, 3, out.Attempts)
	assert.EqualValues(t, 3, fc.calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *slept)
}

func TestDeliverWithRetry_StopsOnSuccess(t *testing.T) {
	fc := &fakeCollector{respond: func(call int, w http.ResponseWriter) {
		if call < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ok(w)
	}}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s, slept := newShipper(srv.URL, 5)
	out := s.DeliverWithRetry(context.Background(), testItem())

	require.True(t, out.OK())
	assert.Equal(t, 2, out.Attempts)
	assert.EqualValues(t, 2, fc.calls.Load())
	assert.Len(t, *slept, 1)
}

func TestDeliverWithRetry_ZeroRetriesIsOneAttempt(t *testing.T) {
	fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s, slept := newShipper(srv.URL, 0)
	out := s.DeliverWithRetry(context.Background(), testItem())
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, *slept)
}

func TestDeliverWithRetry_CancelDuringDelay(t *testing.T) {
	fc := &fakeCollector{respond: func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	s := New(resty.New(), Options{URL: srv.URL, MaxRetries: 3, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	out := s.DeliverWithRetry(ctx, testItem())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, ServerRejected, out.Result)
	assert.Equal(t, 1, out.Attempts)
	assert.EqualValues(t, 1, fc.calls.Load())
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepCtx(ctx, 0), context.Canceled)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "server_rejected", ServerRejected.String())
	assert.Equal(t, "connection_failed", ConnectionFailed.String())
	assert.Equal(t, "timed_out", TimedOut.String())
}
