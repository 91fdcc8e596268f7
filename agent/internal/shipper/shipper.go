package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"

	"github.com/shotspool/shotspool/agent/internal/metrics"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

// Result classifies one delivery attempt.
type Result int

const (
	Success Result = iota
	ServerRejected
	ConnectionFailed
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ServerRejected:
		return "server_rejected"
	case ConnectionFailed:
		return "connection_failed"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Outcome is the transient result of a delivery. It is logged and used to
// choose between discarding and spooling; it is never persisted.
type Outcome struct {
	Result Result

	// StatusCode is set for ServerRejected and Success.
	StatusCode int

	// Attempts is the number of attempts made, counting the first.
	Attempts int

	// Path is the collector's storage path from a successful response.
	Path string

	// RequestID of the last attempt.
	RequestID string

	Err error
}

// OK reports whether the item was accepted.
func (o Outcome) OK() bool { return o.Result == Success }

// Options configures delivery.
type Options struct {
	// URL is the collector upload endpoint.
	URL string

	MaxRetries int
	RetryDelay time.Duration
}

// Shipper uploads captures to the collector. The resty client carries the
// connection timeout and auth.
type Shipper struct {
	client *resty.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error // injectable for tests
}

// New creates a Shipper.
func New(client *resty.Client, opts Options) *Shipper {
	return &Shipper{client: client, opts: opts, sleep: sleepCtx}
}

type uploadResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// TryDeliver makes exactly one upload attempt for item.
func (s *Shipper) TryDeliver(ctx context.Context, item spool.Item) Outcome {
	reqID := ulid.Make().String()
	out := Outcome{Attempts: 1, RequestID: reqID}

	contentType := mime.TypeByExtension(item.Ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", reqID).
		SetMultipartField("file", item.Filename(), contentType, bytes.NewReader(item.Payload)).
		SetMultipartFormData(map[string]string{
			"timestamp": item.Key.CaptureTime.UTC().Format(time.RFC3339Nano),
			"source":    item.Key.SourceID,
		}).
		Post(s.opts.URL)

	if err != nil {
		out.Err = err
		if isTimeout(err) {
			out.Result = TimedOut
		} else {
			out.Result = ConnectionFailed
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues(out.Result.String()).Inc()
		return out
	}

	out.StatusCode = resp.StatusCode()
	var body uploadResponse
	_ = json.Unmarshal(resp.Body(), &body)

	switch {
	case resp.StatusCode() == http.StatusOK && body.Status == "ok":
		out.Result = Success
		out.Path = body.Path
	case resp.StatusCode() == http.StatusOK:
		out.Result = ServerRejected
		out.Err = fmt.Errorf("collector answered 200 without ok status: %q", truncate(resp.String(), 200))
	default:
		out.Result = ServerRejected
		msg := body.Error
		if msg == "" {
			msg = truncate(resp.String(), 200)
		}
		out.Err = fmt.Errorf("collector returned HTTP %d: %s", resp.StatusCode(), msg)
	}
	metrics.DeliveryAttemptsTotal.WithLabelValues(out.Result.String()).Inc()
	return out
}

// DeliverWithRetry calls TryDeliver up to MaxRetries+1 times, pausing
// RetryDelay between attempts, and returns the last outcome. Cancelling ctx
// ends the pause and returns the outcome so far.
func (s *Shipper) DeliverWithRetry(ctx context.Context, item spool.Item) Outcome {
	total := s.opts.MaxRetries + 1
	if total < 1 {
		total = 1
	}

	var out Outcome
	for attempt := 1; attempt <= total; attempt++ {
		out = s.TryDeliver(ctx, item)
		out.Attempts = attempt
		if out.OK() {
			slog.Info("shipper: delivered",
				"key", item.Key.String(),
				"attempt", attempt,
				"path", out.Path,
				"request_id", out.RequestID)
			return out
		}

		slog.Warn("shipper: delivery attempt failed",
			"key", item.Key.String(),
			"attempt", attempt,
			"of", total,
			"result", out.Result.String(),
			"status", out.StatusCode,
			"request_id", out.RequestID,
			"err", out.Err)

		if attempt == total {
			break
		}
		if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
			slog.Info("shipper: retries abandoned, shutting down",
				"key", item.Key.String(), "attempts", attempt)
			break
		}
	}
	return out
}

// isTimeout reports whether err came from the client timeout or a deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
