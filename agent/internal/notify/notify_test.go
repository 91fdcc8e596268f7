package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotspool/shotspool/agent/internal/config"
)

// sink records webhook bodies.
type sink struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	s.mu.Lock()
	s.bodies = append(s.bodies, m)
	s.mu.Unlock()
	if s.status != 0 {
		w.WriteHeader(s.status)
	}
}

func (s *sink) received() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies...)
}

func newNotifier(t *testing.T, typ string, srvURL string, cooldown time.Duration) *Notifier {
	t.Helper()
	t.Setenv("NOTIFY_TEST_URL", srvURL)
	return New(config.NotifyConfig{
		Webhooks: []config.WebhookConfig{{Type: typ, URLEnv: "NOTIFY_TEST_URL"}},
		Cooldown: cooldown,
	}, "desk-07")
}

func TestNotify_Formats(t *testing.T) {
	tests := []struct {
		typ   string
		check func(t *testing.T, body map[string]any)
	}{
		{"slack", func(t *testing.T, body map[string]any) {
			text, _ := body["text"].(string)
			assert.Contains(t, text, "[WARNING]")
			assert.Contains(t, text, "spool_eviction on desk-07")
		}},
		{"teams", func(t *testing.T, body map[string]any) {
			assert.Equal(t, "MessageCard", body["@type"])
			assert.Equal(t, "FFAB40", body["themeColor"])
			assert.Equal(t, "spool_eviction", body["summary"])
		}},
		{"http", func(t *testing.T, body map[string]any) {
			ev, _ := body["event"].(map[string]any)
			require.NotNil(t, ev)
			assert.Equal(t, "spool_eviction", ev["kind"])
			assert.Equal(t, "desk-07", ev["source_id"])
			assert.EqualValues(t, 2, ev["count"])
		}},
	}
	for _, tc := range tests {
		t.Run(tc.typ, func(t *testing.T) {
			s := &sink{}
			srv := httptest.NewServer(s)
			defer srv.Close()

			n := newNotifier(t, tc.typ, srv.URL, time.Minute)
			require.True(t, n.Notify(Event{Kind: KindEviction, Message: "dropped 2", Count: 2}))
			n.Wait()

			got := s.received()
			require.Len(t, got, 1)
			tc.check(t, got[0])
		})
	}
}

func TestNotify_CooldownPerKind(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s)
	defer srv.Close()

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	n := newNotifier(t, "http", srv.URL, 15*time.Minute)
	n.now = func() time.Time { return now }

	assert.True(t, n.Notify(Event{Kind: KindEviction}))
	assert.False(t, n.Notify(Event{Kind: KindEviction}), "same kind inside cooldown")
	assert.True(t, n.Notify(Event{Kind: KindIOFailure, Severity: "critical"}), "other kind")

	now = now.Add(16 * time.Minute)
	assert.True(t, n.Notify(Event{Kind: KindEviction}))

	n.Wait()
	assert.Len(t, s.received(), 3)
}

func TestNotify_NoWebhooks(t *testing.T) {
	n := New(config.NotifyConfig{}, "desk-07")
	assert.False(t, n.Notify(Event{Kind: KindEviction}))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Notify(Event{Kind: KindEviction}))
	nilNotifier.Wait()
}

func TestNotify_FailureDoesNotPanic(t *testing.T) {
	s := &sink{status: http.StatusInternalServerError}
	srv := httptest.NewServer(s)
	defer srv.Close()

	n := newNotifier(t, "slack", srv.URL, time.Minute)
	assert.True(t, n.Notify(Event{Kind: KindIOFailure}))
	n.Wait()
	assert.Len(t, s.received(), 1)
}

func TestNotify_Configure(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s)
	defer srv.Close()
	t.Setenv("NOTIFY_TEST_URL", srv.URL)

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	n := New(config.NotifyConfig{}, "desk-07")
	n.now = func() time.Time { return now }
	assert.False(t, n.Notify(Event{Kind: KindEviction}), "no webhooks yet")

	n.Configure(config.NotifyConfig{
		Webhooks: []config.WebhookConfig{{Type: "http", URLEnv: "NOTIFY_TEST_URL"}},
		Cooldown: time.Minute,
	}, "desk-08")
	assert.True(t, n.Notify(Event{Kind: KindEviction}))

	now = now.Add(2 * time.Minute)
	assert.True(t, n.Notify(Event{Kind: KindEviction}), "shorter cooldown applies")

	n.Wait()
	got := s.received()
	require.Len(t, got, 2)
	ev, _ := got[0]["event"].(map[string]any)
	assert.Equal(t, "desk-08", ev["source_id"])
}
