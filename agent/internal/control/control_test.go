package control_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/control"
	"github.com/shotspool/shotspool/agent/internal/driver"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

// --- test helpers -----------------------------------------------------------

type fakePipeline struct {
	calls    []string
	reloaded *config.AgentConfig
	err      error
}

func (f *fakePipeline) Status() driver.Status {
	return driver.Status{State: "idle", SourceID: "desk-07", Delivered: 4}
}

func (f *fakePipeline) Pause() error {
	f.calls = append(f.calls, "pause")
	return f.err
}

func (f *fakePipeline) Resume() error {
	f.calls = append(f.calls, "resume")
	return f.err
}

func (f *fakePipeline) DrainNow() error {
	f.calls = append(f.calls, "drain")
	return f.err
}

func (f *fakePipeline) Reload(cfg config.AgentConfig) error {
	f.calls = append(f.calls, "reload")
	f.reloaded = &cfg
	return f.err
}

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T, n int) *spool.Store {
	t.Helper()
	st, err := spool.Open(t.TempDir(), 10)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := st.Put(spool.Item{
			Key:     spool.NewKey(base.Add(time.Duration(i)*time.Second), "desk-07"),
			Ext:     ".jpg",
			Payload: []byte("abc"),
		})
		require.NoError(t, err)
	}
	return st
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v), "body: %s", rr.Body.String())
}

// --- tests ------------------------------------------------------------------

func TestStatus(t *testing.T) {
	h := control.New(&fakePipeline{}, newStore(t, 0), nil)

	rr := do(t, h, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var st driver.Status
	decode(t, rr, &st)
	assert.Equal(t, "desk-07", st.SourceID)
	assert.EqualValues(t, 4, st.Delivered)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/api/v1/status").Code)
}

func TestSpool_List(t *testing.T) {
	h := control.New(&fakePipeline{}, newStore(t, 3), nil)

	rr := do(t, h, http.MethodGet, "/api/v1/spool")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp control.SpoolResponse
	decode(t, rr, &resp)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 10, resp.Max)
	assert.EqualValues(t, 9, resp.Bytes)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, "20250314T090000000000Z_desk-07.jpg", resp.Items[0].Name)
	assert.True(t, resp.Items[0].CapturedAt.Before(resp.Items[2].CapturedAt))
}

func TestSpool_Clear(t *testing.T) {
	st := newStore(t, 2)
	h := control.New(&fakePipeline{}, st, nil)

	rr := do(t, h, http.MethodDelete, "/api/v1/spool")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp control.ClearResponse
	decode(t, rr, &resp)
	assert.Equal(t, 2, resp.Removed)
	assert.Equal(t, 0, st.Count())

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPut, "/api/v1/spool").Code)
}

func TestPipelineCommands(t *testing.T) {
	p := &fakePipeline{}
	h := control.New(p, newStore(t, 0), nil)

	for _, cmd := range []string{"pause", "resume", "drain"} {
		rr := do(t, h, http.MethodPost, "/api/v1/pipeline/"+cmd)
		require.Equal(t, http.StatusAccepted, rr.Code, cmd)
		var resp control.CommandResponse
		decode(t, rr, &resp)
		assert.Equal(t, cmd, resp.Command)
		assert.Equal(t, "accepted", resp.Status)
	}
	assert.Equal(t, []string{"pause", "resume", "drain"}, p.calls)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/v1/pipeline/explode").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/pipeline/pause").Code)
}

func TestPipelineCommands_Busy(t *testing.T) {
	p := &fakePipeline{err: driver.ErrBusy}
	h := control.New(p, newStore(t, 0), nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/pipeline/pause").Code)
}

func TestReload(t *testing.T) {
	p := &fakePipeline{}
	load := func() (*config.Config, error) {
		cfg := config.Defaults()
		cfg.Agent.Interval = 42 * time.Second
		return cfg, nil
	}
	h := control.New(p, newStore(t, 0), load)

	rr := do(t, h, http.MethodPost, "/api/v1/pipeline/reload")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.NotNil(t, p.reloaded)
	assert.Equal(t, 42*time.Second, p.reloaded.Interval)
}

func TestReload_LoadError(t *testing.T) {
	p := &fakePipeline{}
	load := func() (*config.Config, error) { return nil, errors.New("config: interval must be positive") }
	h := control.New(p, newStore(t, 0), load)

	rr := do(t, h, http.MethodPost, "/api/v1/pipeline/reload")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, p.reloaded)
}

func TestReload_Unavailable(t *testing.T) {
	h := control.New(&fakePipeline{}, newStore(t, 0), nil)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodPost, "/api/v1/pipeline/reload").Code)
}

func TestMetricsRoute(t *testing.T) {
	h := control.New(&fakePipeline{}, newStore(t, 0), nil)
	rr := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "shotspool_spool_items")
}
