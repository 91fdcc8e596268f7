package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parse decodes a text exposition into metric families keyed by name.
func parse(t *testing.T, body []byte) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	require.NoError(t, err)
	return mfs
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestWritePrometheus(t *testing.T) {
	SpoolEvictionsTotal.WithLabelValues("capacity").Add(2)
	SpoolItems.Set(7)

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	mfs := parse(t, buf.Bytes())

	ev := mfs["shotspool_spool_evictions_total"]
	require.NotNil(t, ev)
	var found bool
	for _, m := range ev.GetMetric() {
		if labelValue(m, "reason") == "capacity" {
			found = true
			assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 2.0)
		}
	}
	assert.True(t, found, "capacity series missing")

	items := mfs["shotspool_spool_items"]
	require.NotNil(t, items)
	assert.Equal(t, 7.0, items.GetMetric()[0].GetGauge().GetValue())
}

func TestHandler(t *testing.T) {
	ProbesTotal.WithLabelValues("reachable").Inc()

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")

	mfs := parse(t, rr.Body.Bytes())
	assert.Contains(t, mfs, "shotspool_probes_total")

	rr = httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
