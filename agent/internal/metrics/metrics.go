package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every agent collector. It is separate from the global
// prometheus registry so tests can gather it without interference.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		CapturesTotal, DeliveryAttemptsTotal, DeliveriesTotal,
		ProbesTotal, SpoolEvictionsTotal, SpoolWriteFailuresTotal,
		SpoolItems, CycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// CapturesTotal counts capture cycles by result: ok | capture_failed | encode_failed.
var CapturesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shotspool_captures_total",
		Help: "Capture cycles by result.",
	},
	[]string{"result"},
)

// DeliveryAttemptsTotal counts single upload attempts by outcome.
var DeliveryAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shotspool_delivery_attempts_total",
		Help: "Upload attempts by outcome.",
	},
	[]string{"outcome"}, // success | server_rejected | connection_failed | timed_out
)

// DeliveriesTotal counts items after retries, by origin and result.
var DeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shotspool_deliveries_total",
		Help: "Items delivered or given up on after retries.",
	},
	[]string{"origin", "result"}, // origin: fresh | spool; result: delivered | failed
)

// ProbesTotal counts connectivity probes by result.
var ProbesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shotspool_probes_total",
		Help: "Connectivity probes by result.",
	},
	[]string{"result"}, // reachable | unreachable
)

// SpoolEvictionsTotal counts items dropped from the spool without delivery.
var SpoolEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shotspool_spool_evictions_total",
		Help: "Spooled items dropped without delivery.",
	},
	[]string{"reason"}, // capacity | retention | cleared
)

// SpoolWriteFailuresTotal counts captures lost because the spool write failed.
var SpoolWriteFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "shotspool_spool_write_failures_total",
		Help: "Captures lost because they could not be written to the spool.",
	},
)

// SpoolItems is the current spool occupancy.
var SpoolItems = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "shotspool_spool_items",
		Help: "Items currently held in the spool.",
	},
)

// CycleDuration observes the wall time of each capture-deliver cycle.
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "shotspool_cycle_duration_seconds",
		Help:    "Duration of capture-deliver cycles.",
		Buckets: prometheus.DefBuckets,
	},
)

// WritePrometheus writes every registered metric to w in text format.
func WritePrometheus(w io.Writer) error {
	mfs, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves WritePrometheus over HTTP.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
