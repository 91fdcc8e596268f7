package collector

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shotspool/shotspool/server/internal/storage"
)

// Handler is the HTTP handler for the collector endpoints.
type Handler struct {
	store    storage.Store
	maxBytes int64
	now      func() time.Time
	mux      *http.ServeMux
}

// New creates a Handler writing to st and registers all routes. reg may be
// nil to leave /metrics unregistered.
func New(st storage.Store, maxBytes int64, reg *prometheus.Registry) http.Handler {
	h := &Handler{store: st, maxBytes: maxBytes, now: time.Now, mux: http.NewServeMux()}

	h.mux.HandleFunc("/health", h.health)
	h.mux.HandleFunc("/upload", h.upload)
	if reg != nil {
		h.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok", "message": "collector is running"})
}

// upload handles POST /upload.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = ulid.Make().String()
	}
	w.Header().Set("X-Request-ID", reqID)
	log := slog.With("request_id", reqID, "remote", r.RemoteAddr)

	if r.ContentLength > h.maxBytes {
		uploadsTotal.WithLabelValues("too_large").Inc()
		log.Warn("collector: upload too large", "limit", h.maxBytes, "length", r.ContentLength)
		jsonErr(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			uploadsTotal.WithLabelValues("too_large").Inc()
			log.Warn("collector: upload too large", "limit", h.maxBytes)
			jsonErr(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		uploadsTotal.WithLabelValues("bad_request").Inc()
		log.Warn("collector: malformed upload", "err", err)
		jsonErr(w, http.StatusBadRequest, "missing file")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile("file")
	if err != nil {
		uploadsTotal.WithLabelValues("bad_request").Inc()
		// A file part sent with filename="" is parsed as a plain value.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			log.Warn("collector: upload with empty filename")
			jsonErr(w, http.StatusBadRequest, "empty filename")
			return
		}
		log.Warn("collector: upload without file field")
		jsonErr(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	received := h.now()
	source := r.FormValue("source")
	name := UploadName(r.FormValue("timestamp"), source, hdr.Filename, received)

	path, err := h.store.Save(r.Context(), name, received, file)
	if err != nil {
		uploadsTotal.WithLabelValues("failed").Inc()
		log.Error("collector: store upload failed", "name", name, "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal server error")
		return
	}

	uploadsTotal.WithLabelValues("stored").Inc()
	uploadBytes.Add(float64(hdr.Size))
	log.Info("collector: upload stored", "name", name, "source", SanitizeSource(source), "bytes", hdr.Size, "path", path)
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
