package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/driver"
	"github.com/shotspool/shotspool/agent/internal/metrics"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

// Pipeline is the subset of *driver.Driver the API drives.
type Pipeline interface {
	Status() driver.Status
	Pause() error
	Resume() error
	DrainNow() error
	Reload(cfg config.AgentConfig) error
}

// Spool is the subset of *spool.Store the API reads and clears.
type Spool interface {
	ListPending() ([]spool.Entry, error)
	Clear() (int, error)
	MaxFiles() int
}

// LoadFunc re-reads the agent configuration for the reload command.
type LoadFunc func() (*config.Config, error)

// Handler is the HTTP handler for the control API.
type Handler struct {
	pipeline Pipeline
	spool    Spool
	load     LoadFunc
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. load may be nil, in which
// case reload answers 501.
func New(p Pipeline, sp Spool, load LoadFunc) http.Handler {
	h := &Handler{pipeline: p, spool: sp, load: load, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/spool", h.spoolItems)
	h.mux.HandleFunc("/api/v1/pipeline/", h.command) // subtree, extracts {cmd}
	h.mux.Handle("/metrics", metrics.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// status returns GET /api/v1/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.pipeline.Status())
}

// spoolItems serves GET and DELETE /api/v1/spool.
func (h *Handler) spoolItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := h.spool.ListPending()
		if err != nil {
			slog.Error("control: list spool failed", "err", err)
			jsonErr(w, http.StatusInternalServerError, "spool unreadable")
			return
		}
		resp := SpoolResponse{
			Count: len(entries),
			Max:   h.spool.MaxFiles(),
			Items: make([]SpoolItem, 0, len(entries)),
		}
		for _, e := range entries {
			resp.Bytes += e.Size
			resp.Items = append(resp.Items, SpoolItem{
				Name:       e.Name,
				SourceID:   e.Key.SourceID,
				CapturedAt: e.Key.CaptureTime,
				Size:       e.Size,
				Parsed:     e.Parsed,
			})
		}
		jsonResp(w, http.StatusOK, resp)

	case http.MethodDelete:
		n, err := h.spool.Clear()
		if n > 0 {
			metrics.SpoolEvictionsTotal.WithLabelValues("cleared").Add(float64(n))
		}
		metrics.SpoolItems.Set(0)
		if err != nil {
			slog.Error("control: clear spool incomplete", "removed", n, "err", err)
			jsonErr(w, http.StatusInternalServerError, "spool partially cleared")
			return
		}
		slog.Info("control: spool cleared", "removed", n)
		jsonResp(w, http.StatusOK, ClearResponse{Removed: n})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// command serves POST /api/v1/pipeline/{pause,resume,drain,reload}.
func (h *Handler) command(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/pipeline/")
	var err error
	switch name {
	case "pause":
		err = h.pipeline.Pause()
	case "resume":
		err = h.pipeline.Resume()
	case "drain":
		err = h.pipeline.DrainNow()
	case "reload":
		if h.load == nil {
			jsonErr(w, http.StatusNotImplemented, "reload not available")
			return
		}
		cfg, lerr := h.load()
		if lerr != nil {
			slog.Warn("control: reload rejected", "err", lerr)
			jsonErr(w, http.StatusBadRequest, lerr.Error())
			return
		}
		err = h.pipeline.Reload(cfg.Agent)
	default:
		jsonErr(w, http.StatusNotFound, "unknown command")
		return
	}

	if errors.Is(err, driver.ErrBusy) {
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("control: command accepted", "command", name)
	jsonResp(w, http.StatusAccepted, CommandResponse{Command: name, Status: "accepted"})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
