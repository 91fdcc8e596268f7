package probe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Probe checks collector reachability.
type Probe struct {
	client    *resty.Client
	healthURL string
	uploadURL string
}

// New returns a Probe using client, which must carry the connection timeout.
// healthURL may be empty to go straight to the upload fallback.
func New(client *resty.Client, healthURL, uploadURL string) *Probe {
	return &Probe{client: client, healthURL: healthURL, uploadURL: uploadURL}
}

// IsReachable reports whether the collector answered. It never panics.
func (p *Probe) IsReachable(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("probe: panic recovered", "panic", r)
			ok = false
		}
	}()

	if p.healthURL != "" && p.health(ctx) {
		return true
	}
	return p.fallback(ctx)
}

func (p *Probe) health(ctx context.Context) bool {
	var body struct {
		Status string `json:"status"`
	}
	resp, err := p.client.R().SetContext(ctx).Get(p.healthURL)
	if err != nil {
		slog.Debug("probe: health request failed", "url", p.healthURL, "err", err)
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		slog.Debug("probe: health endpoint unavailable", "url", p.healthURL, "status", resp.StatusCode())
		return false
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Status != "ok" {
		slog.Debug("probe: health body not ok", "url", p.healthURL, "status_field", body.Status)
		return false
	}
	return true
}

func (p *Probe) fallback(ctx context.Context) bool {
	if p.uploadURL == "" {
		return false
	}
	resp, err := p.client.R().SetContext(ctx).Head(p.uploadURL)
	if err != nil {
		slog.Debug("probe: upload endpoint unreachable", "url", p.uploadURL, "err", err)
		return false
	}
	reachable := Reachable(resp.StatusCode())
	slog.Debug("probe: upload endpoint answered",
		"url", p.uploadURL, "status", resp.StatusCode(), "reachable", reachable)
	return reachable
}

// Reachable classifies a HEAD response from the upload endpoint.
func Reachable(status int) bool {
	switch {
	case status == http.StatusMethodNotAllowed, status == http.StatusNotImplemented:
		return true
	case status == http.StatusNotFound:
		return false
	case status >= 500:
		return false
	}
	return status > 0
}
