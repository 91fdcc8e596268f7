package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shotspool/shotspool/agent/internal/capture"
	"github.com/shotspool/shotspool/agent/internal/metrics"
	"github.com/shotspool/shotspool/agent/internal/notify"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

// runCycle captures one frame and delivers or spools it. A capture failure
// ends the cycle with no other effect.
func (d *Driver) runCycle(ctx context.Context) {
	start := d.clock.Now()
	defer func() {
		d.setState(Idle)
		metrics.CycleDuration.Observe(d.clock.Now().Sub(start).Seconds())
	}()

	d.setState(Capturing)
	frame, err := d.capturer.Capture(ctx)
	if err != nil {
		result := "capture_failed"
		if errors.Is(err, capture.ErrEncode) {
			result = "encode_failed"
		}
		metrics.CapturesTotal.WithLabelValues(result).Inc()
		slog.Error("driver: capture failed, skipping cycle", "err", err)
		d.record(func(s *Status) { s.LastCycle, s.LastOutcome = start, result })
		return
	}
	metrics.CapturesTotal.WithLabelValues("ok").Inc()

	item := spool.Item{
		Key:     spool.NewKey(frame.CapturedAt, d.cfg.SourceID),
		Ext:     frame.Ext,
		Payload: frame.Payload,
	}

	if d.cfg.LocalCopy.Enabled {
		if err := d.saveLocal(item); err != nil {
			slog.Error("driver: local copy failed", "key", item.Key.String(), "err", err)
		}
	}

	d.record(func(s *Status) { s.Cycles++; s.LastCycle = start })

	// Stop observed after capture: keep the frame, skip the network.
	if ctx.Err() != nil {
		d.spoolItem(item, "stopping")
		return
	}

	d.setState(Delivering)
	if !d.probe(ctx) {
		d.spoolItem(item, "unreachable")
		return
	}

	if d.store.Count() > 0 {
		d.drain(ctx)
		d.setState(Delivering)
	}

	out := d.deliverer.DeliverWithRetry(ctx, item)
	if out.OK() {
		metrics.DeliveriesTotal.WithLabelValues("fresh", "delivered").Inc()
		d.record(func(s *Status) { s.Delivered++; s.LastOutcome = out.Result.String() })
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("fresh", "failed").Inc()
	d.spoolItem(item, out.Result.String())
}

// probe checks reachability and records the result.
func (d *Driver) probe(ctx context.Context) bool {
	ok := d.prober.IsReachable(ctx)
	result := "unreachable"
	if ok {
		result = "reachable"
	}
	metrics.ProbesTotal.WithLabelValues(result).Inc()
	d.record(func(s *Status) { s.Reachable = ok })
	return ok
}

// drain delivers spooled items oldest first and stops at the first failure.
// It returns the number delivered and the number still pending when it
// stopped; entries that vanished since the listing count as neither.
func (d *Driver) drain(ctx context.Context) (delivered, remaining int) {
	prev := d.State()
	d.setState(Draining)
	defer d.setState(prev)

	entries, err := d.store.ListPending()
	if err != nil {
		d.spoolFailure(err)
		return 0, 0
	}

	gone := 0
	pending := func() int { return len(entries) - delivered - gone }
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		item, err := d.store.Load(e)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Swept or cleared since the listing.
				gone++
				continue
			}
			d.spoolFailure(err)
			break
		}

		out := d.deliverer.DeliverWithRetry(ctx, item)
		if !out.OK() {
			metrics.DeliveriesTotal.WithLabelValues("spool", "failed").Inc()
			slog.Warn("driver: drain halted",
				"key", e.Key.String(),
				"result", out.Result.String(),
				"delivered", delivered,
				"remaining", pending())
			break
		}
		metrics.DeliveriesTotal.WithLabelValues("spool", "delivered").Inc()
		d.store.Remove(e.Key)
		delivered++
		d.record(func(s *Status) { s.Delivered++ })
	}

	metrics.SpoolItems.Set(float64(d.store.Count()))
	if delivered > 0 {
		slog.Info("driver: drained spool", "delivered", delivered)
	}
	return delivered, pending()
}

// spoolItem stores an undelivered item. Capacity evictions and write
// failures are reported; a failed write loses the item.
func (d *Driver) spoolItem(item spool.Item, reason string) {
	d.setState(Spooling)

	res, err := d.store.Put(item)
	if n := len(res.Evicted); n > 0 {
		metrics.SpoolEvictionsTotal.WithLabelValues("capacity").Add(float64(n))
		d.record(func(s *Status) { s.Evicted += uint64(n) })
		d.notifier.Notify(notify.Event{
			Kind:    notify.KindEviction,
			Message: fmt.Sprintf("spool full (max %d), dropped %d undelivered capture(s), oldest %s", d.store.MaxFiles(), n, res.Evicted[0].String()),
			Count:   n,
		})
	}
	if err != nil {
		metrics.SpoolWriteFailuresTotal.Inc()
		d.spoolFailure(err)
		d.record(func(s *Status) { s.LastOutcome = "spool_failed" })
		return
	}

	metrics.SpoolItems.Set(float64(d.store.Count()))
	d.record(func(s *Status) { s.Spooled++; s.LastOutcome = "spooled_" + reason })
	slog.Info("driver: capture spooled", "key", item.Key.String(), "reason", reason)
}

// sweep enforces retention and, when the collector answers, drains.
func (d *Driver) sweep(ctx context.Context) {
	removed, err := d.store.SweepExpired(d.clock.Now(), d.cfg.Spool.Retention)
	if err != nil {
		d.spoolFailure(err)
	}
	if removed > 0 {
		metrics.SpoolEvictionsTotal.WithLabelValues("retention").Add(float64(removed))
		d.record(func(s *Status) { s.Evicted += uint64(removed) })
		slog.Info("driver: expired spool items removed", "count", removed, "retention", d.cfg.Spool.Retention)
		d.notifier.Notify(notify.Event{
			Kind:    notify.KindRetention,
			Message: fmt.Sprintf("dropped %d capture(s) older than %s", removed, d.cfg.Spool.Retention),
			Count:   removed,
		})
	}

	n := d.store.Count()
	metrics.SpoolItems.Set(float64(n))
	if n > 0 && ctx.Err() == nil && d.probe(ctx) {
		d.drain(ctx)
	}
}

func (d *Driver) spoolFailure(err error) {
	slog.Error("driver: spool i/o failure", "dir", d.store.Dir(), "err", err)
	d.notifier.Notify(notify.Event{
		Kind:     notify.KindIOFailure,
		Severity: "critical",
		Message:  err.Error(),
	})
}

// saveLocal writes a copy of item to the local copy directory.
func (d *Driver) saveLocal(item spool.Item) error {
	dir := d.cfg.LocalCopy.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("driver: create local copy dir: %w", err)
	}
	path := filepath.Join(dir, item.Filename())
	if err := os.WriteFile(path, item.Payload, 0o644); err != nil {
		return fmt.Errorf("driver: write local copy: %w", err)
	}
	slog.Debug("driver: local copy saved", "path", path)
	return nil
}
