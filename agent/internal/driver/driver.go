package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shotspool/shotspool/agent/internal/capture"
	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/notify"
	"github.com/shotspool/shotspool/agent/internal/shipper"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

// ErrBusy is returned when the command queue is full.
var ErrBusy = errors.New("driver: command queue full")

// Capturer produces one encoded frame.
type Capturer interface {
	Capture(ctx context.Context) (capture.Frame, error)
}

// Prober gates delivery on collector reachability.
type Prober interface {
	IsReachable(ctx context.Context) bool
}

// Deliverer uploads one item with retries.
type Deliverer interface {
	DeliverWithRetry(ctx context.Context, item spool.Item) shipper.Outcome
}

// encodingSetter is implemented by capturers whose format can change on reload.
type encodingSetter interface {
	SetEncoding(format string, quality int)
}

// RebuildFunc constructs a fresh probe and deliverer for cfg. It is called on
// reload when collector, auth or delivery settings change.
type RebuildFunc func(cfg config.AgentConfig) (Prober, Deliverer, error)

// Deps are the Driver's collaborators.
type Deps struct {
	Capturer  Capturer
	Prober    Prober
	Deliverer Deliverer
	Store     *spool.Store

	// Optional.
	Notifier *notify.Notifier
	Rebuild  RebuildFunc
	Clock    Clock
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdReload
	cmdDrain
)

type command struct {
	kind cmdKind
	cfg  config.AgentConfig
}

// Status is a point-in-time view of the Driver for the control surface.
type Status struct {
	State        string    `json:"state"`
	Paused       bool      `json:"paused"`
	SourceID     string    `json:"source_id"`
	CollectorURL string    `json:"collector_url"`
	Interval     string    `json:"interval"`
	NextCapture  time.Time `json:"next_capture"`
	LastCycle    time.Time `json:"last_cycle,omitempty"`
	LastOutcome  string    `json:"last_outcome,omitempty"`
	Reachable    bool      `json:"reachable"`
	Cycles       uint64    `json:"cycles"`
	Delivered    uint64    `json:"delivered"`
	Spooled      uint64    `json:"spooled"`
	Evicted      uint64    `json:"evicted"`
	SpoolCount   int       `json:"spool_count"`
	SpoolMax     int       `json:"spool_max"`
}

// Driver owns the capture and delivery loop. Only the Run goroutine mutates
// cfg, sched and the collaborators; other goroutines use commands and Status.
type Driver struct {
	cfg       config.AgentConfig
	capturer  Capturer
	prober    Prober
	deliverer Deliverer
	store     *spool.Store
	notifier  *notify.Notifier
	rebuild   RebuildFunc
	clock     Clock

	sched     *schedule
	nextSweep time.Time
	paused    bool

	cmds  chan command
	state atomic.Int32

	mu     sync.Mutex // guards status
	status Status
}

// New creates a Driver for cfg. The store must already be open.
func New(cfg config.AgentConfig, deps Deps) (*Driver, error) {
	if deps.Capturer == nil || deps.Prober == nil || deps.Deliverer == nil || deps.Store == nil {
		return nil, fmt.Errorf("driver: capturer, prober, deliverer and store are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	now := clock.Now()
	d := &Driver{
		cfg:       cfg,
		capturer:  deps.Capturer,
		prober:    deps.Prober,
		deliverer: deps.Deliverer,
		store:     deps.Store,
		notifier:  deps.Notifier,
		rebuild:   deps.Rebuild,
		clock:     clock,
		sched:     newSchedule(cfg.Schedule, cfg.Interval, now),
		nextSweep: now.Add(cfg.Spool.SweepInterval),
		cmds:      make(chan command, 16),
	}
	d.publish()
	return d, nil
}

// Run drains any leftover spool, then loops until ctx is cancelled. The step
// in progress when ctx is cancelled completes; nothing new starts after.
func (d *Driver) Run(ctx context.Context) error {
	slog.Info("driver: starting",
		"collector", d.cfg.CollectorURL,
		"source", d.cfg.SourceID,
		"interval", d.cfg.Interval,
		"schedule", d.cfg.Schedule,
		"spool_dir", d.store.Dir(),
	)

	if n := d.store.Count(); n > 0 {
		slog.Info("driver: spool holds items from a previous run", "count", n)
		if d.probe(ctx) {
			d.drain(ctx)
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("driver: stopped")
			return nil
		case c := <-d.cmds:
			d.handle(ctx, c)
		case <-timer.C:
			d.step(ctx)
			timer.Reset(d.cfg.Tick)
		}
	}
}

// step runs whatever is due at the current time: a capture cycle, the
// retention sweep, or both.
func (d *Driver) step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := d.clock.Now()
	if !d.paused && d.sched.due(now) {
		d.runCycle(ctx)
		d.sched.advance(d.clock.Now())
	}
	if !now.Before(d.nextSweep) {
		d.sweep(ctx)
		d.nextSweep = d.clock.Now().Add(d.cfg.Spool.SweepInterval)
	}
	d.publish()
}

// Pause stops new captures. Sweeps and drains continue.
func (d *Driver) Pause() error { return d.send(command{kind: cmdPause}) }

// Resume restarts captures; the next one fires on the following tick.
func (d *Driver) Resume() error { return d.send(command{kind: cmdResume}) }

// DrainNow requests an immediate drain pass.
func (d *Driver) DrainNow() error { return d.send(command{kind: cmdDrain}) }

// Reload replaces the running configuration. The spool directory cannot
// change without a restart.
func (d *Driver) Reload(cfg config.AgentConfig) error {
	return d.send(command{kind: cmdReload, cfg: cfg})
}

func (d *Driver) send(c command) error {
	select {
	case d.cmds <- c:
		return nil
	default:
		return ErrBusy
	}
}

func (d *Driver) handle(ctx context.Context, c command) {
	switch c.kind {
	case cmdPause:
		if !d.paused {
			slog.Info("driver: paused")
		}
		d.paused = true
	case cmdResume:
		if d.paused {
			slog.Info("driver: resumed")
			d.sched.next = d.clock.Now()
		}
		d.paused = false
	case cmdDrain:
		if d.store.Count() == 0 {
			slog.Info("driver: drain requested, spool empty")
			break
		}
		if !d.probe(ctx) {
			slog.Warn("driver: drain requested, collector unreachable")
			break
		}
		d.drain(ctx)
	case cmdReload:
		d.apply(c.cfg)
	}
	d.publish()
}

// apply installs a reloaded configuration.
func (d *Driver) apply(cfg config.AgentConfig) {
	old := d.cfg
	if cfg.Spool.Dir != old.Spool.Dir {
		slog.Warn("driver: spool dir change needs a restart, keeping current dir",
			"current", old.Spool.Dir, "requested", cfg.Spool.Dir)
		cfg.Spool.Dir = old.Spool.Dir
	}

	if collectorChanged(old, cfg) && d.rebuild != nil {
		p, del, err := d.rebuild(cfg)
		if err != nil {
			slog.Error("driver: reload rejected, keeping previous collector settings", "err", err)
			cfg.CollectorURL, cfg.HealthURL = old.CollectorURL, old.HealthURL
			cfg.Auth, cfg.TLS, cfg.Delivery = old.Auth, old.TLS, old.Delivery
		} else {
			d.prober, d.deliverer = p, del
		}
	}

	if es, ok := d.capturer.(encodingSetter); ok {
		es.SetEncoding(cfg.Image.Format, cfg.Image.Quality)
	}
	d.store.SetMaxFiles(cfg.Spool.MaxFiles)
	d.notifier.Configure(cfg.Notify, cfg.SourceID)
	d.sched.reset(cfg.Schedule, cfg.Interval, d.clock.Now())
	if cfg.Spool.SweepInterval != old.Spool.SweepInterval {
		d.nextSweep = d.clock.Now().Add(cfg.Spool.SweepInterval)
	}
	d.cfg = cfg

	slog.Info("driver: config reloaded",
		"collector", cfg.CollectorURL,
		"interval", cfg.Interval,
		"schedule", cfg.Schedule,
		"max_files", cfg.Spool.MaxFiles,
		"retention", cfg.Spool.Retention,
	)
}

func collectorChanged(a, b config.AgentConfig) bool {
	return a.CollectorURL != b.CollectorURL ||
		a.HealthURL != b.HealthURL ||
		a.Auth != b.Auth ||
		a.TLS != b.TLS ||
		a.Delivery != b.Delivery
}

// State returns the loop's current step.
func (d *Driver) State() State { return State(d.state.Load()) }

func (d *Driver) setState(s State) { d.state.Store(int32(s)) }

// Status returns the most recently published snapshot with live state and
// spool occupancy.
func (d *Driver) Status() Status {
	d.mu.Lock()
	st := d.status
	d.mu.Unlock()
	st.State = d.State().String()
	st.SpoolCount = d.store.Count()
	st.SpoolMax = d.store.MaxFiles()
	return st
}

// publish copies loop-owned fields into the shared snapshot.
func (d *Driver) publish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Paused = d.paused
	d.status.SourceID = d.cfg.SourceID
	d.status.CollectorURL = d.cfg.CollectorURL
	d.status.Interval = d.cfg.Interval.String()
	d.status.NextCapture = d.sched.next
}

func (d *Driver) record(fn func(s *Status)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.status)
}
