// Package scan is the control surface over the inventory aggregator: start
// with a deadline, stop, power and region changes, derived statistics and a
// stream of failure messages.
package scan

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/metrics"
	"bcms_scan_go/internal/stream"
)

const (
	DefaultStartTimeout  = 30 * time.Second
	DefaultStatsInterval = time.Second
)

// Aggregator is the inventory surface the controller drives.
// *inventory.Aggregator implements it.
type Aggregator interface {
	Start(ctx context.Context) bool
	Stop() bool
	Clear()
	SetPower(level int) bool
	Power() int
	SetFrequencyRegion(region int) bool
	Running() bool
	CheckHealth() bool
	Session() domain.ScanSession
	Tags() *stream.Value[domain.Snapshot]
	Scanning() *stream.Value[bool]
}

// Releaser gives the reader handle back at teardown.
type Releaser interface {
	Release() error
}

type Controller struct {
	agg          Aggregator
	rel          Releaser
	log          *slog.Logger
	rec          metrics.Recorder
	now          func() time.Time
	startTimeout time.Duration
	statsEvery   time.Duration

	// ctlMu is the scan control context: one control operation at a time.
	ctlMu        sync.Mutex
	closed       bool
	startPending bool
	lateStarts   sync.WaitGroup

	statsMu sync.Mutex
	stats   *stream.Value[domain.Stats]
	power   *stream.Value[int]
	region  *stream.Value[int]
	errs    *errorQueue

	unwatch   []func()
	tickStop  context.CancelFunc
	tickDone  chan struct{}
	closeOnce sync.Once
}

type Option func(*Controller)

func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.startTimeout = d
		}
	}
}

// WithStatsInterval sets how often statistics refresh while scanning.
func WithStatsInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.statsEvery = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.rec = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New wires a controller over agg. rel may be nil.
func New(agg Aggregator, rel Releaser, opts ...Option) *Controller {
	c := &Controller{
		agg:          agg,
		rel:          rel,
		log:          slog.Default(),
		rec:          metrics.Nop{},
		now:          time.Now,
		startTimeout: DefaultStartTimeout,
		statsEvery:   DefaultStatsInterval,
		errs:         newErrorQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats = stream.NewDistinct(domain.Stats{})
	c.power = stream.NewDistinct(agg.Power())
	c.region = stream.NewDistinct(-1)

	c.unwatch = append(c.unwatch,
		agg.Scanning().Watch(func(bool) { c.refreshStats() }),
		agg.Tags().Watch(func(domain.Snapshot) { c.refreshStats() }),
	)
	c.refreshStats()

	ctx, cancel := context.WithCancel(context.Background())
	c.tickStop, c.tickDone = cancel, make(chan struct{})
	go c.tick(ctx)
	return c
}

func (c *Controller) Stats() *stream.Value[domain.Stats]   { return c.stats }
func (c *Controller) Power() *stream.Value[int]            { return c.power }
func (c *Controller) Region() *stream.Value[int]           { return c.region }
func (c *Controller) Scanning() *stream.Value[bool]        { return c.agg.Scanning() }
func (c *Controller) Tags() *stream.Value[domain.Snapshot] { return c.agg.Tags() }
func (c *Controller) Session() domain.ScanSession          { return c.agg.Session() }

// Errors delivers failure messages in order. It is closed by Close.
func (c *Controller) Errors() <-chan string { return c.errs.out }

// RequestStart starts a scan unless one is running. Failure, a panic or the
// start deadline each produce one message on Errors. There is no retry.
func (c *Controller) RequestStart() {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()

	if c.closed || c.agg.Scanning().Load() {
		return
	}
	if c.startPending {
		c.fail("start", "scan start failed: a timed out start is still pending")
		return
	}

	begin := c.now()
	ok, err := c.startWithDeadline()
	switch {
	case err != nil:
		c.fail("start", "scan start failed: "+err.Error())
	case !ok:
		c.fail("start", "scan start failed: reader not ready or refused to start")
	default:
		c.rec.ObserveStartLatency(c.now().Sub(begin))
	}
}

type startResult struct {
	ok  bool
	err error
}

// startWithDeadline runs Start on its own goroutine so a hung device cannot
// hold the control context past startTimeout. A start that completes after
// the deadline is stopped again. Caller holds ctlMu.
func (c *Controller) startWithDeadline() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.startTimeout)
	defer cancel()

	res := make(chan startResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- startResult{err: fmt.Errorf("start panicked: %v", r)}
			}
		}()
		res <- startResult{ok: c.agg.Start(ctx)}
	}()

	select {
	case r := <-res:
		return r.ok, r.err
	case <-ctx.Done():
	}

	c.startPending = true
	c.lateStarts.Add(1)
	go func() {
		defer c.lateStarts.Done()
		r := <-res
		c.ctlMu.Lock()
		defer c.ctlMu.Unlock()
		c.startPending = false
		if r.ok || c.agg.Running() {
			c.log.Warn("scan: start finished after deadline, stopping")
			c.agg.Stop()
		}
	}()
	return false, fmt.Errorf("timed out after %s", c.startTimeout)
}

// RequestStop stops a running scan; a refused stop is reported on Errors.
func (c *Controller) RequestStop() {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	if c.closed {
		return
	}
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if !c.agg.Running() && !c.agg.Scanning().Load() {
		return
	}
	if !c.agg.Stop() {
		c.fail("stop", "scan stop failed: reader refused to stop inventory")
	}
}

// RequestSetPower publishes level on Power when the reader accepts it.
func (c *Controller) RequestSetPower(level int) {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	if c.closed {
		return
	}
	if !domain.ValidPowerLevel(level) {
		c.fail("power", fmt.Sprintf("set power failed: level %d outside %d..%d", level, domain.MinPowerLevel, domain.MaxPowerLevel))
		return
	}
	if !c.agg.SetPower(level) {
		c.fail("power", fmt.Sprintf("set power failed: reader refused level %d", level))
		return
	}
	_ = c.power.Publish(level)
}

// RequestSetRegion publishes region on Region when the reader accepts it. A
// refusal leaves the module's plan unknown, so Region falls back to -1.
func (c *Controller) RequestSetRegion(region int) {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	if c.closed {
		return
	}
	if !c.agg.SetFrequencyRegion(region) {
		_ = c.region.Publish(-1)
		c.fail("region", fmt.Sprintf("set region failed: region %d rejected", region))
		return
	}
	_ = c.region.Publish(region)
}

// CheckHealth probes the reader and reacquires it if needed. It runs only
// between sessions and reports true without probing while one is live or a
// late start is pending. After a successful probe Power is republished from
// the current handle.
func (c *Controller) CheckHealth() bool {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	if c.closed {
		return false
	}
	if c.startPending || c.agg.Running() {
		return true
	}
	if !c.agg.CheckHealth() {
		return false
	}
	_ = c.power.Publish(c.agg.Power())
	return true
}

// Clear empties the table and publishes zero statistics right away.
func (c *Controller) Clear() {
	c.agg.Clear()
	c.statsMu.Lock()
	_ = c.stats.Publish(domain.Stats{})
	c.statsMu.Unlock()
}

func (c *Controller) fail(op, msg string) {
	c.rec.ControlFailure(op)
	c.log.Warn("scan: control failure", "op", op, "msg", msg)
	c.errs.push(msg)
}

func (c *Controller) refreshStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	_ = c.stats.Publish(c.computeStats())
}

// computeStats is all zero while idle with an empty table.
func (c *Controller) computeStats() domain.Stats {
	snap := c.agg.Tags().Load()
	if !c.agg.Scanning().Load() && snap.Len() == 0 {
		return domain.Stats{}
	}
	return domain.ComputeStats(snap, c.agg.Session().Elapsed(c.now()))
}

func (c *Controller) tick(ctx context.Context) {
	defer close(c.tickDone)
	t := time.NewTicker(c.statsEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.agg.Scanning().Load() {
				c.refreshStats()
			}
		}
	}
}

var csvHeader = []string{"tid", "epc", "rssi", "read_count", "first_seen", "last_seen", "status"}

// WriteCSV writes the current table, most recently seen first.
func (c *Controller) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, tag := range c.agg.Tags().Load().Tags() {
		row := []string{
			tag.TID,
			tag.EPC,
			strconv.Itoa(tag.RSSI),
			strconv.Itoa(tag.ReadCount),
			tag.FirstSeenAt.Format(time.RFC3339Nano),
			tag.LastSeenAt.Format(time.RFC3339Nano),
			tag.Status().String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Close stops a running scan, releases the reader and closes the error
// channel and the controller's streams. Safe to call more than once.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.ctlMu.Lock()
		c.closed = true
		c.ctlMu.Unlock()
		c.lateStarts.Wait()

		c.ctlMu.Lock()
		c.stopLocked()
		c.ctlMu.Unlock()

		c.tickStop()
		<-c.tickDone
		for _, fn := range c.unwatch {
			fn()
		}
		if closer, ok := c.agg.(interface{ Close() }); ok {
			closer.Close()
		}
		if c.rel != nil {
			if err = c.rel.Release(); err != nil {
				c.log.Warn("scan: release reader", "err", err)
			}
		}
		c.errs.close()
		c.stats.Close()
		c.power.Close()
		c.region.Close()
		c.log.Info("scan: controller closed")
	})
	return err
}
