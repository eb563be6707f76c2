// Package inventory turns the adapter's buffered reads into the live tag
// table and owns the scanning flag.
package inventory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/metrics"
	"bcms_scan_go/internal/stream"
)

const DefaultPollBackoff = 50 * time.Millisecond

// maxBatch caps how many buffered reads one poll iteration folds into a
// single table publish.
const maxBatch = 256

// Reader is the adapter surface the aggregator drives. *reader.Adapter
// implements it.
type Reader interface {
	IsReady() bool
	Readiness() *stream.Value[bool]
	PowerOn() bool
	PowerOff() bool
	SetPower(level int) bool
	Power() int
	SetFrequencyRegion(region int) bool
	StartInventory() bool
	StopInventory() bool
	ReadOneFromBuffer() (domain.TagRead, bool)
	CheckHealth() bool
}

// Aggregator is the single writer of the tag table. The table lives in the
// Tags stream itself: every mutation publishes a new immutable Snapshot
// derived from the previous one.
type Aggregator struct {
	rd           Reader
	log          *slog.Logger
	rec          metrics.Recorder
	now          func() time.Time
	backoff      time.Duration
	clearOnStart bool

	// ctlMu serializes Start and Stop.
	ctlMu sync.Mutex

	mu      sync.Mutex
	session domain.ScanSession
	cancel  context.CancelFunc
	done    chan struct{}
	closing bool

	tags        *stream.Value[domain.Snapshot]
	local       *stream.Value[bool]
	scanning    *stream.Value[bool]
	stopCombine func()
	stopMetrics func()
	stopReady   func()
	lost        sync.WaitGroup
}

type Option func(*Aggregator)

// WithPollBackoff sets the wait after an empty buffer poll. It bounds how
// long Stop can take.
func WithPollBackoff(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.backoff = d
		}
	}
}

// WithClearOnStart empties the table at the beginning of every session.
func WithClearOnStart(on bool) Option {
	return func(a *Aggregator) { a.clearOnStart = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.rec = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(rd Reader, opts ...Option) *Aggregator {
	a := &Aggregator{
		rd:      rd,
		log:     slog.Default(),
		rec:     metrics.Nop{},
		now:     time.Now,
		backoff: DefaultPollBackoff,
		tags:    stream.New(domain.EmptySnapshot()),
		local:   stream.NewDistinct(false),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.scanning, a.stopCombine = stream.And(a.local, rd.Readiness())
	a.stopMetrics = a.scanning.Watch(a.rec.SetScanning)
	a.stopReady = rd.Readiness().Watch(a.onReadiness)
	return a
}

// onReadiness runs inside the adapter's publish, possibly under its lock, so
// the session is ended on another goroutine.
func (a *Aggregator) onReadiness(ready bool) {
	if ready || !a.local.Load() {
		return
	}
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	id := a.session.ID
	a.lost.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.lost.Done()
		a.endLost(id)
	}()
}

// endLost ends session id after the reader dropped under it. A session that
// already ended, or a newer one, is left alone.
func (a *Aggregator) endLost(id string) {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	if a.Session().ID != id {
		return
	}
	if _, ok := a.finishLocked(); !ok {
		return
	}
	a.rd.StopInventory()
	a.rd.PowerOff()
	a.log.Warn("inventory: scan ended, reader lost", "session", id)
}

// Tags publishes the table after every mutation.
func (a *Aggregator) Tags() *stream.Value[domain.Snapshot] { return a.tags }

// Scanning is true while the local flag is set and the reader is ready.
func (a *Aggregator) Scanning() *stream.Value[bool] { return a.scanning }

// Running reports the local flag alone.
func (a *Aggregator) Running() bool { return a.local.Load() }

// Session returns the current or last scan session.
func (a *Aggregator) Session() domain.ScanSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.session
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		s.StoppedAt = &t
	}
	return s
}

// Start powers the reader, turns inventory on and launches the poll loop.
// It returns false without touching the flag when the reader is not ready or
// refuses to start. A ctx that ends while the device is starting rolls the
// device back.
func (a *Aggregator) Start(ctx context.Context) bool {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()

	if a.Running() {
		if a.rd.IsReady() {
			return true
		}
		if id, ok := a.finishLocked(); ok {
			a.rd.StopInventory()
			a.log.Warn("inventory: stale session ended", "session", id)
		}
	}
	if !a.rd.IsReady() {
		a.log.Warn("inventory: start refused, reader not ready")
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if !a.rd.PowerOn() {
		a.log.Warn("inventory: power on failed")
		return false
	}
	if !a.rd.StartInventory() {
		a.log.Warn("inventory: start inventory failed")
		a.rd.PowerOff()
		return false
	}
	if err := ctx.Err(); err != nil {
		a.log.Warn("inventory: start abandoned", "err", err)
		a.rd.StopInventory()
		a.rd.PowerOff()
		return false
	}

	if a.clearOnStart {
		a.clearTable()
	}

	power := a.rd.Power()
	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.session = domain.ScanSession{
		ID:         uuid.NewString(),
		Active:     true,
		StartedAt:  a.now(),
		PowerLevel: power,
	}
	a.cancel, a.done = cancel, done
	id := a.session.ID
	a.mu.Unlock()

	go a.poll(pollCtx, done)
	_ = a.local.Publish(true)
	if !a.rd.IsReady() {
		// The reader dropped before the flag was visible to onReadiness.
		a.finishLocked()
		a.rd.StopInventory()
		a.rd.PowerOff()
		a.log.Warn("inventory: reader lost while starting", "session", id)
		return false
	}
	a.log.Info("inventory: scan started", "session", id)
	return true
}

// Stop ends the poll loop, waits for the read in flight to be merged, then
// turns inventory and power off. The table is kept.
func (a *Aggregator) Stop() bool {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()

	id, running := a.finishLocked()
	if !running {
		return true
	}
	ok := a.rd.StopInventory()
	a.rd.PowerOff()
	a.log.Info("inventory: scan stopped", "session", id, "inventory_stopped", ok)
	return ok
}

// finishLocked cancels the poll loop, waits for it, stamps the session and
// clears the local flag. It reports false when no session was running.
// Caller holds ctlMu.
func (a *Aggregator) finishLocked() (string, bool) {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return "", false
	}
	cancel()
	<-done

	stoppedAt := a.now()
	a.mu.Lock()
	a.session.Active = false
	a.session.StoppedAt = &stoppedAt
	id := a.session.ID
	a.mu.Unlock()
	_ = a.local.Publish(false)
	return id, true
}

// CheckHealth probes the reader, reacquiring it when the probe fails. During
// a session it only reports readiness.
func (a *Aggregator) CheckHealth() bool {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	if a.Running() {
		return a.rd.IsReady()
	}
	return a.rd.CheckHealth()
}

func (a *Aggregator) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	batch := make([]domain.TagRead, 0, maxBatch)
	for {
		if ctx.Err() != nil {
			return
		}
		batch = batch[:0]
		for len(batch) < maxBatch {
			read, ok := a.rd.ReadOneFromBuffer()
			if !ok {
				break
			}
			batch = append(batch, read)
		}
		if len(batch) > 0 {
			a.AddOrMergeReads(batch...)
			if len(batch) == maxBatch {
				continue
			}
		}

		t := time.NewTimer(a.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// AddOrMergeRead inserts a first sighting or folds read into its EPC's
// entry. Safe for concurrent use.
func (a *Aggregator) AddOrMergeRead(read domain.TagRead) {
	a.AddOrMergeReads(read)
}

// AddOrMergeReads folds reads in order and publishes the table once. Reads
// without an EPC are skipped.
func (a *Aggregator) AddOrMergeReads(reads ...domain.TagRead) {
	kept := make([]domain.TagRead, 0, len(reads))
	for _, r := range reads {
		if r.EPC != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return
	}
	var unique int
	_ = a.tags.Update(func(s domain.Snapshot) domain.Snapshot {
		next := s.MergeAll(kept)
		unique = next.Len()
		return next
	})
	for range kept {
		a.rec.TagRead()
	}
	a.rec.SetUniqueTags(unique)
}

// Clear empties the table whether or not a scan is running. A running
// session's clock restarts so the read rate describes the new table.
func (a *Aggregator) Clear() {
	a.clearTable()
	a.mu.Lock()
	if a.cancel != nil {
		a.session.StartedAt = a.now()
	}
	a.mu.Unlock()
	a.log.Info("inventory: table cleared")
}

func (a *Aggregator) clearTable() {
	_ = a.tags.Update(func(s domain.Snapshot) domain.Snapshot { return s.Cleared() })
	a.rec.SetUniqueTags(0)
}

// SetPower forwards levels in 5..33; anything else is refused before the
// reader sees it.
func (a *Aggregator) SetPower(level int) bool {
	if !domain.ValidPowerLevel(level) {
		a.log.Warn("inventory: power level out of range", "level", level)
		return false
	}
	if !a.rd.SetPower(level) {
		return false
	}
	a.mu.Lock()
	a.session.PowerLevel = level
	a.mu.Unlock()
	return true
}

func (a *Aggregator) Power() int { return a.rd.Power() }

func (a *Aggregator) SetFrequencyRegion(region int) bool {
	if !domain.ValidRegion(region) {
		a.log.Warn("inventory: region out of range", "region", region)
		return false
	}
	return a.rd.SetFrequencyRegion(region)
}

// Close stops any scan and closes the streams the aggregator owns.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	a.stopReady()
	a.lost.Wait()
	a.Stop()
	a.stopMetrics()
	a.stopCombine()
	a.scanning.Close()
	a.local.Close()
	a.tags.Close()
}
