package reader

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/metrics"
	"bcms_scan_go/internal/stream"
	"bcms_scan_go/internal/tagcodec"
)

// Adapter owns the device handle and normalizes its failures: absence of a
// handle turns into false or -1, undecodable reads are dropped.
type Adapter struct {
	acquire Acquirer
	log     *slog.Logger
	rec     metrics.Recorder
	now     func() time.Time

	mu          sync.Mutex
	dev         Device
	family      tagcodec.ModuleFamily
	inventoryOn bool
	unwatchLink func()

	// hasHandle and linkUp feed readiness without taking mu, so a link
	// callback fired from inside a device call cannot deadlock.
	hasHandle atomic.Bool
	linkUp    atomic.Bool
	readyMu   sync.Mutex
	ready     *stream.Value[bool]
}

type Option func(*Adapter)

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(a *Adapter) {
		if r != nil {
			a.rec = r
		}
	}
}

// WithClock overrides the timestamp source for decoded reads.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAdapter(acquire Acquirer, opts ...Option) *Adapter {
	a := &Adapter{
		acquire: acquire,
		log:     slog.Default(),
		rec:     metrics.Nop{},
		now:     time.Now,
		ready:   stream.NewDistinct(false),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize acquires the device for family, replacing any current handle.
func (a *Adapter) Initialize(family tagcodec.ModuleFamily) error {
	if !family.Valid() {
		return &InitError{Family: family, Err: fmt.Errorf("unsupported module family")}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.dropHandleLocked()
	// Kept on failure so a health check can retry the same family.
	a.family = family

	dev, err := a.safeAcquire(family)
	if err != nil {
		a.log.Error("reader: initialize failed", "family", family.String(), "err", err)
		return &InitError{Family: family, Err: err}
	}
	if dev == nil {
		a.log.Error("reader: initialize returned no handle", "family", family.String())
		return &InitError{Family: family, Err: ErrNoHandle}
	}

	a.dev = dev
	a.inventoryOn = false
	a.hasHandle.Store(true)
	a.linkUp.Store(true)
	if lr, ok := dev.(LinkReporter); ok {
		link := lr.Link()
		a.linkUp.Store(link.Load())
		a.unwatchLink = link.Watch(func(up bool) {
			a.linkUp.Store(up)
			if !up {
				a.log.Warn("reader: link lost", "family", family.String())
			}
			a.refreshReady()
		})
	}
	a.refreshReady()
	a.log.Info("reader: initialized", "family", family.String(), "ready", a.IsReady())
	return nil
}

func (a *Adapter) safeAcquire(family tagcodec.ModuleFamily) (dev Device, err error) {
	if a.acquire == nil {
		return nil, fmt.Errorf("no acquirer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("acquire panicked: %v", r)
		}
	}()
	return a.acquire(family)
}

// dropHandleLocked detaches and closes the current handle. Caller holds mu.
func (a *Adapter) dropHandleLocked() {
	if a.unwatchLink != nil {
		a.unwatchLink()
		a.unwatchLink = nil
	}
	if a.dev != nil {
		if c, ok := a.dev.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.log.Warn("reader: close previous handle", "err", err)
			}
		}
	}
	a.dev = nil
	a.inventoryOn = false
	a.hasHandle.Store(false)
	a.linkUp.Store(false)
	a.refreshReady()
}

func (a *Adapter) refreshReady() {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	ready := a.hasHandle.Load() && a.linkUp.Load()
	_ = a.ready.Publish(ready)
	a.rec.SetReaderReady(ready)
}

// IsReady is true while a handle is held and its link is up.
func (a *Adapter) IsReady() bool {
	return a.ready.Load()
}

// Readiness publishes IsReady changes.
func (a *Adapter) Readiness() *stream.Value[bool] {
	return a.ready
}

// Family returns the module family of the current handle.
func (a *Adapter) Family() tagcodec.ModuleFamily {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.family
}

func (a *Adapter) withDevice(fn func(Device) bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return false
	}
	return fn(a.dev)
}

func (a *Adapter) PowerOn() bool {
	return a.withDevice(func(d Device) bool { return d.PowerOn() })
}

func (a *Adapter) PowerOff() bool {
	return a.withDevice(func(d Device) bool { return d.PowerOff() })
}

func (a *Adapter) SetPower(level int) bool {
	return a.withDevice(func(d Device) bool { return d.SetPower(level) })
}

// Power returns the device output level, or -1 without a handle.
func (a *Adapter) Power() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return -1
	}
	return a.dev.Power()
}

func (a *Adapter) SetFrequencyRegion(region int) bool {
	return a.withDevice(func(d Device) bool { return d.SetFrequencyMode(region) })
}

// StartInventory turns continuous reading on. Repeated calls do not reach
// the device while inventory is already on.
func (a *Adapter) StartInventory() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return false
	}
	if a.inventoryOn {
		return true
	}
	if !a.dev.StartInventory() {
		return false
	}
	a.inventoryOn = true
	return true
}

func (a *Adapter) StopInventory() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return false
	}
	if !a.inventoryOn {
		return true
	}
	if !a.dev.StopInventory() {
		// A dropped link has no inventory left to stop.
		if !a.linkUp.Load() {
			a.inventoryOn = false
		}
		return false
	}
	a.inventoryOn = false
	return true
}

// ReadOneFromBuffer pops and decodes one buffered read. It never blocks and
// returns false when the buffer is empty or the payload is unusable.
func (a *Adapter) ReadOneFromBuffer() (domain.TagRead, bool) {
	a.mu.Lock()
	dev, family := a.dev, a.family
	var payload []string
	if dev != nil {
		payload = dev.ReadTagFromBuffer()
	}
	a.mu.Unlock()

	if payload == nil {
		return domain.TagRead{}, false
	}
	if len(payload) < 3 {
		a.rec.IncompleteRead()
		a.log.Warn("reader: incomplete tag payload", "fields", len(payload))
		return domain.TagRead{}, false
	}

	tid := strings.TrimSpace(payload[0])
	epc := strings.ToUpper(strings.TrimSpace(payload[1]))
	if epc == "" {
		a.rec.IncompleteRead()
		a.log.Warn("reader: tag payload without epc", "tid", tid)
		return domain.TagRead{}, false
	}

	rssi, err := tagcodec.DecodeRSSI(payload[2], family)
	if err != nil {
		a.rec.DecodeFailure(family.String())
		a.log.Warn("reader: rssi decode failed", "epc", epc, "raw", payload[2], "err", err)
		return domain.TagRead{}, false
	}

	return domain.TagRead{
		TID:        tid,
		EPC:        epc,
		RSSI:       rssi,
		ObservedAt: a.now(),
	}, true
}

// CheckHealth probes the device with a power-on. When the probe fails it stops
// inventory, reacquires the handle for the same family and probes again.
func (a *Adapter) CheckHealth() bool {
	if a.PowerOn() {
		a.log.Debug("reader: health check passed")
		return true
	}

	family := a.Family()
	if !family.Valid() {
		return false
	}
	a.log.Warn("reader: health check failed, reacquiring", "family", family.String())
	a.StopInventory()
	if err := a.Initialize(family); err != nil {
		return false
	}
	restored := a.PowerOn()
	a.log.Info("reader: health restore finished", "restored", restored)
	return restored
}

// Release powers the device off and closes the handle.
func (a *Adapter) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return nil
	}
	if a.inventoryOn {
		a.dev.StopInventory()
	}
	a.dev.PowerOff()
	a.dropHandleLocked()
	a.log.Info("reader: released")
	return nil
}
