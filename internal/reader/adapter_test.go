package reader

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bcms_scan_go/internal/logger"
	"bcms_scan_go/internal/stream"
	"bcms_scan_go/internal/tagcodec"
)

type fakeDevice struct {
	mu         sync.Mutex
	payloads   [][]string
	powerOnOK  bool
	stopFails  bool
	startCalls int
	stopCalls  int
	powerOffs  int
	power      int
	closed     bool
	link       *stream.Value[bool]
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{powerOnOK: true, power: 30, link: stream.NewDistinct(true)}
}

func (d *fakeDevice) PowerOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powerOnOK
}

func (d *fakeDevice) PowerOff() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powerOffs++
	return true
}

func (d *fakeDevice) SetPower(level int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.power = level
	return true
}

func (d *fakeDevice) Power() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power
}

func (d *fakeDevice) SetFrequencyMode(int) bool { return true }

func (d *fakeDevice) StartInventory() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	return true
}

func (d *fakeDevice) StopInventory() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	return !d.stopFails
}

func (d *fakeDevice) ReadTagFromBuffer() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.payloads) == 0 {
		return nil
	}
	p := d.payloads[0]
	d.payloads = d.payloads[1:]
	return p
}

func (d *fakeDevice) Link() *stream.Value[bool] { return d.link }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func newTestAdapter(dev Device) *Adapter {
	return NewAdapter(func(tagcodec.ModuleFamily) (Device, error) { return dev, nil },
		WithLogger(logger.Discard()))
}

func TestAdapterWithoutHandleReportsAbsence(t *testing.T) {
	a := NewAdapter(nil, WithLogger(logger.Discard()))
	if a.IsReady() {
		t.Fatal("expected not ready before initialize")
	}
	if a.PowerOn() || a.PowerOff() || a.StartInventory() || a.StopInventory() || a.SetPower(20) {
		t.Fatal("expected false from every command without a handle")
	}
	if got := a.Power(); got != -1 {
		t.Fatalf("expected power sentinel -1, got %d", got)
	}
	if _, ok := a.ReadOneFromBuffer(); ok {
		t.Fatal("expected no read without a handle")
	}
}

func TestInitializeFailuresAreInitErrors(t *testing.T) {
	cause := errors.New("service missing")
	cases := []struct {
		name    string
		acquire Acquirer
		wantNil bool
	}{
		{"error", func(tagcodec.ModuleFamily) (Device, error) { return nil, cause }, false},
		{"nil handle", func(tagcodec.ModuleFamily) (Device, error) { return nil, nil }, true},
		{"panic", func(tagcodec.ModuleFamily) (Device, error) { panic("vendor sdk crashed") }, false},
	}
	for _, tc := range cases {
		a := NewAdapter(tc.acquire, WithLogger(logger.Discard()))
		err := a.Initialize(tagcodec.FamilyUM)
		var initErr *InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("%s: expected InitError, got %v", tc.name, err)
		}
		if tc.wantNil && !errors.Is(err, ErrNoHandle) {
			t.Fatalf("%s: expected ErrNoHandle, got %v", tc.name, err)
		}
		if a.IsReady() {
			t.Fatalf("%s: expected not ready", tc.name)
		}
	}
}

func TestInitializeReplacesHandle(t *testing.T) {
	first := newFakeDevice()
	second := newFakeDevice()
	devs := []*fakeDevice{first, second}
	a := NewAdapter(func(tagcodec.ModuleFamily) (Device, error) {
		d := devs[0]
		devs = devs[1:]
		return d, nil
	}, WithLogger(logger.Discard()))

	if err := a.Initialize(tagcodec.FamilyUM); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if err := a.Initialize(tagcodec.FamilySLR); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if !first.closed {
		t.Fatal("expected replaced handle closed")
	}
	if a.Family() != tagcodec.FamilySLR {
		t.Fatalf("expected family SLR, got %s", a.Family())
	}
	if !a.IsReady() {
		t.Fatal("expected ready after second initialize")
	}
}

func TestInventoryGuardAvoidsRedundantDeviceCalls(t *testing.T) {
	dev := newFakeDevice()
	a := newTestAdapter(dev)
	if err := a.Initialize(tagcodec.FamilyUM); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	a.StartInventory()
	a.StartInventory()
	a.StopInventory()
	a.StopInventory()
	if dev.startCalls != 1 || dev.stopCalls != 1 {
		t.Fatalf("expected one start and one stop, got %d/%d", dev.startCalls, dev.stopCalls)
	}
}

func TestReadOneFromBufferDecodesAndDrops(t *testing.T) {
	dev := newFakeDevice()
	dev.payloads = [][]string{
		{"E280", "abcdef1234567890", "FE3E"},
		{"E280", "ONLYTWO"},
		{"E280", "  ", "FE3E"},
		{"E280", "1234567890123456", "zz"},
	}
	stamp := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := NewAdapter(func(tagcodec.ModuleFamily) (Device, error) { return dev, nil },
		WithLogger(logger.Discard()), WithClock(func() time.Time { return stamp }))
	if err := a.Initialize(tagcodec.FamilyUM); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	read, ok := a.ReadOneFromBuffer()
	if !ok {
		t.Fatal("expected first read decoded")
	}
	if read.EPC != "ABCDEF1234567890" || read.RSSI != -45 || read.TID != "E280" {
		t.Fatalf("unexpected read %+v", read)
	}
	if !read.ObservedAt.Equal(stamp) {
		t.Fatalf("unexpected timestamp %s", read.ObservedAt)
	}

	for i := 0; i < 3; i++ {
		if r, ok := a.ReadOneFromBuffer(); ok {
			t.Fatalf("expected payload %d dropped, got %+v", i+2, r)
		}
	}
	if _, ok := a.ReadOneFromBuffer(); ok {
		t.Fatal("expected empty buffer")
	}
}

func TestReadinessFollowsLink(t *testing.T) {
	dev := newFakeDevice()
	a := newTestAdapter(dev)
	if err := a.Initialize(tagcodec.FamilyGX); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !a.IsReady() {
		t.Fatal("expected ready with link up")
	}
	_ = dev.link.Publish(false)
	if a.IsReady() {
		t.Fatal("expected not ready after link drop")
	}
	_ = dev.link.Publish(true)
	if !a.IsReady() {
		t.Fatal("expected ready after link restored")
	}
}

func TestCheckHealthReacquiresOnFailedProbe(t *testing.T) {
	broken := newFakeDevice()
	broken.powerOnOK = false
	healthy := newFakeDevice()
	calls := 0
	a := NewAdapter(func(tagcodec.ModuleFamily) (Device, error) {
		calls++
		if calls == 1 {
			return broken, nil
		}
		return healthy, nil
	}, WithLogger(logger.Discard()))
	if err := a.Initialize(tagcodec.FamilySLR); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if !a.CheckHealth() {
		t.Fatal("expected health restored")
	}
	if calls != 2 {
		t.Fatalf("expected reacquire, got %d acquisitions", calls)
	}
	if !broken.closed {
		t.Fatal("expected broken handle closed")
	}
}

func TestCheckHealthRecoversFailedBoot(t *testing.T) {
	dev := newFakeDevice()
	calls := 0
	a := NewAdapter(func(tagcodec.ModuleFamily) (Device, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("port busy")
		}
		return dev, nil
	}, WithLogger(logger.Discard()))
	if err := a.Initialize(tagcodec.FamilyRM); err == nil {
		t.Fatal("expected boot initialize to fail")
	}
	if a.Power() != -1 {
		t.Fatalf("expected power sentinel, got %d", a.Power())
	}

	if !a.CheckHealth() {
		t.Fatal("expected health check to acquire the reader")
	}
	if !a.IsReady() || a.Family() != tagcodec.FamilyRM || a.Power() != 30 {
		t.Fatalf("unexpected state ready=%v family=%s power=%d", a.IsReady(), a.Family(), a.Power())
	}
}

func TestStopInventoryOnDroppedLinkResetsGuard(t *testing.T) {
	dev := newFakeDevice()
	a := newTestAdapter(dev)
	if err := a.Initialize(tagcodec.FamilyUM); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	a.StartInventory()

	dev.stopFails = true
	_ = dev.link.Publish(false)
	if a.StopInventory() {
		t.Fatal("expected the refused stop to report false")
	}

	dev.stopFails = false
	_ = dev.link.Publish(true)
	if !a.StartInventory() || dev.startCalls != 2 {
		t.Fatalf("expected start to reach the device again, got %d calls", dev.startCalls)
	}
}

func TestReleasePowersOffAndCloses(t *testing.T) {
	dev := newFakeDevice()
	a := newTestAdapter(dev)
	if err := a.Initialize(tagcodec.FamilyRM); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	a.StartInventory()
	if err := a.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if dev.stopCalls != 1 || dev.powerOffs != 1 || !dev.closed {
		t.Fatalf("expected stop, power off and close, got stop=%d off=%d closed=%v", dev.stopCalls, dev.powerOffs, dev.closed)
	}
	if a.IsReady() {
		t.Fatal("expected not ready after release")
	}
}
