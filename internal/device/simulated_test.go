package device

import (
	"context"
	"testing"

	"bcms_scan_go/internal/tagcodec"
)

func TestSimulatedInventoryNeedsPower(t *testing.T) {
	s := NewSimulated(tagcodec.FamilyUM, WithReadProbability(1), WithSeed(1))
	if s.StartInventory() {
		t.Fatal("expected inventory to need power")
	}
	if s.ReadTagFromBuffer() != nil {
		t.Fatal("expected no read while idle")
	}
	if !s.PowerOn() || !s.StartInventory() {
		t.Fatal("expected inventory to start after power on")
	}
	payload := s.ReadTagFromBuffer()
	if len(payload) != 3 {
		t.Fatalf("expected 3 field payload, got %v", payload)
	}
	rssi, err := tagcodec.DecodeRSSI(payload[2], tagcodec.FamilyUM)
	if err != nil || rssi > -30 || rssi < -80 {
		t.Fatalf("expected rssi in -80..-30, got %d err=%v", rssi, err)
	}
}

func TestSimulatedDirectFamilyEncoding(t *testing.T) {
	s := NewSimulated(tagcodec.FamilyGX, WithReadProbability(1), WithSeed(7),
		WithTags([]SimTag{{TID: "T1", EPC: "AA"}}))
	s.PowerOn()
	s.StartInventory()
	payload := s.ReadTagFromBuffer()
	if payload[1] != "AA" {
		t.Fatalf("expected configured tag, got %v", payload)
	}
	if _, err := tagcodec.DecodeRSSI(payload[2], tagcodec.FamilyGX); err != nil {
		t.Fatalf("expected decodable rssi, got %v", err)
	}
}

func TestSimulatedInjectedPayloadsComeFirst(t *testing.T) {
	s := NewSimulated(tagcodec.FamilyUM, WithReadProbability(0))
	s.Inject("T", "E1")
	got := s.ReadTagFromBuffer()
	if len(got) != 2 || got[1] != "E1" {
		t.Fatalf("expected injected payload, got %v", got)
	}
	if s.ReadTagFromBuffer() != nil {
		t.Fatal("expected empty buffer")
	}
}

func TestSimulatedLinkLoss(t *testing.T) {
	s := NewSimulated(tagcodec.FamilyUM, WithReadProbability(1))
	s.PowerOn()
	s.StartInventory()
	s.SetLink(false)
	if s.ReadTagFromBuffer() != nil {
		t.Fatal("expected no reads with link down")
	}
	if s.PowerOn() {
		t.Fatal("expected power on to fail with link down")
	}
	s.SetLink(true)
	if !s.PowerOn() {
		t.Fatal("expected power on after link restore")
	}
}

func TestSimulatedRegionRange(t *testing.T) {
	s := NewSimulated(tagcodec.FamilyUM)
	if !s.SetFrequencyMode(3) || s.Region() != 3 {
		t.Fatalf("expected region 3, got %d", s.Region())
	}
	if s.SetFrequencyMode(4) {
		t.Fatal("expected region 4 to be rejected")
	}
}

func TestNewAcquirerBackends(t *testing.T) {
	acquire, err := NewAcquirer(context.Background(), Options{Backend: BackendSim})
	if err != nil {
		t.Fatalf("sim backend: %v", err)
	}
	dev, err := acquire(tagcodec.FamilyRM)
	if err != nil || dev == nil {
		t.Fatalf("expected simulated device, got %v err=%v", dev, err)
	}

	if _, err := NewAcquirer(context.Background(), Options{Backend: "carrier-pigeon"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if _, err := NewAcquirer(context.Background(), Options{Backend: BackendSerial}); err == nil {
		t.Fatal("expected serial backend to need a device")
	}

	acquire, err = NewAcquirer(context.Background(), Options{Backend: BackendTCP})
	if err != nil {
		t.Fatalf("tcp backend: %v", err)
	}
	if _, err := acquire(tagcodec.FamilyUM); err == nil {
		t.Fatal("expected tcp acquire without address to fail")
	}
}
