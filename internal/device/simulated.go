package device

import (
	"math/rand"
	"sync"
	"time"

	"bcms_scan_go/internal/reader"
	"bcms_scan_go/internal/stream"
	"bcms_scan_go/internal/tagcodec"
)

// SimTag is one tag the simulated reader can report.
type SimTag struct {
	TID string
	EPC string
}

// DefaultSimTags are the tags reported when no other set is configured.
var DefaultSimTags = []SimTag{
	{TID: "E280", EPC: "1234567890123456"},
	{TID: "E280", EPC: "ABCDEF1234567890"},
	{TID: "E280", EPC: "FEDCBA0987654321"},
}

// Simulated is an in-memory reader. While inventory is on, each buffer poll
// yields a random configured tag with probability ReadProbability and an RSSI
// in -80..-30 dBm encoded for the configured family.
type Simulated struct {
	family tagcodec.ModuleFamily
	tags   []SimTag
	prob   float64
	link   *stream.Value[bool]

	mu          sync.Mutex
	rng         *rand.Rand
	powered     bool
	inventoryOn bool
	power       int
	region      int
	injected    [][]string
}

type SimOption func(*Simulated)

// WithReadProbability sets the per-poll chance of a tag read.
func WithReadProbability(p float64) SimOption {
	return func(s *Simulated) {
		if p >= 0 && p <= 1 {
			s.prob = p
		}
	}
}

func WithSeed(seed int64) SimOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewSource(seed)) }
}

func WithTags(tags []SimTag) SimOption {
	return func(s *Simulated) {
		if len(tags) > 0 {
			s.tags = append([]SimTag(nil), tags...)
		}
	}
}

func NewSimulated(family tagcodec.ModuleFamily, opts ...SimOption) *Simulated {
	s := &Simulated{
		family: family,
		tags:   DefaultSimTags,
		prob:   0.1,
		link:   stream.NewDistinct(true),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		power:  30,
		region: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) PowerOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.link.Load() {
		return false
	}
	s.powered = true
	return true
}

func (s *Simulated) PowerOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = false
	s.inventoryOn = false
	return true
}

func (s *Simulated) SetPower(level int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = level
	return true
}

func (s *Simulated) Power() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

func (s *Simulated) SetFrequencyMode(region int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if region < 0 || region > 3 {
		return false
	}
	s.region = region
	return true
}

func (s *Simulated) StartInventory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.powered || !s.link.Load() {
		return false
	}
	s.inventoryOn = true
	return true
}

func (s *Simulated) StopInventory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventoryOn = false
	return true
}

func (s *Simulated) ReadTagFromBuffer() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.injected) > 0 {
		p := s.injected[0]
		s.injected = s.injected[1:]
		return p
	}
	if !s.inventoryOn || !s.link.Load() {
		return nil
	}
	if s.rng.Float64() >= s.prob {
		return nil
	}
	tag := s.tags[s.rng.Intn(len(s.tags))]
	rssi := -30 - s.rng.Intn(51)
	return []string{tag.TID, tag.EPC, tagcodec.EncodeRSSI(rssi, s.family)}
}

// Inject queues a raw payload returned ahead of simulated reads.
func (s *Simulated) Inject(payload ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, append([]string(nil), payload...))
}

// SetLink raises or drops the simulated connection.
func (s *Simulated) SetLink(up bool) {
	if !up {
		s.mu.Lock()
		s.inventoryOn = false
		s.mu.Unlock()
	}
	_ = s.link.Publish(up)
}

func (s *Simulated) Link() *stream.Value[bool] { return s.link }

// Region is the last accepted frequency region.
func (s *Simulated) Region() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

func (s *Simulated) Close() error {
	s.PowerOff()
	return nil
}

var (
	_ reader.Device       = (*Simulated)(nil)
	_ reader.LinkReporter = (*Simulated)(nil)
)
