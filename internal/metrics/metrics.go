package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TagReadsTotal        = "uhf_tag_reads_total"
	DecodeFailuresTotal  = "uhf_decode_failures_total"
	IncompleteReadsTotal = "uhf_incomplete_reads_total"
	ControlFailuresTotal = "uhf_control_failures_total"
	UniqueTagsGauge      = "uhf_unique_tags"
	ScanningGauge        = "uhf_scanning"
	ReaderReadyGauge     = "uhf_reader_ready"
	StartLatencySeconds  = "uhf_start_latency_seconds"
)

// Recorder receives scanner events.
type Recorder interface {
	TagRead()
	DecodeFailure(family string)
	IncompleteRead()
	ControlFailure(op string)
	SetUniqueTags(n int)
	SetScanning(on bool)
	SetReaderReady(ready bool)
	ObserveStartLatency(d time.Duration)
}

// Prom records scanner events as Prometheus metrics.
type Prom struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	decode   *prometheus.CounterVec
	control  *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewProm registers the scanner metrics on reg. A nil reg means the default
// registerer.
func NewProm(reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	reads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: TagReadsTotal,
		Help: "Decoded tag reads merged into the inventory.",
	})
	incomplete := prometheus.NewCounter(prometheus.CounterOpts{
		Name: IncompleteReadsTotal,
		Help: "Reader payloads dropped for missing TID, EPC or RSSI fields.",
	})
	decode := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: DecodeFailuresTotal,
		Help: "Reads dropped because the RSSI could not be decoded.",
	}, []string{"family"})
	control := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ControlFailuresTotal,
		Help: "Failed scan control requests by operation.",
	}, []string{"op"})
	unique := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: UniqueTagsGauge,
		Help: "Unique EPCs in the live inventory.",
	})
	scanning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ScanningGauge,
		Help: "1 while the reader is actively scanning.",
	})
	ready := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ReaderReadyGauge,
		Help: "1 while the reader handle is initialized and linked.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    StartLatencySeconds,
		Help:    "Time taken by the reader to power on and start inventory.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	reg.MustRegister(reads, incomplete, decode, control, unique, scanning, ready, latency)

	return &Prom{
		counters: map[string]prometheus.Counter{
			TagReadsTotal:        reads,
			IncompleteReadsTotal: incomplete,
		},
		gauges: map[string]prometheus.Gauge{
			UniqueTagsGauge:  unique,
			ScanningGauge:    scanning,
			ReaderReadyGauge: ready,
		},
		decode:  decode,
		control: control,
		latency: latency,
	}
}

func (p *Prom) TagRead() { p.counters[TagReadsTotal].Inc() }

func (p *Prom) IncompleteRead() { p.counters[IncompleteReadsTotal].Inc() }

func (p *Prom) DecodeFailure(family string) { p.decode.WithLabelValues(family).Inc() }

func (p *Prom) ControlFailure(op string) { p.control.WithLabelValues(op).Inc() }

func (p *Prom) SetUniqueTags(n int) { p.gauges[UniqueTagsGauge].Set(float64(n)) }

func (p *Prom) SetScanning(on bool) { p.gauges[ScanningGauge].Set(boolGauge(on)) }

func (p *Prom) SetReaderReady(ready bool) { p.gauges[ReaderReadyGauge].Set(boolGauge(ready)) }

func (p *Prom) ObserveStartLatency(d time.Duration) { p.latency.Observe(d.Seconds()) }

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Nop discards every event.
type Nop struct{}

func (Nop) TagRead()                          {}
func (Nop) DecodeFailure(string)              {}
func (Nop) IncompleteRead()                   {}
func (Nop) ControlFailure(string)             {}
func (Nop) SetUniqueTags(int)                 {}
func (Nop) SetScanning(bool)                  {}
func (Nop) SetReaderReady(bool)               {}
func (Nop) ObserveStartLatency(time.Duration) {}

var (
	_ Recorder = (*Prom)(nil)
	_ Recorder = Nop{}
)
