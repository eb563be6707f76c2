package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromRecordsScannerEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	p.TagRead()
	p.TagRead()
	if got := testutil.ToFloat64(p.counters[TagReadsTotal]); got != 2 {
		t.Fatalf("expected tag reads 2, got %f", got)
	}

	p.IncompleteRead()
	if got := testutil.ToFloat64(p.counters[IncompleteReadsTotal]); got != 1 {
		t.Fatalf("expected incomplete reads 1, got %f", got)
	}

	p.DecodeFailure("UM")
	p.DecodeFailure("UM")
	if got := testutil.ToFloat64(p.decode.WithLabelValues("UM")); got != 2 {
		t.Fatalf("expected UM decode failures 2, got %f", got)
	}

	p.ControlFailure("start")
	if got := testutil.ToFloat64(p.control.WithLabelValues("start")); got != 1 {
		t.Fatalf("expected start failures 1, got %f", got)
	}

	p.SetUniqueTags(7)
	if got := testutil.ToFloat64(p.gauges[UniqueTagsGauge]); got != 7 {
		t.Fatalf("expected unique tags 7, got %f", got)
	}

	p.SetScanning(true)
	if got := testutil.ToFloat64(p.gauges[ScanningGauge]); got != 1 {
		t.Fatalf("expected scanning gauge 1, got %f", got)
	}
	p.SetReaderReady(false)
	if got := testutil.ToFloat64(p.gauges[ReaderReadyGauge]); got != 0 {
		t.Fatalf("expected reader ready gauge 0, got %f", got)
	}

	p.ObserveStartLatency(120 * time.Millisecond)
	if samples := testutil.CollectAndCount(p.latency); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}
}
