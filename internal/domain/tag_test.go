package domain

import (
	"testing"
	"time"
)

func TestMergeCountsRepeatsAndKeepsLatest(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	reads := []TagRead{
		{TID: "E280-1", EPC: "A1", RSSI: -40, ObservedAt: base},
		{TID: "E280-9", EPC: "B2", RSSI: -61, ObservedAt: base.Add(time.Second)},
		{TID: "E280-2", EPC: "A1", RSSI: -55, ObservedAt: base.Add(2 * time.Second)},
		{TID: "E280-3", EPC: "A1", RSSI: -47, ObservedAt: base.Add(3 * time.Second)},
	}

	snap := EmptySnapshot()
	for _, r := range reads {
		snap = snap.Merge(r)
	}

	if snap.Len() != 2 {
		t.Fatalf("expected 2 unique tags, got %d", snap.Len())
	}
	if snap.TotalReads() != 4 {
		t.Fatalf("expected total reads 4, got %d", snap.TotalReads())
	}
	a1, ok := snap.Lookup("A1")
	if !ok {
		t.Fatal("expected A1 present")
	}
	if a1.ReadCount != 3 {
		t.Fatalf("expected A1 read count 3, got %d", a1.ReadCount)
	}
	if a1.RSSI != -47 || a1.TID != "E280-3" {
		t.Fatalf("expected latest values, got rssi=%d tid=%s", a1.RSSI, a1.TID)
	}
	if !a1.FirstSeenAt.Equal(base) || !a1.LastSeenAt.Equal(base.Add(3*time.Second)) {
		t.Fatalf("unexpected seen window %s..%s", a1.FirstSeenAt, a1.LastSeenAt)
	}
}

func TestMergeLeavesPreviousSnapshotUntouched(t *testing.T) {
	first := EmptySnapshot().Merge(TagRead{EPC: "A1", RSSI: -40})
	second := first.Merge(TagRead{EPC: "A1", RSSI: -70})

	tag, _ := first.Lookup("A1")
	if tag.ReadCount != 1 || tag.RSSI != -40 {
		t.Fatalf("expected first snapshot unchanged, got count=%d rssi=%d", tag.ReadCount, tag.RSSI)
	}
	if second.Version() != first.Version()+1 {
		t.Fatalf("expected version bump, got %d after %d", second.Version(), first.Version())
	}
}

func TestMergeAllMatchesSequentialMerge(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	reads := []TagRead{
		{TID: "T1", EPC: "A1", RSSI: -40, ObservedAt: base},
		{TID: "T2", EPC: "B2", RSSI: -61, ObservedAt: base.Add(time.Second)},
		{TID: "T3", EPC: "A1", RSSI: -47, ObservedAt: base.Add(2 * time.Second)},
	}
	start := EmptySnapshot().Merge(TagRead{EPC: "C3", ObservedAt: base})

	seq := start
	for _, r := range reads {
		seq = seq.Merge(r)
	}
	batch := start.MergeAll(reads)

	if batch.Len() != seq.Len() || batch.TotalReads() != seq.TotalReads() {
		t.Fatalf("expected %d/%d, got %d/%d", seq.Len(), seq.TotalReads(), batch.Len(), batch.TotalReads())
	}
	for _, want := range seq.Tags() {
		got, ok := batch.Lookup(want.EPC)
		if !ok || got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
	if batch.Version() != start.Version()+1 {
		t.Fatalf("expected one version bump per batch, got %d after %d", batch.Version(), start.Version())
	}
	if _, ok := start.Lookup("A1"); ok {
		t.Fatal("expected the source snapshot unchanged")
	}
	if same := start.MergeAll(nil); same.Version() != start.Version() {
		t.Fatal("expected an empty batch to leave the snapshot as is")
	}
}

func TestTagsOrderedByLastSeen(t *testing.T) {
	base := time.Now()
	snap := EmptySnapshot().
		Merge(TagRead{EPC: "OLD", ObservedAt: base}).
		Merge(TagRead{EPC: "NEW", ObservedAt: base.Add(time.Minute)})

	tags := snap.Tags()
	if len(tags) != 2 || tags[0].EPC != "NEW" {
		t.Fatalf("expected NEW first, got %+v", tags)
	}
}

func TestComputeStats(t *testing.T) {
	snap := EmptySnapshot().
		Merge(TagRead{EPC: "A"}).
		Merge(TagRead{EPC: "A"}).
		Merge(TagRead{EPC: "B"}).
		Merge(TagRead{EPC: "A"})

	stats := ComputeStats(snap, 2*time.Second)
	if stats.UniqueTags != 2 || stats.TotalReads != 4 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.ReadRate != 2 {
		t.Fatalf("expected read rate 2/s, got %f", stats.ReadRate)
	}

	if zero := ComputeStats(EmptySnapshot(), 0); zero != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", zero)
	}
}

func TestSessionElapsedFreezesAtStop(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	stop := start.Add(90 * time.Second)
	s := ScanSession{StartedAt: start, StoppedAt: &stop}
	if got := s.Elapsed(start.Add(time.Hour)); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestPowerBounds(t *testing.T) {
	for _, level := range []int{4, 34} {
		if ValidPowerLevel(level) {
			t.Fatalf("expected %d rejected", level)
		}
	}
	for _, level := range []int{5, 33} {
		if !ValidPowerLevel(level) {
			t.Fatalf("expected %d accepted", level)
		}
	}
}
