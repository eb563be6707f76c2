package domain

import "time"

const (
	MinPowerLevel = 5
	MaxPowerLevel = 33

	MinRegion = 0
	MaxRegion = 3
)

// ValidPowerLevel reports whether level is inside the accepted 5..33 range.
func ValidPowerLevel(level int) bool {
	return level >= MinPowerLevel && level <= MaxPowerLevel
}

// ValidRegion reports whether region is one of the four frequency regions.
func ValidRegion(region int) bool {
	return region >= MinRegion && region <= MaxRegion
}

// ScanSession describes one start/stop cycle.
type ScanSession struct {
	ID         string     `json:"id"`
	Active     bool       `json:"active"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	PowerLevel int        `json:"power_level"`
}

// Elapsed is the running time of the session at now, frozen once stopped.
func (s ScanSession) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if s.StoppedAt != nil {
		end = *s.StoppedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Stats is the derived view published to the presentation layer.
type Stats struct {
	UniqueTags int           `json:"unique_tags"`
	TotalReads int           `json:"total_reads"`
	ReadRate   float64       `json:"read_rate"`
	Duration   time.Duration `json:"duration_ns"`
}

// ComputeStats derives Stats from a table and the elapsed session time.
func ComputeStats(table Snapshot, elapsed time.Duration) Stats {
	stats := Stats{
		UniqueTags: table.Len(),
		TotalReads: table.TotalReads(),
		Duration:   elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.ReadRate = float64(stats.TotalReads) / secs
	}
	return stats
}
