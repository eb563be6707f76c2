package domain

import (
	"sort"
	"time"

	"bcms_scan_go/internal/tagcodec"
)

// TagRead is one decoded observation from the reader.
type TagRead struct {
	TID        string
	EPC        string
	RSSI       int
	ObservedAt time.Time
}

// AggregatedTag is one entry of the live inventory, keyed by EPC.
type AggregatedTag struct {
	EPC         string    `json:"epc"`
	TID         string    `json:"tid"`
	RSSI        int       `json:"rssi"`
	ReadCount   int       `json:"read_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Status is derived from the EPC on every call.
func (t AggregatedTag) Status() tagcodec.TagStatus {
	return tagcodec.ClassifyStatus(t.EPC)
}

// Snapshot is an immutable view of the tag table. A new Snapshot is built for
// every mutation, so holders never observe partial updates.
type Snapshot struct {
	tags       map[string]AggregatedTag
	totalReads int
	version    uint64
}

// EmptySnapshot is the table before any read.
func EmptySnapshot() Snapshot {
	return Snapshot{tags: map[string]AggregatedTag{}}
}

// Merge returns a copy of s with read folded in. A new EPC starts at
// ReadCount 1; a known EPC takes the latest TID and RSSI and bumps its count.
func (s Snapshot) Merge(read TagRead) Snapshot {
	return s.MergeAll([]TagRead{read})
}

// MergeAll folds reads in order into one new Snapshot, copying the table
// once for the whole batch.
func (s Snapshot) MergeAll(reads []TagRead) Snapshot {
	if len(reads) == 0 {
		return s
	}
	next := make(map[string]AggregatedTag, len(s.tags)+len(reads))
	for k, v := range s.tags {
		next[k] = v
	}

	for _, read := range reads {
		tag, ok := next[read.EPC]
		if !ok {
			tag = AggregatedTag{
				EPC:         read.EPC,
				FirstSeenAt: read.ObservedAt,
			}
		}
		tag.TID = read.TID
		tag.RSSI = read.RSSI
		tag.ReadCount++
		tag.LastSeenAt = read.ObservedAt
		next[read.EPC] = tag
	}

	return Snapshot{
		tags:       next,
		totalReads: s.totalReads + len(reads),
		version:    s.version + 1,
	}
}

// Cleared returns an empty table that still advances the version.
func (s Snapshot) Cleared() Snapshot {
	return Snapshot{tags: map[string]AggregatedTag{}, version: s.version + 1}
}

func (s Snapshot) Len() int { return len(s.tags) }

// TotalReads is the sum of ReadCount over the table.
func (s Snapshot) TotalReads() int { return s.totalReads }

func (s Snapshot) Version() uint64 { return s.version }

func (s Snapshot) Lookup(epc string) (AggregatedTag, bool) {
	tag, ok := s.tags[epc]
	return tag, ok
}

// Tags lists the table, most recently seen first, EPC as tiebreaker.
func (s Snapshot) Tags() []AggregatedTag {
	out := make([]AggregatedTag, 0, len(s.tags))
	for _, tag := range s.tags {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].EPC < out[j].EPC
	})
	return out
}
