package tagcodec

import (
	"strings"
	"unicode"
)

// TagStatus is the activation state derived from the first EPC byte.
type TagStatus int

const (
	StatusInactive TagStatus = iota
	StatusActive
)

const activeMarker = "34"

func (s TagStatus) String() string {
	if s == StatusActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// ClassifyStatus strips whitespace, upper-cases, and compares the first two
// characters with the active marker "34". Short input is inactive.
func ClassifyStatus(memory string) TagStatus {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, memory)

	if len(cleaned) < 2 {
		return StatusInactive
	}
	if cleaned[:2] == activeMarker {
		return StatusActive
	}
	return StatusInactive
}
