package tagcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RSSISentinel is returned by DecodeRSSI when the raw value cannot be parsed.
const RSSISentinel = -99

// ErrMalformedRSSI marks every DecodeRSSI failure.
var ErrMalformedRSSI = errors.New("malformed rssi")

// DecodeRSSI converts the raw RSSI field reported by the reader into a signed
// dBm-scale value.
//
// UM and RM modules send a big-endian byte pair as hex that needs a
// wrap-around correction; SLR and GX modules send a signed decimal. On failure
// the result is RSSISentinel together with an error wrapping ErrMalformedRSSI.
func DecodeRSSI(raw string, family ModuleFamily) (int, error) {
	text := strings.TrimSpace(raw)
	if family.wrapsRSSI() {
		return decodeWrapped(text)
	}

	v, err := strconv.Atoi(text)
	if err != nil {
		return RSSISentinel, fmt.Errorf("%w: %q is not a decimal: %v", ErrMalformedRSSI, raw, err)
	}
	return v, nil
}

func decodeWrapped(text string) (int, error) {
	if len(text) < 4 {
		return RSSISentinel, fmt.Errorf("%w: %q has fewer than 4 hex digits", ErrMalformedRSSI, text)
	}
	hb, err := strconv.ParseUint(text[0:2], 16, 8)
	if err != nil {
		return RSSISentinel, fmt.Errorf("%w: high byte %q: %v", ErrMalformedRSSI, text[0:2], err)
	}
	lb, err := strconv.ParseUint(text[2:4], 16, 8)
	if err != nil {
		return RSSISentinel, fmt.Errorf("%w: low byte %q: %v", ErrMalformedRSSI, text[2:4], err)
	}

	// Go integer division truncates toward zero.
	return ((int(hb)-256+1)*256 + (int(lb) - 256)) / 10, nil
}

// EncodeRSSI is the inverse of DecodeRSSI. Wrapped families accept values in
// [-6553, 0]; anything outside is clamped.
func EncodeRSSI(dbm int, family ModuleFamily) string {
	if !family.wrapsRSSI() {
		return strconv.Itoa(dbm)
	}
	if dbm > 0 {
		dbm = 0
	}
	if dbm < -6553 {
		dbm = -6553
	}
	word := dbm*10 + 0x10000
	if word > 0xFFFF {
		word = 0xFFFF
	}
	return fmt.Sprintf("%04X", word)
}
