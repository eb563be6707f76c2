package reader18

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedCommand = errors.New("unexpected command")
	ErrShortPayload      = errors.New("payload too short")
)

// InventoryTag is one tag from an inventory response.
type InventoryTag struct {
	Antenna int
	EPC     []byte
	RSSI    byte
}

// ParseInventoryTags decodes an inventory (0x01) payload:
// AntMask(1) TagNum(1) then TagNum times [EpcLen(1) EPC(n) RSSI(1)].
func ParseInventoryTags(frame Frame) ([]InventoryTag, error) {
	if frame.Command != CmdInventory {
		return nil, fmt.Errorf("%w 0x%02X", ErrUnexpectedCommand, frame.Command)
	}
	if len(frame.Data) < 2 {
		return nil, nil
	}

	tagNum := int(frame.Data[1])
	antenna := antennaFromMask(frame.Data[0])
	tags := make([]InventoryTag, 0, tagNum)
	cursor := 2
	for i := 0; i < tagNum; i++ {
		if cursor >= len(frame.Data) {
			return nil, fmt.Errorf("inventory tag %d: %w", i, ErrShortPayload)
		}
		epcLen := int(frame.Data[cursor])
		cursor++
		// EPC plus its trailing RSSI byte must fit.
		if epcLen == 0 || cursor+epcLen >= len(frame.Data) {
			return nil, fmt.Errorf("inventory tag %d: epc len %d: %w", i, epcLen, ErrShortPayload)
		}
		epc := append([]byte(nil), frame.Data[cursor:cursor+epcLen]...)
		cursor += epcLen
		rssi := frame.Data[cursor]
		cursor++

		tags = append(tags, InventoryTag{Antenna: antenna, EPC: epc, RSSI: rssi})
	}
	return tags, nil
}

// ParseSingleInventory decodes a single-tag inventory (0x0F) payload:
// Ant(1) Count(1) EpcLen(1) EPC(n). A zero count yields no tag.
func ParseSingleInventory(frame Frame) (*InventoryTag, error) {
	if frame.Command != CmdInventorySingle {
		return nil, fmt.Errorf("%w 0x%02X", ErrUnexpectedCommand, frame.Command)
	}
	if len(frame.Data) < 3 {
		return nil, fmt.Errorf("single inventory: %w", ErrShortPayload)
	}
	if frame.Data[1] == 0 {
		return nil, nil
	}
	epcLen := int(frame.Data[2])
	if len(frame.Data) < 3+epcLen || epcLen == 0 {
		return nil, fmt.Errorf("single inventory epc len %d: %w", epcLen, ErrShortPayload)
	}
	return &InventoryTag{
		Antenna: int(frame.Data[0]),
		EPC:     append([]byte(nil), frame.Data[3:3+epcLen]...),
	}, nil
}

// ReaderInfo is the decoded GetReaderInfo (0x21) response.
type ReaderInfo struct {
	Version   uint16
	Type      byte
	Protocols byte
	MaxFre    byte
	MinFre    byte
	Power     byte
	ScanTime  byte
}

// ParseReaderInfo decodes Version(2) Type(1) Tr_Type(1) MaxFre(1) MinFre(1)
// Power(1) ScanTime(1).
func ParseReaderInfo(frame Frame) (ReaderInfo, error) {
	if frame.Command != CmdGetReaderInfo {
		return ReaderInfo{}, fmt.Errorf("%w 0x%02X", ErrUnexpectedCommand, frame.Command)
	}
	if len(frame.Data) < 8 {
		return ReaderInfo{}, fmt.Errorf("reader info: %w", ErrShortPayload)
	}
	d := frame.Data
	return ReaderInfo{
		Version:   uint16(d[0])<<8 | uint16(d[1]),
		Type:      d[2],
		Protocols: d[3],
		MaxFre:    d[4],
		MinFre:    d[5],
		Power:     d[6],
		ScanTime:  d[7],
	}, nil
}

// IsNoTagStatus reports the statuses a reader uses for an empty round.
func IsNoTagStatus(status byte) bool {
	switch status {
	case StatusNoTag, 0x02, 0x03, 0x04, StatusNoTagOrTimeout:
		return true
	}
	return false
}

func antennaFromMask(mask byte) int {
	for i := 0; i < 8; i++ {
		if mask == 1<<i {
			return i + 1
		}
	}
	return int(mask) + 1
}
