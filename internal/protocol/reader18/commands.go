package reader18

import "fmt"

const (
	CmdInventory       byte = 0x01
	CmdInventorySingle byte = 0x0F
	CmdGetReaderInfo   byte = 0x21
	CmdSetRegion       byte = 0x22
	CmdSetScanTime     byte = 0x25
	CmdSetOutputPower  byte = 0x2F
)

const (
	StatusSuccess        byte = 0x00
	StatusNoTag          byte = 0x01
	StatusAntennaError   byte = 0xF8
	StatusNoTagOrTimeout byte = 0xFB
	StatusCmdError       byte = 0xFE
	StatusCRCError       byte = 0xFF
)

const (
	DefaultReaderAddress   byte = 0x00
	BroadcastReaderAddress byte = 0xFF
)

// MaxOutputPower is the highest power step accepted by command 0x2F.
const MaxOutputPower = 0x1E

// InventoryParams is the payload of the Gen2 inventory command.
type InventoryParams struct {
	QValue   byte
	Session  byte
	TIDAddr  byte
	TIDLen   byte
	Target   byte
	Antenna  byte
	ScanTime byte
}

// DefaultInventoryParams matches the fast single-antenna preset.
func DefaultInventoryParams() InventoryParams {
	return InventoryParams{
		QValue:   0x04,
		Session:  0x01,
		Antenna:  0x80,
		ScanTime: 0x0A,
	}
}

// InventoryG2Command builds command 0x01. TIDAddr and TIDLen are sent only
// when TIDLen is non-zero.
func InventoryG2Command(address byte, p InventoryParams) []byte {
	if p.TIDLen == 0 {
		return BuildCommand(address, CmdInventory, []byte{p.QValue, p.Session, p.Target, p.Antenna, p.ScanTime})
	}
	return BuildCommand(address, CmdInventory, []byte{p.QValue, p.Session, p.TIDAddr, p.TIDLen, p.Target, p.Antenna, p.ScanTime})
}

// InventoryLegacyCommand is the parameterless inventory understood by older firmware.
func InventoryLegacyCommand(address byte) []byte {
	return BuildCommand(address, CmdInventory, nil)
}

func InventorySingleCommand(address byte) []byte {
	return BuildCommand(address, CmdInventorySingle, nil)
}

func GetReaderInfoCommand(address byte) []byte {
	return BuildCommand(address, CmdGetReaderInfo, nil)
}

// SetScanTimeCommand sets the inventory window in 100ms steps.
func SetScanTimeCommand(address, value byte) []byte {
	return BuildCommand(address, CmdSetScanTime, []byte{value})
}

// SetOutputPowerCommand clamps value to MaxOutputPower.
func SetOutputPowerCommand(address, value byte) []byte {
	if value > MaxOutputPower {
		value = MaxOutputPower
	}
	return BuildCommand(address, CmdSetOutputPower, []byte{value})
}

// Band selects the regulatory channel plan of command 0x22.
type Band byte

const (
	BandUser Band = iota
	BandChina
	BandUS
	BandKorea
	BandEU
)

// RegionWindow is a band plus an inclusive channel range.
type RegionWindow struct {
	Band    Band
	MinChan byte
	MaxChan byte
}

// Bytes packs the window into the MaxFre/MinFre pair of command 0x22: the
// band's high bits ride in MaxFre bits 7-6 and its low bits in MinFre bits
// 7-6, channel indexes fill bits 5-0.
func (w RegionWindow) Bytes() (maxFre, minFre byte) {
	band := byte(w.Band)
	maxFre = (band&0x0C)<<4 | w.MaxChan&0x3F
	minFre = (band&0x03)<<6 | w.MinChan&0x3F
	return maxFre, minFre
}

// SetRegionCommand builds command 0x22 for w.
func SetRegionCommand(address byte, w RegionWindow) ([]byte, error) {
	if w.MinChan > w.MaxChan || w.MaxChan > 0x3F {
		return nil, fmt.Errorf("invalid channel range %d..%d", w.MinChan, w.MaxChan)
	}
	maxFre, minFre := w.Bytes()
	return BuildCommand(address, CmdSetRegion, []byte{maxFre, minFre}), nil
}

// Regions are the four selectable frequency plans, indexed by region number.
var Regions = []RegionWindow{
	{Band: BandChina, MinChan: 0, MaxChan: 19},
	{Band: BandUS, MinChan: 0, MaxChan: 49},
	{Band: BandKorea, MinChan: 0, MaxChan: 31},
	{Band: BandEU, MinChan: 0, MaxChan: 14},
}

// NextAntenna walks mask from start and returns the antenna byte of the next
// enabled port together with the index to resume from.
func NextAntenna(mask byte, start int) (byte, int) {
	if mask == 0 {
		mask = 0x01
	}
	start = ((start % 8) + 8) % 8
	for i := 0; i < 8; i++ {
		idx := (start + i) % 8
		if mask&(1<<idx) != 0 {
			return byte(0x80 | idx), (idx + 1) % 8
		}
	}
	return 0x80, start
}
