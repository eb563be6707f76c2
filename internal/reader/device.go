package reader

import (
	"bcms_scan_go/internal/stream"
	"bcms_scan_go/internal/tagcodec"
)

// Device is the command surface of a vendor UHF module.
//
// ReadTagFromBuffer pops one buffered tag payload without blocking. The
// payload is [TID, EPC, RSSI] with RSSI in the family's raw encoding; nil
// means the buffer is empty.
type Device interface {
	PowerOn() bool
	PowerOff() bool
	SetPower(level int) bool
	Power() int
	SetFrequencyMode(region int) bool
	StartInventory() bool
	StopInventory() bool
	ReadTagFromBuffer() []string
}

// LinkReporter is implemented by devices that can lose their connection
// after acquisition.
type LinkReporter interface {
	Link() *stream.Value[bool]
}

// Acquirer returns the device handle for a module family.
type Acquirer func(family tagcodec.ModuleFamily) (Device, error)
