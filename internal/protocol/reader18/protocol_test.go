package reader18

import (
	"bytes"
	"errors"
	"testing"
)

func buildResponseFrame(addr, cmd, status byte, data []byte) []byte {
	length := byte(len(data) + 5)
	packet := make([]byte, 0, int(length)+1)
	packet = append(packet, length, addr, cmd, status)
	packet = append(packet, data...)
	crc := crc16MCRF4XX(packet)
	return append(packet, byte(crc), byte(crc>>8))
}

func TestBuildLegacyInventoryCommand(t *testing.T) {
	got := InventoryLegacyCommand(0x00)
	want := []byte{0x04, 0x00, 0x01, 0xDB, 0x4B}
	if !bytes.Equal(got, want) {
		t.Fatalf("inventory command mismatch: got %X want %X", got, want)
	}

	got = InventoryLegacyCommand(BroadcastReaderAddress)
	want = []byte{0x04, 0xFF, 0x01, 0x1B, 0xB4}
	if !bytes.Equal(got, want) {
		t.Fatalf("broadcast inventory mismatch: got %X want %X", got, want)
	}
}

func TestBuildGetReaderInfo(t *testing.T) {
	got := GetReaderInfoCommand(0x00)
	want := []byte{0x04, 0x00, 0x21, 0xD9, 0x6A}
	if !bytes.Equal(got, want) {
		t.Fatalf("get-info command mismatch: got %X want %X", got, want)
	}
}

func TestBuildInventorySingleCommand(t *testing.T) {
	got := InventorySingleCommand(0x00)
	want := []byte{0x04, 0x00, 0x0F, 0xA5, 0xA2}
	if !bytes.Equal(got, want) {
		t.Fatalf("single inventory mismatch: got %X want %X", got, want)
	}
}

func TestInventoryG2CommandWithoutTID(t *testing.T) {
	got := InventoryG2Command(0x00, DefaultInventoryParams())
	want := []byte{0x09, 0x00, 0x01, 0x04, 0x01, 0x00, 0x80, 0x0A, 0x99, 0xC6}
	if !bytes.Equal(got, want) {
		t.Fatalf("inventory G2 mismatch: got %X want %X", got, want)
	}
}

func TestInventoryG2CommandWithTID(t *testing.T) {
	p := DefaultInventoryParams()
	p.TIDLen = 0x06
	got := InventoryG2Command(0x00, p)
	want := []byte{0x0B, 0x00, 0x01, 0x04, 0x01, 0x00, 0x06, 0x00, 0x80, 0x0A, 0x29, 0x03}
	if !bytes.Equal(got, want) {
		t.Fatalf("inventory G2 with TID mismatch: got %X want %X", got, want)
	}
}

func TestSetOutputPowerClamps(t *testing.T) {
	got := SetOutputPowerCommand(0x00, 40)
	if got[3] != MaxOutputPower {
		t.Fatalf("expected clamped power 0x%02X, got 0x%02X", MaxOutputPower, got[3])
	}
	if !VerifyPacket(got) {
		t.Fatal("expected valid packet")
	}
}

func TestRegionWindowBytes(t *testing.T) {
	maxFre, minFre := RegionWindow{Band: BandEU, MinChan: 0, MaxChan: 14}.Bytes()
	if maxFre != 0x4E || minFre != 0x00 {
		t.Fatalf("EU window mismatch: got %02X/%02X", maxFre, minFre)
	}
	maxFre, minFre = RegionWindow{Band: BandUS, MinChan: 0, MaxChan: 49}.Bytes()
	if maxFre != 0x31 || minFre != 0x80 {
		t.Fatalf("US window mismatch: got %02X/%02X", maxFre, minFre)
	}
	if _, err := SetRegionCommand(0x00, RegionWindow{Band: BandChina, MinChan: 5, MaxChan: 2}); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestParseFramesSplitsStream(t *testing.T) {
	frame1 := buildResponseFrame(0x00, CmdInventory, StatusSuccess, []byte{0x01, 0xAA})
	frame2 := buildResponseFrame(0x00, CmdGetReaderInfo, StatusSuccess, []byte{0x10})
	stream := append(append([]byte{}, frame1...), frame2...)

	frames, remaining := ParseFrames(stream)
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(remaining))
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Command != CmdInventory || frames[1].Command != CmdGetReaderInfo {
		t.Fatalf("unexpected commands %02X %02X", frames[0].Command, frames[1].Command)
	}
}

func TestParseFramesSkipsGarbagePrefix(t *testing.T) {
	frame := buildResponseFrame(0x00, CmdInventory, StatusNoTag, nil)
	frames, remaining := ParseFrames(append([]byte{0x00, 0x00}, frame...))
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(remaining))
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestBuildResponseMatchesHandBuiltFrame(t *testing.T) {
	got := BuildResponse(0x00, CmdGetReaderInfo, StatusSuccess, []byte{0x01, 0x02})
	want := buildResponseFrame(0x00, CmdGetReaderInfo, StatusSuccess, []byte{0x01, 0x02})
	if !bytes.Equal(got, want) {
		t.Fatalf("response mismatch: got %X want %X", got, want)
	}
}

func TestDecoderJoinsPartialReads(t *testing.T) {
	frame := buildResponseFrame(0x00, CmdGetReaderInfo, StatusSuccess, []byte{0x01, 0x02})
	var d Decoder
	if got := d.Feed(frame[:3]); len(got) != 0 {
		t.Fatalf("expected no frame from partial chunk, got %d", len(got))
	}
	got := d.Feed(frame[3:])
	if len(got) != 1 || !got[0].OK() {
		t.Fatalf("expected 1 ok frame, got %+v", got)
	}
}

func TestParseInventoryTags(t *testing.T) {
	f := Frame{
		Command: CmdInventory,
		Status:  StatusNoTag,
		Data: []byte{
			0x01, 0x01, 0x0C,
			0x30, 0x34, 0x25, 0x7B, 0xF7, 0x19, 0x4E, 0x40, 0x00, 0x00, 0x00, 0x42,
			0x5A,
		},
	}
	tags, err := ParseInventoryTags(f)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}
	if tags[0].Antenna != 1 || len(tags[0].EPC) != 12 || tags[0].RSSI != 0x5A {
		t.Fatalf("unexpected tag %+v", tags[0])
	}
}

func TestParseInventoryTagsTruncated(t *testing.T) {
	f := Frame{Command: CmdInventory, Data: []byte{0x01, 0x02, 0x02, 0xAA, 0xBB, 0x50}}
	if _, err := ParseInventoryTags(f); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestParseSingleInventory(t *testing.T) {
	f := Frame{
		Command: CmdInventorySingle,
		Status:  StatusNoTag,
		Data:    []byte{0x01, 0x01, 0x0C, 0x30, 0x34, 0x25, 0x7B, 0xF7, 0x19, 0x4E, 0x40, 0x00, 0x00, 0x00, 0x42},
	}
	tag, err := ParseSingleInventory(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag == nil || tag.Antenna != 1 || len(tag.EPC) != 12 || tag.EPC[0] != 0x30 {
		t.Fatalf("unexpected tag %+v", tag)
	}
}

func TestParseReaderInfo(t *testing.T) {
	f := Frame{
		Command: CmdGetReaderInfo,
		Data:    []byte{0x03, 0x01, 0x09, 0x03, 0x4E, 0x00, 0x1A, 0x0A},
	}
	info, err := ParseReaderInfo(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Version != 0x0301 || info.Power != 0x1A || info.ScanTime != 0x0A {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := ParseReaderInfo(Frame{Command: CmdGetReaderInfo, Data: []byte{0x01}}); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestNextAntennaCyclesMask(t *testing.T) {
	ant, next := NextAntenna(0x05, 0)
	if ant != 0x80 || next != 1 {
		t.Fatalf("expected antenna 0x80 next 1, got 0x%02X %d", ant, next)
	}
	ant, next = NextAntenna(0x05, next)
	if ant != 0x82 || next != 3 {
		t.Fatalf("expected antenna 0x82 next 3, got 0x%02X %d", ant, next)
	}
}
