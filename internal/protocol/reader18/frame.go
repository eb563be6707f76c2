// Package reader18 encodes and decodes the UHFReader18 serial/TCP protocol.
//
// Command packet: Len(1) Adr(1) Cmd(1) Data(n) CRC_L(1) CRC_H(1).
// Response packet: Len(1) Adr(1) Cmd(1) Status(1) Data(n) CRC_L(1) CRC_H(1).
// Len counts every byte after itself. CRC is CRC-16/MCRF4XX over all
// preceding bytes.
package reader18

// Frame is one decoded response frame.
type Frame struct {
	Length  byte
	Address byte
	Command byte
	Status  byte
	Data    []byte
	Raw     []byte
}

// OK reports a success status.
func (f Frame) OK() bool { return f.Status == StatusSuccess }

const (
	minFrameLen = 6
	// maxBuffered caps the unparsed stream kept between reads.
	maxBuffered = 8192
)

// BuildCommand builds one wire packet for command with payload.
func BuildCommand(address, command byte, payload []byte) []byte {
	length := byte(len(payload) + 4)
	packet := make([]byte, 0, int(length)+1)
	packet = append(packet, length, address, command)
	packet = append(packet, payload...)

	crc := crc16MCRF4XX(packet)
	return append(packet, byte(crc), byte(crc>>8))
}

// BuildResponse builds a response packet as a module would send it.
func BuildResponse(address, command, status byte, data []byte) []byte {
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, status)
	return BuildCommand(address, command, append(payload, data...))
}

// VerifyPacket checks the length byte and trailing CRC of a full packet.
func VerifyPacket(packet []byte) bool {
	if len(packet) < minFrameLen || int(packet[0])+1 != len(packet) {
		return false
	}
	crc := crc16MCRF4XX(packet[:len(packet)-2])
	return byte(crc) == packet[len(packet)-2] && byte(crc>>8) == packet[len(packet)-1]
}

// ParseFrames decodes every complete frame in stream. Bytes that cannot start
// a valid frame are skipped one at a time; an incomplete tail is returned as
// remaining so the caller can prepend it to the next read.
func ParseFrames(stream []byte) (frames []Frame, remaining []byte) {
	buf := stream
	for len(buf) >= minFrameLen {
		total := int(buf[0]) + 1
		if total < minFrameLen {
			buf = buf[1:]
			continue
		}
		if total > len(buf) {
			break
		}
		raw := buf[:total]
		if !VerifyPacket(raw) {
			buf = buf[1:]
			continue
		}

		frameRaw := append([]byte(nil), raw...)
		frames = append(frames, Frame{
			Length:  frameRaw[0],
			Address: frameRaw[1],
			Command: frameRaw[2],
			Status:  frameRaw[3],
			Data:    frameRaw[4 : total-2],
			Raw:     frameRaw,
		})
		buf = buf[total:]
	}

	if len(buf) > 0 {
		remaining = append([]byte(nil), buf...)
	}
	return frames, remaining
}

// Decoder accumulates stream chunks and yields complete frames.
type Decoder struct {
	buf []byte
}

// Feed appends chunk and returns the frames completed by it.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)
	if len(d.buf) > maxBuffered {
		d.buf = append([]byte(nil), d.buf[len(d.buf)-maxBuffered/2:]...)
	}
	frames, remaining := ParseFrames(d.buf)
	d.buf = remaining
	return frames
}

// Reset drops any buffered partial frame.
func (d *Decoder) Reset() { d.buf = nil }

// crc16MCRF4XX: poly 0x8408 (reflected 0x1021), init 0xFFFF, no final xor.
func crc16MCRF4XX(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
