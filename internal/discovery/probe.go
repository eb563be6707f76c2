package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	reader18 "bcms_scan_go/internal/protocol/reader18"
)

type probe struct {
	name   string
	expect byte
	build  func(addr byte) []byte
}

var probes = []probe{
	{name: "get-info", expect: reader18.CmdGetReaderInfo, build: reader18.GetReaderInfoCommand},
	{
		name:   "inventory-g2",
		expect: reader18.CmdInventory,
		build: func(addr byte) []byte {
			return reader18.InventoryG2Command(addr, reader18.DefaultInventoryParams())
		},
	},
	{name: "inventory-single", expect: reader18.CmdInventorySingle, build: reader18.InventorySingleCommand},
}

func probeTarget(ctx context.Context, host netip.Addr, port int, timeout time.Duration) (Candidate, bool) {
	dialer := net.Dialer{Timeout: timeout}
	address := net.JoinHostPort(host.String(), strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Candidate{}, false
	}
	defer conn.Close()

	c := Candidate{
		Host:   host.String(),
		Port:   port,
		Score:  portScore(port),
		Reason: "open tcp port",
	}
	if name, addr, ok := identify(conn, timeout); ok {
		c.Verified = true
		c.ReaderAddress = addr
		c.Protocol = "reader18/" + name
		c.Score += 160
		c.Reason = fmt.Sprintf("reader protocol: %s addr=0x%02X", c.Protocol, addr)
		return c, true
	}
	if banner := readBanner(conn); banner != "" {
		c.Banner = banner
		c.Score += keywordScore(banner)
		c.Reason = "banner matched"
	}
	return c, true
}

// identify tries each probe on the default and broadcast addresses and
// reports the first one answered with the expected command.
func identify(conn net.Conn, timeout time.Duration) (string, byte, bool) {
	for _, p := range probes {
		for _, addr := range []byte{reader18.DefaultReaderAddress, reader18.BroadcastReaderAddress} {
			for _, frame := range exchange(conn, p.build(addr), timeout) {
				if frame.Command == p.expect {
					return p.name, frame.Address, true
				}
			}
		}
	}
	return "", 0, false
}

func exchange(conn net.Conn, payload []byte, timeout time.Duration) []reader18.Frame {
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(payload); err != nil {
		return nil
	}

	wait := 2 * timeout
	if wait < 420*time.Millisecond {
		wait = 420 * time.Millisecond
	}
	deadline := time.Now().Add(wait)

	var dec reader18.Decoder
	buf := make([]byte, 512)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			if frames := dec.Feed(buf[:n]); len(frames) > 0 {
				return frames
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return nil
		}
	}
	return nil
}

func readBanner(conn net.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(140 * time.Millisecond))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n <= 0 {
		return ""
	}
	text := printable(string(buf[:n]))
	if len(text) > 140 {
		text = text[:140]
	}
	return text
}

func printable(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 32 && r <= 126:
			b.WriteRune(r)
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func portScore(port int) int {
	switch port {
	case 2022, 27011, 4001, 5000, 6000, 7000, 10001:
		return 55
	case 23:
		return 30
	case 80, 443, 8080:
		return 20
	}
	return 10
}

func keywordScore(banner string) int {
	text := strings.ToLower(banner)
	score := 0
	for _, kw := range []string{"rfid", "uhf", "reader", "impinj", "epc", "e710"} {
		if strings.Contains(text, kw) {
			score += 18
		}
	}
	return score
}
