package discovery

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	reader18 "bcms_scan_go/internal/protocol/reader18"
)

func TestHostsFromPrefix(t *testing.T) {
	prefix := netip.MustParsePrefix("192.168.10.0/24")
	hosts := hostsFromPrefix(prefix, 3)
	if len(hosts) != 3 {
		t.Fatalf("expected 3 hosts, got %d", len(hosts))
	}

	want := []string{"192.168.10.1", "192.168.10.2", "192.168.10.3"}
	for i := range want {
		if hosts[i].String() != want[i] {
			t.Fatalf("unexpected host %d: got %s want %s", i, hosts[i], want[i])
		}
	}
}

func TestHostsFromPrefixExcludesBroadcast(t *testing.T) {
	hosts := hostsFromPrefix(netip.MustParsePrefix("10.1.2.0/30"), 10)
	if len(hosts) != 2 || hosts[1].String() != "10.1.2.2" {
		t.Fatalf("expected 10.1.2.1-2, got %v", hosts)
	}
}

func TestHostsFromPrefixPointToPoint(t *testing.T) {
	hosts := hostsFromPrefix(netip.MustParsePrefix("10.0.0.0/31"), 10)
	if len(hosts) != 0 {
		t.Fatalf("expected no hosts for /31, got %d", len(hosts))
	}
}

func TestDefaultOptionsIncludesReaderPorts(t *testing.T) {
	opts := DefaultOptions()
	for _, port := range []int{2022, 27011} {
		if !slices.Contains(opts.Ports, port) {
			t.Fatalf("expected default ports to contain %d, got %v", port, opts.Ports)
		}
	}
}

func TestHostSetSkipsExcludedAndDuplicates(t *testing.T) {
	local := netip.MustParseAddr("192.168.1.5")
	set := newHostSet([]netip.Addr{local})
	set.add(local, netip.MustParseAddr("192.168.1.6"), netip.MustParseAddr("192.168.1.6"), netip.MustParseAddr("::1"))
	if len(set.list) != 1 || set.list[0].String() != "192.168.1.6" {
		t.Fatalf("unexpected hosts %v", set.list)
	}
}

func TestArpNeighborsParsesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arp")
	table := "IP address       HW type     Flags       HW address            Mask     Device\n" +
		"192.168.1.20     0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0\n" +
		"0.0.0.0          0x1         0x0         00:00:00:00:00:00     *        eth0\n" +
		"bogus\n"
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	got := arpNeighbors(path)
	if len(got) != 1 || got[0].String() != "192.168.1.20" {
		t.Fatalf("expected one neighbour, got %v", got)
	}
}

func TestBestPrefersVerified(t *testing.T) {
	cands := []Candidate{
		{Host: "10.0.0.1", Port: 80, Score: 300},
		{Host: "10.0.0.2", Port: 6000, Score: 215, Verified: true},
		{Host: "10.0.0.3", Port: 2022, Score: 180, Verified: true},
	}
	best, ok := Best(cands)
	if !ok || best.Host != "10.0.0.2" {
		t.Fatalf("expected 10.0.0.2, got %+v ok=%v", best, ok)
	}
	if _, ok := Best(cands[:1]); ok {
		t.Fatal("expected no verified candidate")
	}
}

func fakeReader(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if n >= 3 && buf[2] == reader18.CmdGetReaderInfo {
						info := []byte{0x03, 0x01, 0x09, 0x03, 0x4E, 0x00, 0x1A, 0x0A}
						_, _ = c.Write(reader18.BuildResponse(0x00, reader18.CmdGetReaderInfo, reader18.StatusSuccess, info))
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr)
}

func TestScanVerifiesReaderOnExplicitHost(t *testing.T) {
	addr := fakeReader(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cands, err := Scan(ctx, ScanOptions{
		Hosts:       []netip.Addr{netip.MustParseAddr("127.0.0.1")},
		Ports:       []int{addr.Port},
		Timeout:     300 * time.Millisecond,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	best, ok := Best(cands)
	if !ok {
		t.Fatalf("expected a verified candidate, got %+v", cands)
	}
	if best.Protocol != "reader18/get-info" || best.Score != portScore(addr.Port)+160 {
		t.Fatalf("unexpected candidate %+v", best)
	}
}
