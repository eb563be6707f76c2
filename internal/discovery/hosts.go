package discovery

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sort"
	"strings"
)

// hostSet keeps insertion order and drops duplicates and excluded addresses.
type hostSet struct {
	list []netip.Addr
	seen map[netip.Addr]struct{}
}

func newHostSet(exclude []netip.Addr) *hostSet {
	s := &hostSet{seen: make(map[netip.Addr]struct{}, 512)}
	for _, a := range exclude {
		s.seen[a] = struct{}{}
	}
	return s
}

func (s *hostSet) add(addrs ...netip.Addr) {
	for _, a := range addrs {
		if !a.Is4() {
			continue
		}
		if _, ok := s.seen[a]; ok {
			continue
		}
		s.seen[a] = struct{}{}
		s.list = append(s.list, a)
	}
}

// lanHosts lists subnet hosts, ARP neighbours and common reader addresses,
// skipping this machine's own addresses.
func lanHosts(limit int) ([]netip.Addr, error) {
	prefixes, locals, err := localPrefixes()
	if err != nil {
		return nil, err
	}
	if len(prefixes) == 0 {
		return nil, ErrNoInterfaces
	}

	set := newHostSet(locals)
	for _, p := range prefixes {
		set.add(hostsFromPrefix(p, limit)...)
	}
	set.add(arpNeighbors("/proc/net/arp")...)
	set.add(seedAddrs(locals)...)
	return set.list, nil
}

func localPrefixes() ([]netip.Prefix, []netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, err
	}

	var prefixes []netip.Prefix
	var locals []netip.Addr
	seen := make(map[netip.Prefix]struct{}, 8)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			local, ok := netip.AddrFromSlice(ipNet.IP.To4())
			if !ok {
				continue
			}
			locals = append(locals, local)

			ones, bits := ipNet.Mask.Size()
			if bits != 32 || ones <= 0 {
				continue
			}
			// Never sweep more than a /24.
			prefix := netip.PrefixFrom(local, max(ones, 24)).Masked()
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			prefixes = append(prefixes, prefix)
		}
	}

	sort.Slice(prefixes, func(i, j int) bool {
		return prefixes[i].String() < prefixes[j].String()
	})
	return prefixes, locals, nil
}

func hostsFromPrefix(prefix netip.Prefix, limit int) []netip.Addr {
	if !prefix.Addr().Is4() || prefix.Bits() >= 31 {
		return nil
	}
	base := ipv4ToUint32(prefix.Addr())
	count := uint64(1)<<uint(32-prefix.Bits()) - 2

	hosts := make([]netip.Addr, 0, min(limit, int(count)))
	for i := uint64(1); i <= count && len(hosts) < limit; i++ {
		hosts = append(hosts, uint32ToIPv4(base+uint32(i)))
	}
	return hosts
}

func ipv4ToUint32(addr netip.Addr) uint32 {
	v := addr.As4()
	return binary.BigEndian.Uint32(v[:])
}

func uint32ToIPv4(v uint32) netip.Addr {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return netip.AddrFrom4(buf)
}

func arpNeighbors(path string) []netip.Addr {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var out []netip.Addr
	scanner := bufio.NewScanner(file)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil || !addr.Is4() || addr.IsLoopback() || addr.IsUnspecified() {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// seedAddrs are addresses vendors commonly ship readers on.
func seedAddrs(locals []netip.Addr) []netip.Addr {
	texts := []string{
		"192.168.0.10", "192.168.0.100", "192.168.0.200",
		"192.168.1.10", "192.168.1.100", "192.168.1.200",
		"10.0.0.10", "10.0.0.100", "10.0.0.200",
		"10.10.10.10", "10.10.10.100", "10.10.10.200",
	}
	for _, local := range locals {
		if !local.Is4() {
			continue
		}
		v := local.As4()
		for _, d := range []byte{2, 10, 20, 50, 100, 150, 200, 250} {
			texts = append(texts, fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], d))
		}
		for c := 0; c < 3; c++ {
			texts = append(texts, fmt.Sprintf("%d.%d.%d.10", v[0], v[1], c))
		}
	}

	out := make([]netip.Addr, 0, len(texts))
	for _, t := range texts {
		if addr, err := netip.ParseAddr(t); err == nil {
			out = append(out, addr)
		}
	}
	return out
}
