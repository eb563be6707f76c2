// Package discovery finds UHFReader18 modules on the local IPv4 segments by
// probing likely TCP ports with protocol commands.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"time"
)

var ErrNoInterfaces = errors.New("discovery: no active IPv4 interfaces")

// Candidate is an open endpoint ranked by how much it looks like a reader.
type Candidate struct {
	Host          string
	Port          int
	Score         int
	Banner        string
	Reason        string
	Verified      bool
	ReaderAddress byte
	Protocol      string
}

// Address is the dialable host:port.
func (c Candidate) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type ScanOptions struct {
	Ports                 []int
	Timeout               time.Duration
	Concurrency           int
	HostLimitPerInterface int
	// Hosts replaces interface enumeration when set.
	Hosts  []netip.Addr
	Logger *slog.Logger
}

func DefaultOptions() ScanOptions {
	return ScanOptions{
		Ports:                 []int{2022, 27011, 6000, 4001, 10001, 5000},
		Timeout:               180 * time.Millisecond,
		Concurrency:           96,
		HostLimitPerInterface: 254,
	}
}

func (o ScanOptions) withDefaults() ScanOptions {
	def := DefaultOptions()
	if len(o.Ports) == 0 {
		o.Ports = def.Ports
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.HostLimitPerInterface <= 0 {
		o.HostLimitPerInterface = def.HostLimitPerInterface
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Scan probes every candidate host on every configured port and returns the
// reachable endpoints, best first. On cancellation it returns what it found
// together with the context error.
func Scan(ctx context.Context, opts ScanOptions) ([]Candidate, error) {
	opts = opts.withDefaults()

	hosts := opts.Hosts
	if len(hosts) == 0 {
		var err error
		hosts, err = lanHosts(opts.HostLimitPerInterface)
		if err != nil {
			return nil, err
		}
	}
	opts.Logger.Debug("discovery: scanning", "hosts", len(hosts), "ports", len(opts.Ports))

	type target struct {
		host netip.Addr
		port int
	}
	jobs := make(chan target)
	results := make(chan Candidate, opts.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				c, ok := probeTarget(ctx, t.host, t.port, opts.Timeout)
				if !ok {
					continue
				}
				select {
				case results <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, host := range hosts {
			for _, port := range opts.Ports {
				select {
				case jobs <- target{host: host, port: port}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]struct{}, 16)
	candidates := make([]Candidate, 0, 16)
	for c := range results {
		if _, dup := seen[c.Address()]; dup {
			continue
		}
		seen[c.Address()] = struct{}{}
		opts.Logger.Info("discovery: candidate", "addr", c.Address(), "score", c.Score, "reason", c.Reason)
		candidates = append(candidates, c)
	}
	rank(candidates)

	return candidates, ctx.Err()
}

func rank(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		return a.Port < b.Port
	})
}

// Best picks the highest ranked verified reader, if any.
func Best(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if !c.Verified {
			continue
		}
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	}
	return best, found
}
