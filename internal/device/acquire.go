package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"bcms_scan_go/internal/discovery"
	"bcms_scan_go/internal/reader"
	"bcms_scan_go/internal/tagcodec"
)

const (
	BackendSim    = "sim"
	BackendTCP    = "tcp"
	BackendSerial = "serial"
)

// Options selects and configures the backend behind an Acquirer.
type Options struct {
	Backend     string
	Address     string
	DialTimeout time.Duration

	SerialDevice string
	Baud         int

	// Discover scans the LAN for a reader when Address is empty.
	Discover  bool
	Discovery discovery.ScanOptions

	Reader18 Reader18Config

	SimReadProbability float64
	SimSeed            int64

	Logger *slog.Logger
}

// NewAcquirer returns the reader.Acquirer for opts.Backend. Each call opens a
// fresh connection so health restore can reacquire a dropped module.
func NewAcquirer(ctx context.Context, opts Options) (reader.Acquirer, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 3 * time.Second
	}

	switch opts.Backend {
	case BackendSim, "":
		return func(family tagcodec.ModuleFamily) (reader.Device, error) {
			var simOpts []SimOption
			if opts.SimReadProbability > 0 {
				simOpts = append(simOpts, WithReadProbability(opts.SimReadProbability))
			}
			if opts.SimSeed != 0 {
				simOpts = append(simOpts, WithSeed(opts.SimSeed))
			}
			log.Info("device: simulated reader", "family", family.String())
			return NewSimulated(family, simOpts...), nil
		}, nil

	case BackendTCP:
		return func(family tagcodec.ModuleFamily) (reader.Device, error) {
			address, cfg, err := resolveTCP(ctx, opts, log)
			if err != nil {
				return nil, err
			}
			conn, err := DialTCP(ctx, address, opts.DialTimeout)
			if err != nil {
				return nil, err
			}
			log.Info("device: connected", "addr", address, "family", family.String())
			return NewReader18(conn, family, cfg, log), nil
		}, nil

	case BackendSerial:
		if opts.SerialDevice == "" {
			return nil, fmt.Errorf("serial backend needs a device path")
		}
		return func(family tagcodec.ModuleFamily) (reader.Device, error) {
			port, err := OpenSerial(opts.SerialDevice, opts.Baud)
			if err != nil {
				return nil, err
			}
			log.Info("device: serial opened", "device", opts.SerialDevice, "baud", opts.Baud, "family", family.String())
			return NewReader18(port, family, opts.Reader18, log), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown reader backend %q", opts.Backend)
}

func resolveTCP(ctx context.Context, opts Options, log *slog.Logger) (string, Reader18Config, error) {
	cfg := opts.Reader18
	if opts.Address != "" {
		return opts.Address, cfg, nil
	}
	if !opts.Discover {
		return "", cfg, fmt.Errorf("tcp backend needs an address or discovery")
	}

	scanOpts := opts.Discovery
	scanOpts.Logger = log
	cands, err := discovery.Scan(ctx, scanOpts)
	if err != nil && len(cands) == 0 {
		return "", cfg, fmt.Errorf("discover reader: %w", err)
	}
	best, ok := discovery.Best(cands)
	if !ok {
		return "", cfg, fmt.Errorf("discover reader: no verified reader among %d endpoints", len(cands))
	}
	cfg.Address = best.ReaderAddress
	log.Info("device: discovered reader", "addr", best.Address(), "reason", best.Reason)
	return best.Address(), cfg, nil
}

var (
	_ io.Closer = (*Simulated)(nil)
	_ io.Closer = (*Reader18)(nil)
)
