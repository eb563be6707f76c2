package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bcms_scan_go/internal/config"
	"bcms_scan_go/internal/device"
	"bcms_scan_go/internal/discovery"
	"bcms_scan_go/internal/inventory"
	"bcms_scan_go/internal/metrics"
	"bcms_scan_go/internal/reader"
	"bcms_scan_go/internal/scan"
)

// app owns the reader pipeline for one run.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	ctl      *scan.Controller
	endpoint string
}

func newApp(ctx context.Context, cfg *config.Config, lg *slog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewProm(registry)

	acquire, err := device.NewAcquirer(ctx, deviceOptions(cfg, lg))
	if err != nil {
		return nil, err
	}
	adapter := reader.NewAdapter(acquire, reader.WithLogger(lg), reader.WithRecorder(rec))
	if err := adapter.Initialize(cfg.Reader.Family); err != nil {
		// The monitor still runs; starts report "reader not ready" until a
		// health check restores the handle.
		lg.Warn("uhf-scan: reader initialization failed", "err", err)
	}

	agg := inventory.New(adapter,
		inventory.WithPollBackoff(cfg.Scan.PollBackoff),
		inventory.WithClearOnStart(cfg.Scan.ClearOnStart),
		inventory.WithLogger(lg),
		inventory.WithRecorder(rec),
	)
	ctl := scan.New(agg, adapter,
		scan.WithStartTimeout(cfg.Scan.StartTimeout),
		scan.WithStatsInterval(cfg.Scan.StatsInterval),
		scan.WithLogger(lg),
		scan.WithRecorder(rec),
	)

	if adapter.IsReady() {
		ctl.RequestSetPower(cfg.Reader.Power)
		if cfg.Reader.Region != nil {
			ctl.RequestSetRegion(*cfg.Reader.Region)
		}
	}

	return &app{
		cfg:      cfg,
		log:      lg,
		registry: registry,
		ctl:      ctl,
		endpoint: endpointLabel(cfg.Reader),
	}, nil
}

func deviceOptions(cfg *config.Config, lg *slog.Logger) device.Options {
	r18 := device.DefaultReader18Config()
	r18.Address = byte(cfg.Reader.ReaderAddress)
	r18.AutoAddress = cfg.Reader.ReaderAddress == 0
	r18.AntennaMask = byte(cfg.Reader.AntennaMask)
	if cfg.Reader.InventoryInterval > 0 {
		r18.Interval = cfg.Reader.InventoryInterval
	}

	disc := discovery.DefaultOptions()
	disc.Logger = lg

	return device.Options{
		Backend:            cfg.Reader.Backend,
		Address:            cfg.Reader.Address,
		DialTimeout:        cfg.Reader.DialTimeout,
		SerialDevice:       cfg.Reader.SerialDevice,
		Baud:               cfg.Reader.Baud,
		Discover:           cfg.Reader.Discover,
		Discovery:          disc,
		Reader18:           r18,
		SimReadProbability: cfg.Reader.SimReadProbability,
		Logger:             lg,
	}
}

func endpointLabel(rc config.ReaderConfig) string {
	switch rc.Backend {
	case device.BackendTCP:
		if rc.Address != "" {
			return rc.Address
		}
		return "lan-discovery"
	case device.BackendSerial:
		return rc.SerialDevice
	default:
		return "sim"
	}
}

func exportPathOr(path string) string {
	if path == "" {
		return "tags.csv"
	}
	return path
}

// watchHealth probes the reader while no scan is running so a dropped module
// is reacquired before the next start.
func (a *app) watchHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.ctl.CheckHealth() {
				a.log.Warn("uhf-scan: reader health check failed")
			}
		}
	}
}

// drainErrors consumes the controller error stream when no monitor does.
// The controller has already logged each failure.
func (a *app) drainErrors(ctx context.Context) {
	errs := a.ctl.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-errs:
			if !ok {
				return
			}
			a.log.Debug("uhf-scan: control error", "msg", msg)
		}
	}
}

// close exports the table when configured, then stops the scan and releases
// the reader.
func (a *app) close() {
	if path := a.cfg.Scan.ExportPath; path != "" {
		if err := scan.ExportFile(a.ctl, path); err != nil {
			a.log.Error("uhf-scan: export failed", "path", path, "err", err)
		} else {
			a.log.Info("uhf-scan: table exported", "path", path, "tags", a.ctl.Tags().Load().Len())
		}
	}
	if err := a.ctl.Close(); err != nil {
		a.log.Warn("uhf-scan: close", "err", fmt.Errorf("release reader: %w", err))
	}
}
