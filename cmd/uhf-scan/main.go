package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bcms_scan_go/internal/config"
	"bcms_scan_go/internal/discovery"
	"bcms_scan_go/internal/httpapi"
	"bcms_scan_go/internal/logger"
	"bcms_scan_go/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "discover":
		err = discoverCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("uhf-scan %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to scanner configuration file")
	headless := fs.Bool("headless", false, "Do not show the console monitor")
	autostart := fs.Bool("start", false, "Start scanning right after the reader is initialized")
	healthEvery := fs.Duration("health-interval", 30*time.Second, "Reader health check period while idle (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	showTUI := !*headless && shouldShowTUI()
	logOut, closeLog := os.Stderr, func() {}
	if showTUI {
		f, err := logger.OpenFile(cfg.Log.Dir, "uhf-scan.log")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logOut, closeLog = f, func() { _ = f.Close() }
		log.SetOutput(f)
	}
	defer closeLog()

	lg, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: logOut})
	if err != nil {
		return err
	}
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newApp(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer rt.close()

	if cfg.HTTP.Addr != "" {
		srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(rt.ctl, rt.registry, lg), lg)
		go func() {
			if err := srv.Run(ctx); err != nil {
				lg.Error("http: server failed", "err", err)
				stop()
			}
		}()
	}

	if *healthEvery > 0 {
		go rt.watchHealth(ctx, *healthEvery)
	}
	if !showTUI {
		go rt.drainErrors(ctx)
	}

	if *autostart {
		rt.ctl.RequestStart()
	}

	if showTUI {
		err := tui.Run(ctx, rt.ctl, tui.Options{
			Endpoint:   rt.endpoint,
			Family:     cfg.Reader.Family.String(),
			ExportPath: exportPathOr(cfg.Scan.ExportPath),
		})
		if err != nil {
			lg.Error("tui: exited with error", "err", err)
		}
		stop()
	}

	<-ctx.Done()
	lg.Info("uhf-scan: shutting down")
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: backend=%s family=%s power=%d\n",
		*cfgPath, cfg.Reader.Backend, cfg.Reader.Family, cfg.Reader.Power)
	return nil
}

func discoverCommand(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", 20*time.Second, "Overall scan deadline")
	probe := fs.Duration("probe-timeout", 180*time.Millisecond, "Per endpoint dial and probe timeout")
	ports := fs.String("ports", "", "Comma separated TCP ports (default reader ports)")
	all := fs.Bool("all", false, "List unverified endpoints too")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := discovery.DefaultOptions()
	opts.Timeout = *probe
	if *ports != "" {
		parsed, err := parsePorts(*ports)
		if err != nil {
			return err
		}
		opts.Ports = parsed
	}
	opts.Logger = logger.Discard()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	start := time.Now()
	cands, err := discovery.Scan(ctx, opts)
	if err != nil && len(cands) == 0 {
		return err
	}

	shown := 0
	for _, c := range cands {
		if !c.Verified && !*all {
			continue
		}
		mark := "          "
		if c.Verified {
			mark = "[VERIFIED]"
		}
		fmt.Printf("%s %-21s score=%-4d %s %s\n", mark, c.Address(), c.Score, c.Protocol, c.Reason)
		shown++
	}
	fmt.Printf("%d endpoint(s) in %s\n", shown, time.Since(start).Truncate(time.Millisecond))
	return nil
}

func parsePorts(raw string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports in %q", raw)
	}
	return ports, nil
}

func shouldShowTUI() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("UHF_SHOW_TUI")))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}

	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func printUsage() {
	fmt.Printf(`UHF scan monitor

Usage:
  uhf-scan <command> [flags]

Commands:
  run        Connect the reader and run the scan monitor
  validate   Load and validate a config file without touching the reader
  discover   Probe the local network for UHFReader18 modules

Examples:
  uhf-scan run -config ./config.yaml
  uhf-scan run -config ./config.yaml -headless -start
  uhf-scan validate -config ./config.yaml
  uhf-scan discover -timeout 10s
`)
}
