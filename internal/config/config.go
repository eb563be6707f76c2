// Package config loads the scanner configuration from YAML with UHF_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/logger"
	"bcms_scan_go/internal/tagcodec"
)

type Config struct {
	Reader ReaderConfig `yaml:"reader"`
	Scan   ScanConfig   `yaml:"scan"`
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
}

type ReaderConfig struct {
	Backend       string                `yaml:"backend"`
	Family        tagcodec.ModuleFamily `yaml:"family"`
	Address       string                `yaml:"address"`
	Discover      bool                  `yaml:"discover"`
	SerialDevice  string                `yaml:"serial_device"`
	Baud          int                   `yaml:"baud"`
	ReaderAddress int                   `yaml:"reader_address"`
	AntennaMask   int                   `yaml:"antenna_mask"`
	Power         int                   `yaml:"power"`
	// Region is applied at startup when set; nil keeps the module's plan.
	Region             *int          `yaml:"region"`
	InventoryInterval  time.Duration `yaml:"inventory_interval"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	SimReadProbability float64       `yaml:"sim_read_probability"`
}

type ScanConfig struct {
	PollBackoff   time.Duration `yaml:"poll_backoff"`
	StartTimeout  time.Duration `yaml:"start_timeout"`
	StatsInterval time.Duration `yaml:"stats_interval"`
	ClearOnStart  bool          `yaml:"clear_on_start"`
	ExportPath    string        `yaml:"export_path"`
}

// HTTPConfig enables the control API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, applies environment overrides and defaults, and validates
// the result. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Reader.Backend = envOr("UHF_READER_BACKEND", c.Reader.Backend)
	c.Reader.Address = envOr("UHF_READER_ADDRESS", c.Reader.Address)
	c.Reader.Discover = envBool("UHF_READER_DISCOVER", c.Reader.Discover)
	c.Reader.SerialDevice = envOr("UHF_SERIAL_DEVICE", c.Reader.SerialDevice)
	if raw := envOr("UHF_READER_FAMILY", ""); raw != "" {
		family, err := tagcodec.ParseModuleFamily(raw)
		if err != nil {
			return fmt.Errorf("UHF_READER_FAMILY: %w", err)
		}
		c.Reader.Family = family
	}
	power, err := envInt("UHF_READER_POWER", c.Reader.Power)
	if err != nil {
		return err
	}
	c.Reader.Power = power

	c.Scan.ClearOnStart = envBool("UHF_SCAN_CLEAR_ON_START", c.Scan.ClearOnStart)
	c.Scan.ExportPath = envOr("UHF_EXPORT_PATH", c.Scan.ExportPath)
	c.HTTP.Addr = envOr("UHF_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = envOr("UHF_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("UHF_LOG_FORMAT", c.Log.Format)
	c.Log.Dir = envOr("UHF_LOG_DIR", c.Log.Dir)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Reader.Backend == "" {
		c.Reader.Backend = "sim"
	}
	if c.Reader.Family == 0 {
		c.Reader.Family = tagcodec.FamilyUM
	}
	if c.Reader.Baud == 0 {
		c.Reader.Baud = 57600
	}
	if c.Reader.AntennaMask == 0 {
		c.Reader.AntennaMask = 0x01
	}
	if c.Reader.Power == 0 {
		c.Reader.Power = 30
	}
	if c.Reader.InventoryInterval == 0 {
		c.Reader.InventoryInterval = 60 * time.Millisecond
	}
	if c.Reader.DialTimeout == 0 {
		c.Reader.DialTimeout = 3 * time.Second
	}
	if c.Reader.SimReadProbability == 0 {
		c.Reader.SimReadProbability = 0.1
	}
	if c.Scan.PollBackoff == 0 {
		c.Scan.PollBackoff = 50 * time.Millisecond
	}
	if c.Scan.StartTimeout == 0 {
		c.Scan.StartTimeout = 30 * time.Second
	}
	if c.Scan.StatsInterval == 0 {
		c.Scan.StatsInterval = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	r := c.Reader
	switch r.Backend {
	case "sim":
	case "tcp":
		if r.Address == "" && !r.Discover {
			return fmt.Errorf("reader.address is required for tcp unless reader.discover is set")
		}
	case "serial":
		if r.SerialDevice == "" {
			return fmt.Errorf("reader.serial_device is required for serial")
		}
	default:
		return fmt.Errorf("reader.backend %q: want sim, tcp or serial", r.Backend)
	}
	if !r.Family.Valid() {
		return fmt.Errorf("reader.family is invalid")
	}
	if !domain.ValidPowerLevel(r.Power) {
		return fmt.Errorf("reader.power %d outside %d..%d", r.Power, domain.MinPowerLevel, domain.MaxPowerLevel)
	}
	if r.Region != nil && !domain.ValidRegion(*r.Region) {
		return fmt.Errorf("reader.region %d outside %d..%d", *r.Region, domain.MinRegion, domain.MaxRegion)
	}
	if r.ReaderAddress < 0 || r.ReaderAddress > 0xFF {
		return fmt.Errorf("reader.reader_address %d is not a byte", r.ReaderAddress)
	}
	if r.AntennaMask < 0 || r.AntennaMask > 0xFF {
		return fmt.Errorf("reader.antenna_mask %d is not a byte", r.AntennaMask)
	}
	if r.Baud < 0 {
		return fmt.Errorf("reader.baud must be positive")
	}
	if r.SimReadProbability < 0 || r.SimReadProbability > 1 {
		return fmt.Errorf("reader.sim_read_probability %.2f outside 0..1", r.SimReadProbability)
	}

	durations := map[string]time.Duration{
		"reader.inventory_interval": r.InventoryInterval,
		"reader.dial_timeout":       r.DialTimeout,
		"scan.poll_backoff":         c.Scan.PollBackoff,
		"scan.start_timeout":        c.Scan.StartTimeout,
		"scan.stats_interval":       c.Scan.StatsInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
