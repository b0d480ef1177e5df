// Package config loads the tsana YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/tsana/internal/mpegts"
	"github.com/zsiec/tsana/internal/tstime"
)

// Pool order bounds. Every section-carrying PID holds an 8 KiB reassembly
// block and each stored section takes at least one more block, so 2^15
// bytes fits the PAT and one PMT with their sections. BlockOrder is the
// smallest block.
const (
	MinPoolOrder = 15
	MaxPoolOrder = 30
	BlockOrder   = 6
)

// Config is the top-level configuration.
type Config struct {
	PacketSize     int  `yaml:"packet_size"`
	PoolOrder      uint `yaml:"pool_order"`
	RateIntervalMS int  `yaml:"rate_interval_ms"`
	MaxSyncErrors  int  `yaml:"max_sync_errors"`
	Resync         bool `yaml:"resync"`
	// Probe scans elementary stream headers for codec parameters.
	Probe    bool     `yaml:"probe"`
	Features Features `yaml:"features"`
	Log      Log      `yaml:"log"`
}

// Features mirrors mpegts.Features.
type Features struct {
	CC        bool `yaml:"cc"`
	AF        bool `yaml:"af"`
	Timestamp bool `yaml:"timestamp"`
	PSI       bool `yaml:"psi"`
	SI        bool `yaml:"si"`
	PES       bool `yaml:"pes"`
	AlignPES  bool `yaml:"align_pes"`
	Stats     bool `yaml:"stats"`
}

// Log configures the diagnostics logger. An empty File logs to stderr.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	f := mpegts.DefaultFeatures()
	return Config{
		PacketSize:     mpegts.PacketSizeTS,
		PoolOrder:      20,
		RateIntervalMS: 1000,
		MaxSyncErrors:  10,
		Resync:         true,
		Probe:          true,
		Features: Features{
			CC:        f.CC,
			AF:        f.AF,
			Timestamp: f.Timestamp,
			PSI:       f.PSI,
			SI:        f.SI,
			PES:       f.PES,
			AlignPES:  f.AlignPES,
			Stats:     f.Stats,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  25,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads YAML from r over the defaults and validates the result.
// Keys absent from the document keep their default values.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.PacketSize {
	case mpegts.PacketSizeTS, mpegts.PacketSizeM2TS, mpegts.PacketSizeRS:
	default:
		return fmt.Errorf("config: packet_size %d: must be 188, 192 or 204", c.PacketSize)
	}
	if c.PoolOrder < MinPoolOrder || c.PoolOrder > MaxPoolOrder {
		return fmt.Errorf("config: pool_order %d: must be in [%d, %d]", c.PoolOrder, MinPoolOrder, MaxPoolOrder)
	}
	if c.RateIntervalMS <= 0 {
		return fmt.Errorf("config: rate_interval_ms %d: must be positive", c.RateIntervalMS)
	}
	if c.MaxSyncErrors < 0 {
		return fmt.Errorf("config: max_sync_errors %d: must not be negative", c.MaxSyncErrors)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// MPEGTS returns the session feature set.
func (f Features) MPEGTS() mpegts.Features {
	return mpegts.Features{
		CC:        f.CC,
		AF:        f.AF,
		Timestamp: f.Timestamp,
		PSI:       f.PSI,
		SI:        f.SI,
		PES:       f.PES,
		AlignPES:  f.AlignPES,
		Stats:     f.Stats,
	}
}

// SessionFeatures returns the feature set passed to Session.Configure.
func (c Config) SessionFeatures() mpegts.Features {
	return c.Features.MPEGTS()
}

// RateInterval returns the bitrate window in 27 MHz ticks.
func (c Config) RateInterval() int64 {
	return int64(c.RateIntervalMS) * tstime.Millisecond
}

// ParseLevel maps a level name to a slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: log.level %q: unknown level", name)
}
