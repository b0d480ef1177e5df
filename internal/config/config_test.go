package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zsiec/tsana/internal/mpegts"
	"github.com/zsiec/tsana/internal/tstime"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SessionFeatures() != mpegts.DefaultFeatures() {
		t.Errorf("features = %+v", cfg.SessionFeatures())
	}
	if cfg.RateInterval() != tstime.Second {
		t.Errorf("RateInterval = %d", cfg.RateInterval())
	}
}

func TestDecodeKeepsDefaults(t *testing.T) {
	t.Parallel()
	doc := `
packet_size: 192
features:
  pes: false
  align_pes: true
log:
  level: debug
`
	cfg, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.PacketSize != 192 {
		t.Errorf("PacketSize = %d", cfg.PacketSize)
	}
	if cfg.PoolOrder != 20 || cfg.MaxSyncErrors != 10 || cfg.RateIntervalMS != 1000 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	f := cfg.SessionFeatures()
	if f.PES || !f.AlignPES || !f.CC || !f.PSI {
		t.Errorf("features = %+v", f)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 25 {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestDecodeEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{"packet size", "packet_size: 190"},
		{"pool too small", "pool_order: 14"},
		{"pool too large", "pool_order: 31"},
		{"rate interval", "rate_interval_ms: 0"},
		{"sync errors", "max_sync_errors: -1"},
		{"log level", "log: {level: loud}"},
		{"unknown key", "packet_sise: 188"},
		{"bad yaml", "packet_size: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(strings.NewReader(tt.doc)); err == nil {
				t.Errorf("Decode(%q) succeeded", tt.doc)
			}
		})
	}
}

func TestDecodeMinimumPoolOrder(t *testing.T) {
	t.Parallel()
	cfg, err := Decode(strings.NewReader("pool_order: 15\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.PoolOrder != MinPoolOrder {
		t.Errorf("PoolOrder = %d, want %d", cfg.PoolOrder, MinPoolOrder)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tsana.yaml")
	if err := os.WriteFile(path, []byte("rate_interval_ms: 250\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateInterval() != 250*tstime.Millisecond {
		t.Errorf("RateInterval = %d", cfg.RateInterval())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", name, got, err)
		}
	}
}
