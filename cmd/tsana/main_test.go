package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zsiec/tsana/internal/config"
	"github.com/zsiec/tsana/internal/report"
)

var discard = slog.New(slog.DiscardHandler)

func crc32MPEG(b []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, v := range b {
		crc ^= uint32(v) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func section(tid uint8, ext uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := []byte{tid, 0xB0 | byte(length>>8), byte(length), byte(ext >> 8), byte(ext), 0xC1, 0, 0}
	s = append(s, body...)
	crc := crc32MPEG(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func packet(pid uint16, pusi bool, cc uint8, payload []byte) []byte {
	p := bytes.Repeat([]byte{0xFF}, 188)
	p[0] = 0x47
	p[1] = byte(pid >> 8)
	if pusi {
		p[1] |= 0x40
	}
	p[2] = byte(pid)
	p[3] = 0x10 | cc&0x0F
	copy(p[4:], payload)
	return p
}

// writeStream writes a single-program stream: PAT and PMT every 10
// packets and null packets in between.
func writeStream(t *testing.T, packets int) string {
	t.Helper()
	pat := append([]byte{0}, section(0x00, 0x0007, []byte{0x00, 0x01, 0xF0, 0x00})...)
	pmt := append([]byte{0}, section(0x02, 0x0001, []byte{
		0xE1, 0x00, 0xF0, 0x00,
		0x1B, 0xE1, 0x00, 0xF0, 0x00,
	})...)
	var buf bytes.Buffer
	var cc uint8
	for i := range packets {
		switch i % 10 {
		case 0:
			buf.Write(packet(0x0000, true, cc, pat))
		case 1:
			buf.Write(packet(0x1000, true, cc, pmt))
			cc++
		default:
			buf.Write(packet(0x1FFF, false, 0, nil))
		}
	}
	path := filepath.Join(t.TempDir(), "in.ts")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSummary(t *testing.T) {
	t.Parallel()
	path := writeStream(t, 100)
	var out bytes.Buffer
	opts := options{input: path, mode: report.ModePSI, pid: -1}
	if err := run(context.Background(), config.Default(), opts, &out, discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.String()
	if n := strings.Count(s, "table=0x00"); n != 10 {
		t.Errorf("%d PAT lines, want 10", n)
	}
	if n := strings.Count(s, "table=0x02"); n != 10 {
		t.Errorf("%d PMT lines, want 10", n)
	}
	for _, want := range []string{"TRANSPORT STREAM", "0x0007", "state steady", "H.264"} {
		if !strings.Contains(s, want) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestRunMinimumPoolOrder(t *testing.T) {
	t.Parallel()
	path := writeStream(t, 40)
	cfg := config.Default()
	cfg.PoolOrder = config.MinPoolOrder
	var out, logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := options{input: path, mode: report.ModePSI, pid: -1}
	if err := run(context.Background(), cfg, opts, &out, log); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "state steady") {
		t.Errorf("program not acquired with pool_order %d:\n%s", cfg.PoolOrder, out.String())
	}
	if strings.Contains(logs.String(), "pool exhausted") {
		t.Errorf("pool exhausted at the minimum order:\n%s", logs.String())
	}
}

func TestRunJSONWithLimit(t *testing.T) {
	t.Parallel()
	path := writeStream(t, 100)
	var out bytes.Buffer
	opts := options{input: path, mode: report.ModeNone, pid: -1, json: true, limit: 25}
	if err := run(context.Background(), config.Default(), opts, &out, discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, out.String())
	}
	if r.Packets != 25 {
		t.Errorf("packets = %d, want 25", r.Packets)
	}
	if len(r.Programs) != 1 || r.Programs[0].PMTPID != 0x1000 {
		t.Errorf("programs = %+v", r.Programs)
	}
}

func TestRunPIDFilter(t *testing.T) {
	t.Parallel()
	path := writeStream(t, 30)
	var out bytes.Buffer
	opts := options{input: path, mode: report.ModePacket, pid: 0x1000}
	if err := run(context.Background(), config.Default(), opts, &out, discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Count(out.String(), "pusi=")
	if lines != 3 {
		t.Errorf("%d packet lines, want 3", lines)
	}
}

func TestRunSyncLoss(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "garbage.ts")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x00}, 188*20), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Resync = false
	var out bytes.Buffer
	err := run(context.Background(), cfg, options{input: path, mode: report.ModeNone, pid: -1}, &out, discard)
	if !errors.Is(err, errSyncLost) {
		t.Fatalf("err = %v, want sync lost", err)
	}
	if !strings.Contains(out.String(), "Sync_byte_error") {
		t.Error("summary not printed after sync loss")
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	path := writeStream(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := run(ctx, config.Default(), options{input: path, mode: report.ModeNone, pid: -1}, &out, discard); err != nil {
		t.Fatalf("run after cancel: %v", err)
	}
	if !strings.Contains(out.String(), "TRANSPORT STREAM") {
		t.Error("summary not printed after cancel")
	}
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()
	opts := options{input: filepath.Join(t.TempDir(), "missing.ts"), mode: report.ModeNone, pid: -1}
	if err := run(context.Background(), config.Default(), opts, &bytes.Buffer{}, discard); err == nil {
		t.Error("run succeeded on a missing input")
	}
}

func TestNewLoggerFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tsana.log")
	cfg := config.Default().Log
	cfg.File = path
	log, closeLog, err := newLogger(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello", "k", 1)
	closeLog()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "msg=hello") {
		t.Errorf("log file = %q", b)
	}
	if _, _, err := newLogger(config.Log{Level: "chatty"}, false); err == nil {
		t.Error("newLogger accepted an unknown level")
	}
}

func TestRunProbe(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00}
	pes = append(pes, 0x00, 0x00, 0x00, 0x01)
	pes = append(pes, sps...)
	pes = append(pes, 0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84)

	pat := append([]byte{0}, section(0x00, 0x0007, []byte{0x00, 0x01, 0xF0, 0x00})...)
	pmt := append([]byte{0}, section(0x02, 0x0001, []byte{
		0xE1, 0x00, 0xF0, 0x00,
		0x1B, 0xE1, 0x00, 0xF0, 0x00,
	})...)
	var buf bytes.Buffer
	buf.Write(packet(0x0000, true, 0, pat))
	buf.Write(packet(0x1000, true, 0, pmt))
	buf.Write(packet(0x0100, true, 0, pes))
	buf.Write(packet(0x0100, true, 1, pes))
	path := filepath.Join(t.TempDir(), "video.ts")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	opts := options{input: path, mode: report.ModeNone, pid: -1, json: true}
	if err := run(context.Background(), config.Default(), opts, &out, discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, out.String())
	}
	if len(r.Programs) != 1 || len(r.Programs[0].Elems) != 1 {
		t.Fatalf("programs = %+v", r.Programs)
	}
	e := r.Programs[0].Elems[0]
	if e.Params == nil || e.Params.Width != 1280 || e.Params.Height != 720 {
		t.Errorf("params = %+v", e.Params)
	}
	if e.Probe == nil || e.Probe.Units != 2 || e.Probe.Keyframes != 2 {
		t.Errorf("probe = %+v", e.Probe)
	}

	cfg := config.Default()
	cfg.Probe = false
	out.Reset()
	if err := run(context.Background(), cfg, opts, &out, discard); err != nil {
		t.Fatalf("run without probe: %v", err)
	}
	if strings.Contains(out.String(), `"params"`) {
		t.Error("parameters reported with probing disabled")
	}
}
