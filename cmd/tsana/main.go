// Command tsana analyzes an MPEG-2 transport stream from a file, stdin,
// UDP/RTP, SRT or a pcap capture, printing per-packet lines for the chosen
// mode and an ETSI TR 101 290 summary at the end.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zsiec/tsana/internal/buddy"
	"github.com/zsiec/tsana/internal/config"
	"github.com/zsiec/tsana/internal/esprobe"
	"github.com/zsiec/tsana/internal/mpegts"
	"github.com/zsiec/tsana/internal/report"
	"github.com/zsiec/tsana/internal/source"
)

var version = "dev"

var errSyncLost = errors.New("transport stream sync lost")

// errLimit stops the pipeline once the packet limit is reached.
var errLimit = errors.New("packet limit reached")

type options struct {
	input string
	mode  report.Mode
	pid   int // -1 prints every PID
	json  bool
	limit int64
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		input      = flag.String("i", "-", "input: path, -, udp://, rtp://, srt:// or pcap:// URL")
		configPath = flag.String("c", "", "YAML configuration file")
		size       = flag.Int("size", 0, "packet size 188, 192 or 204 (overrides config)")
		mode       = flag.String("mode", string(report.ModeErrors), "line output: pkt, pcr, pts, err, psi, rate, cue or none")
		pidFlag    = flag.String("pid", "", "only print lines for this PID (decimal or 0x hex)")
		jsonOut    = flag.Bool("json", false, "print the summary as JSON")
		limit      = flag.Int64("n", 0, "stop after this many packets (0 = no limit)")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()
	if *showVer {
		fmt.Println("tsana", version)
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}
	if *size != 0 {
		cfg.PacketSize = *size
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	opts := options{input: *input, json: *jsonOut, limit: *limit, pid: -1}
	var err error
	if opts.mode, err = report.ParseMode(*mode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *pidFlag != "" {
		pid, err := strconv.ParseUint(*pidFlag, 0, 13)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad -pid %q: %v\n", *pidFlag, err)
			return 2
		}
		opts.pid = int(pid)
	}

	log, closeLog, err := newLogger(cfg.Log, os.Getenv("DEBUG") != "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	log.Info("tsana starting", "version", version, "input", opts.input, "packet_size", cfg.PacketSize, "mode", opts.mode)
	if err := run(ctx, cfg, opts, os.Stdout, log); err != nil {
		log.Error("analysis failed", "error", err)
		return 1
	}
	return 0
}

// newLogger builds the text logger. A configured log file is rotated by
// lumberjack and written alongside stderr.
func newLogger(cfg config.Log, debug bool) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stderr
	closeLog := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closeLog = func() { rotator.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeLog, nil
}

// run reads opts.input to the end, writing lines and the summary to stdout.
// A canceled ctx ends the run early but still prints the summary.
func run(ctx context.Context, cfg config.Config, opts options, stdout io.Writer, log *slog.Logger) error {
	pool, err := buddy.New(config.BlockOrder, cfg.PoolOrder)
	if err != nil {
		return err
	}
	sess := mpegts.NewSession(pool,
		mpegts.SessionOptLogger(log),
		mpegts.SessionOptFeatures(cfg.SessionFeatures()),
		mpegts.SessionOptRateInterval(cfg.RateInterval()),
	)
	defer sess.Close()

	var probes *esprobe.Set
	if cfg.Probe && cfg.Features.PES {
		probes = esprobe.NewSet(log)
	}

	g, gctx := errgroup.WithContext(ctx)

	src, err := source.Open(gctx, opts.input, log)
	if err != nil {
		return err
	}
	defer src.Close()
	rd, err := mpegts.NewReader(gctx, src,
		mpegts.ReaderOptPacketSize(cfg.PacketSize),
		mpegts.ReaderOptResync(cfg.Resync),
	)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(stdout)
	recs := make(chan *mpegts.Record, 256)

	g.Go(func() error {
		defer close(recs)
		for {
			rec, err := rd.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case recs <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		return analyze(sess, probes, recs, cfg, opts, out, log)
	})

	err = g.Wait()
	if probes != nil {
		probes.Flush()
	}
	st := src.Stats()
	log.Info("input closed", "bytes", st.BytesReceived, "reads", st.ReadCount,
		"datagrams", st.Datagrams, "rtp", st.RTPUnwrapped, "skipped", rd.Skipped(),
		"uptime_ms", st.UptimeMs)

	switch {
	case err == nil, errors.Is(err, errLimit):
		err = nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		err = nil
	}

	if opts.json {
		if jerr := report.JSON(out, sess, probes); jerr != nil && err == nil {
			err = jerr
		}
	} else {
		fmt.Fprintln(out)
		if serr := report.Summary(out, sess, probes); serr != nil && err == nil {
			err = serr
		}
	}
	if ferr := out.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// analyze feeds records to the session, and ES bytes to probes when set,
// until recs closes.
func analyze(sess *mpegts.Session, probes *esprobe.Set, recs <-chan *mpegts.Record, cfg config.Config, opts options, out io.Writer, log *slog.Logger) error {
	var n int64
	syncErrors := 0
	for rec := range recs {
		if err := sess.ParseHeader(rec); err != nil {
			return err
		}
		if err := sess.ParseBody(); err != nil {
			if !errors.Is(err, mpegts.ErrPoolExhausted) {
				return err
			}
			log.Warn("packet dropped", "error", err)
		}
		res := sess.Result()
		if probes != nil && (res.PES != nil || len(res.ESData) > 0) {
			if e, ok := sess.Elem(res.Header.PID); ok {
				probes.Feed(e.PID, e.StreamType, res.PES != nil, res.ESData)
			}
		}

		if opts.pid < 0 || int(res.Header.PID) == opts.pid || matchesSection(res, opts.pid) {
			if err := report.Line(out, res, opts.mode); err != nil {
				return err
			}
		}

		if res.Errors.SyncByteError {
			syncErrors++
			if cfg.MaxSyncErrors > 0 && syncErrors >= cfg.MaxSyncErrors {
				return fmt.Errorf("%w: %d consecutive sync byte errors at byte %d", errSyncLost, syncErrors, res.Addr)
			}
		} else {
			syncErrors = 0
		}

		n++
		if opts.limit > 0 && n >= opts.limit {
			return errLimit
		}
	}
	return nil
}

func matchesSection(res *mpegts.Result, pid int) bool {
	for _, ref := range res.Sections {
		if int(ref.PID) == pid {
			return true
		}
	}
	return false
}
