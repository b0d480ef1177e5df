package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// srtReadBufferSize holds ten standard 1316-byte SRT payloads.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

const srtDialTimeout = 10 * time.Second

// openSRT dials srt://host:port as a caller, or with ?mode=listener waits
// on the address for the first publisher. ?streamid= is sent by the caller
// and required of publishers by the listener.
func openSRT(ctx context.Context, u *url.URL, log *slog.Logger) (*Stream, error) {
	q := u.Query()
	streamID := q.Get("streamid")
	var (
		conn *srtgo.Conn
		err  error
	)
	switch mode := q.Get("mode"); mode {
	case "", "caller":
		conn, err = dialSRT(ctx, u.Host, streamID, log.With("mode", "caller"))
	case "listener":
		conn, err = acceptSRT(ctx, u.Host, streamID, log.With("mode", "listener"))
	default:
		return nil, fmt.Errorf("source: srt mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	s := newStream(u.String())
	s.SetRemoteAddr(conn.RemoteAddr().String())
	buf := make([]byte, srtReadBufferSize)
	s.rc = &datagramReader{
		ctx:    ctx,
		stream: s,
		next: func() ([]byte, error) {
			n, err := conn.Read(buf)
			if err != nil {
				return nil, err
			}
			return buf[:n], nil
		},
		close: conn.Close,
	}
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return s, nil
}

// dialSRT dials the remote listener, giving up after srtDialTimeout.
func dialSRT(ctx context.Context, addr, streamID string, log *slog.Logger) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = streamID

	log.Info("dialing", "address", addr, "stream_id", streamID)

	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(srtDialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("source: SRT dial failed: %w", res.err)
		}
		log.Info("connected", "address", addr)
		return res.conn, nil
	case <-timer.C:
		go drainDial(ch)
		return nil, fmt.Errorf("source: SRT dial timed out after %s", srtDialTimeout)
	case <-ctx.Done():
		go drainDial(ch)
		return nil, ctx.Err()
	}
}

type dialResult struct {
	conn *srtgo.Conn
	err  error
}

// drainDial closes a connection that completes after its dial was
// abandoned.
func drainDial(ch <-chan dialResult) {
	if res := <-ch; res.conn != nil {
		res.conn.Close()
	}
}

// acceptSRT listens on addr and returns the first accepted publisher. The
// listener is closed once a connection is accepted or ctx is done.
func acceptSRT(ctx context.Context, addr, streamID string, log *slog.Logger) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("source: SRT listen on %s: %w", addr, err)
	}
	defer l.Close()
	log.Info("listening", "addr", addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if streamID != "" && req.StreamID != streamID {
			return srtgo.RejPeer
		}
		return 0
	})

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("accept error", "error", err)
			continue
		}
		log.Info("publish", "stream_id", conn.StreamID(), "remote", conn.RemoteAddr())
		return conn, nil
	}
}
