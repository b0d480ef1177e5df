// Package source opens transport stream inputs by URL: local files and
// stdin, UDP/RTP unicast or multicast, SRT in caller or listener mode, and
// UDP payloads replayed from pcap captures.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Stats captures connection-level metrics for an input.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	Datagrams     int64  `json:"datagrams,omitempty"`
	RTPUnwrapped  int64  `json:"rtpUnwrapped,omitempty"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr,omitempty"`
}

// Stream is an open input. Reads are counted; Close releases the
// underlying file or socket.
type Stream struct {
	URL       string
	StartedAt time.Time

	rc   io.ReadCloser
	stop func() bool

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	datagrams     atomic.Int64
	rtpUnwrapped  atomic.Int64
	remoteAddr    atomic.Value
}

func newStream(rawURL string) *Stream {
	return &Stream{URL: rawURL, StartedAt: time.Now()}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if n > 0 {
		s.bytesReceived.Add(int64(n))
		s.readCount.Add(1)
	}
	return n, err
}

// Close implements io.Closer.
func (s *Stream) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return s.rc.Close()
}

// SetRemoteAddr stores the peer address for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the input metrics.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		Datagrams:     s.datagrams.Load(),
		RTPUnwrapped:  s.rtpUnwrapped.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Open opens the input named by rawURL. A bare path or file:// URL opens a
// file and "-" reads stdin. Network inputs are closed when ctx is done. If
// log is nil, slog.Default() is used.
func Open(ctx context.Context, rawURL string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "source")

	if rawURL == "-" {
		s := newStream(rawURL)
		s.rc = io.NopCloser(os.Stdin)
		return s, nil
	}
	if !strings.Contains(rawURL, "://") {
		return openFile(rawURL, rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	switch u.Scheme {
	case "file":
		return openFile(rawURL, u.Host+u.Path)
	case "udp", "rtp":
		return openUDP(ctx, u, log)
	case "srt":
		return openSRT(ctx, u, log)
	case "pcap":
		return openPcap(u, log)
	}
	return nil, fmt.Errorf("source: unsupported scheme %q", u.Scheme)
}

func openFile(rawURL, path string) (*Stream, error) {
	if path == "" {
		return nil, fmt.Errorf("source: %s: empty path", rawURL)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	s := newStream(rawURL)
	s.rc = f
	return s, nil
}

// datagramReader turns a message source into a byte stream. Each message
// is unwrapped from RTP when it carries an RTP header.
type datagramReader struct {
	ctx     context.Context
	stream  *Stream
	next    func() ([]byte, error)
	close   func() error
	pending []byte
}

func (d *datagramReader) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		msg, err := d.next()
		if err != nil {
			if d.ctx != nil && d.ctx.Err() != nil {
				return 0, d.ctx.Err()
			}
			return 0, err
		}
		d.stream.datagrams.Add(1)
		payload, wrapped := unwrapRTP(msg)
		if wrapped {
			d.stream.rtpUnwrapped.Add(1)
		}
		d.pending = payload
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *datagramReader) Close() error {
	return d.close()
}
