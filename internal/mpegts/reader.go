package mpegts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// Packet sizes accepted by Reader.
const (
	PacketSizeTS   = 188
	PacketSizeM2TS = 192 // 4-byte arrival timestamp prefix
	PacketSizeRS   = 204 // 16-byte Reed-Solomon trailer
)

// Reader splits a byte stream into Records. It does not interpret packet
// contents beyond locating sync bytes.
type Reader struct {
	ctx     context.Context
	br      *bufio.Reader
	pktSize int
	resync  bool
	buf     []byte
	addr    int64
	lost    bool
	skipped int64
}

// NewReader creates a Reader over r.
func NewReader(ctx context.Context, r io.Reader, opts ...func(*Reader)) (*Reader, error) {
	rd := &Reader{
		ctx:     ctx,
		pktSize: PacketSizeTS,
		resync:  true,
	}
	for _, opt := range opts {
		opt(rd)
	}
	switch rd.pktSize {
	case PacketSizeTS, PacketSizeM2TS, PacketSizeRS:
	default:
		return nil, fmt.Errorf("mpegts: unsupported packet size %d", rd.pktSize)
	}
	rd.br = bufio.NewReaderSize(r, 64*rd.pktSize)
	rd.buf = make([]byte, rd.pktSize)
	return rd, nil
}

// ReaderOptPacketSize sets the packet size: 188, 192 or 204.
func ReaderOptPacketSize(size int) func(*Reader) {
	return func(rd *Reader) {
		rd.pktSize = size
	}
}

// ReaderOptResync enables scanning for sync after a bad sync byte
// (default on).
func ReaderOptResync(on bool) func(*Reader) {
	return func(rd *Reader) {
		rd.resync = on
	}
}

// PacketSize returns the configured packet size.
func (rd *Reader) PacketSize() int {
	return rd.pktSize
}

// Skipped returns the number of bytes dropped while resynchronizing.
func (rd *Reader) Skipped() int64 {
	return rd.skipped
}

// syncOffset is the position of the sync byte within a packet.
func (rd *Reader) syncOffset() int {
	if rd.pktSize == PacketSizeM2TS {
		return 4
	}
	return 0
}

// Next returns the next record. A packet with a bad sync byte is still
// returned so the session can count it; the following call resyncs first.
// It returns io.EOF when the stream ends.
func (rd *Reader) Next() (*Record, error) {
	if err := rd.ctx.Err(); err != nil {
		return nil, err
	}
	if rd.lost && rd.resync {
		if err := rd.seekSync(); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(rd.br, rd.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	rec := &Record{}
	addr := rd.addr
	rec.Addr = &addr
	rd.addr += int64(rd.pktSize)

	off := rd.syncOffset()
	copy(rec.TS[:], rd.buf[off:off+PacketSize])
	switch rd.pktSize {
	case PacketSizeM2TS:
		mts := int64(uint32(rd.buf[0])<<24|uint32(rd.buf[1])<<16|uint32(rd.buf[2])<<8|uint32(rd.buf[3])) & (1<<30 - 1)
		rec.MTS = &mts
	case PacketSizeRS:
		rec.RS = make([]byte, rsSize)
		copy(rec.RS, rd.buf[PacketSize:])
	}
	rd.lost = rec.TS[0] != syncByte
	return rec, nil
}

// seekSync drops bytes until a sync byte is followed by another one a
// packet later.
func (rd *Reader) seekSync() error {
	off := rd.syncOffset()
	for {
		if err := rd.ctx.Err(); err != nil {
			return err
		}
		n := off + rd.pktSize + 1
		peek, err := rd.br.Peek(n)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if len(peek) <= off {
			return io.EOF
		}
		if peek[off] == syncByte {
			// A lone trailing packet is accepted without a following sync.
			if len(peek) == n && peek[n-1] == syncByte || err != nil && len(peek) >= off+rd.pktSize {
				rd.lost = false
				return nil
			}
		}
		if _, err := rd.br.Discard(1); err != nil {
			return err
		}
		rd.addr++
		rd.skipped++
	}
}
