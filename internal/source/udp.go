package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"golang.org/x/net/ipv4"
)

const (
	maxDatagram   = 65536
	udpReadBuffer = 4 << 20
)

// openUDP listens on udp://host:port. A multicast host is joined on the
// interface named by ?iface=; ?source= makes it a source-specific join.
func openUDP(ctx context.Context, u *url.URL, log *slog.Logger) (*Stream, error) {
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("source: udp %s: %w", u.Host, err)
	}
	q := u.Query()
	var ifi *net.Interface
	if name := q.Get("iface"); name != "" {
		if ifi, err = net.InterfaceByName(name); err != nil {
			return nil, fmt.Errorf("source: udp iface %q: %w", name, err)
		}
	}

	var conn *net.UDPConn
	switch {
	case addr.IP.IsMulticast() && q.Get("source") != "":
		conn, err = joinSourceSpecific(addr, ifi, q.Get("source"))
	case addr.IP.IsMulticast():
		conn, err = net.ListenMulticastUDP("udp", ifi, addr)
	default:
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("source: udp listen %s: %w", addr, err)
	}
	if err := conn.SetReadBuffer(udpReadBuffer); err != nil {
		log.Debug("set read buffer", "error", err)
	}
	log.Info("listening", "addr", addr, "multicast", addr.IP.IsMulticast())

	s := newStream(u.String())
	buf := make([]byte, maxDatagram)
	s.rc = &datagramReader{
		ctx:    ctx,
		stream: s,
		next: func() ([]byte, error) {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return nil, err
			}
			if s.remoteAddr.Load() == nil {
				s.SetRemoteAddr(from.String())
			}
			return buf[:n], nil
		},
		close: conn.Close,
	}
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return s, nil
}

func joinSourceSpecific(group *net.UDPAddr, ifi *net.Interface, source string) (*net.UDPConn, error) {
	src := net.ParseIP(source)
	if src == nil {
		return nil, fmt.Errorf("bad source address %q", source)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: group.Port})
	if err != nil {
		return nil, err
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinSourceSpecificGroup(ifi, &net.UDPAddr{IP: group.IP}, &net.UDPAddr{IP: src}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join %s from %s: %w", group.IP, src, err)
	}
	return conn, nil
}
