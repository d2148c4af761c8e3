package protocol

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// ErrReceiveTimeout is returned by Transport.Receive when no packet
// arrives within the given window.
var ErrReceiveTimeout = errors.New("timed out waiting for packet")

// Transport moves single packets between the engine and one peer. The
// client binds it to a dialed UDP socket; the server binds it to a
// per-session inbox fed by the dispatch loop plus the shared socket.
type Transport interface {
	Send(p *packet.Packet) error
	Receive(timeout time.Duration) (*packet.Packet, error)
}

// UDPTransport is the client-side Transport over a connected UDP socket.
type UDPTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// DialUDP connects a transport to the server at addr (host:port).
func DialUDP(addr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server address %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", addr, err)
	}
	return &UDPTransport{conn: conn, buf: make([]byte, packet.PacketSize)}, nil
}

func (t *UDPTransport) Send(p *packet.Packet) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := t.conn.Write(b); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func (t *UDPTransport) Receive(timeout time.Duration) (*packet.Packet, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := t.conn.Read(t.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrReceiveTimeout
		}
		return nil, fmt.Errorf("receive failed: %w", err)
	}
	var p packet.Packet
	if err := p.UnmarshalBinary(t.buf[:n]); err != nil {
		return nil, fmt.Errorf("malformed datagram: %w", err)
	}
	return &p, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
