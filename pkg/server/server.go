package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rescp17/udpFileCourier/pkg/concurrency"
	"github.com/rescp17/udpFileCourier/pkg/packet"
	"github.com/rescp17/udpFileCourier/pkg/protocol"
	"github.com/rescp17/udpFileCourier/pkg/storage"
)

// DefaultPort is the well-known courier port.
const DefaultPort = 12345

// sessionInboxSize bounds how many routed packets a session can have
// pending before the dispatch loop starts dropping them.
const sessionInboxSize = 32

// Server receives request packets on a single UDP socket and hands each
// new request to its own goroutine. Sessions are keyed by peer address
// only; the wire format carries no session id, so two simultaneous
// sessions from one address collide. That limitation is inherited from
// the protocol, not arbitrated here.
type Server struct {
	engine  *protocol.Engine
	store   *storage.Store
	limiter *concurrency.Limiter

	conn *net.UDPConn

	mu       sync.Mutex
	sessions map[string]chan *packet.Packet
	wg       sync.WaitGroup
}

// New returns a Server using engine for the responder side of each
// session and store for file persistence. maxConcurrent bounds the number
// of request handlers running at once.
func New(engine *protocol.Engine, store *storage.Store, maxConcurrent int) *Server {
	return &Server{
		engine:   engine,
		store:    store,
		limiter:  concurrency.NewLimiter(maxConcurrent),
		sessions: make(map[string]chan *packet.Packet),
	}
}

// Listen binds the server socket. A bind failure is fatal to startup and
// is returned to the caller rather than logged away.
func (s *Server) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind %q: %w", addr, err)
	}
	s.conn = conn
	return nil
}

// Addr returns the bound socket address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve runs the dispatch loop until ctx is cancelled: receive one
// datagram, classify it, route it to an existing session or spawn a new
// handler for it. Per-request failures never stop this loop.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("server is not listening")
	}
	slog.Info("server listening", "addr", s.conn.LocalAddr().String(), "storage", s.store.Root())

	go func() {
		<-ctx.Done()
		if err := s.conn.Close(); err != nil {
			slog.Warn("failed to close server socket", "error", err)
		}
	}()

	buf := make([]byte, packet.PacketSize)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		var p packet.Packet
		if err := p.UnmarshalBinary(buf[:n]); err != nil {
			slog.Warn("dropping malformed datagram", "peer", peer.String(), "size", n, "error", err)
			continue
		}
		s.dispatch(&p, peer)
	}
}

// dispatch routes p: packets from a peer with an active session go to
// that session's inbox, request packets open a new session, anything else
// is a stray or an unknown operation.
func (s *Server) dispatch(p *packet.Packet, peer *net.UDPAddr) {
	key := peer.String()

	s.mu.Lock()
	if inbox, active := s.sessions[key]; active {
		s.mu.Unlock()
		select {
		case inbox <- p:
		default:
			slog.Warn("session inbox full, dropping packet", "peer", key, "op", p.Op.String())
		}
		return
	}

	if !p.Op.IsRequest() {
		s.mu.Unlock()
		s.rejectStray(p, peer)
		return
	}

	inbox := make(chan *packet.Packet, sessionInboxSize)
	s.sessions[key] = inbox
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.closeSession(key)
		s.limiter.Acquire()
		defer s.limiter.Release()
		s.handle(p, peer, inbox)
	}()
}

// rejectStray handles packets that belong to no session. Unknown
// operation codes get an error reply; late acks and error reports from
// finished sessions are only logged.
func (s *Server) rejectStray(p *packet.Packet, peer *net.UDPAddr) {
	switch p.Op {
	case packet.OpAck, packet.OpError:
		slog.Debug("dropping stray packet without session", "peer", peer.String(), "op", p.Op.String())
	default:
		slog.Error("unknown operation", "peer", peer.String(), "op", uint32(p.Op))
		sess := &session{conn: s.conn, peer: peer}
		if err := s.sendError(sess, "Error: Unknown operation."); err != nil {
			slog.Warn("failed to reject unknown operation", "peer", peer.String(), "error", err)
		}
	}
}

func (s *Server) closeSession(key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

func (s *Server) sendError(t protocol.Transport, message string) error {
	p, err := s.engine.NewStatus(packet.OpError, message)
	if err != nil {
		return err
	}
	return t.Send(p)
}

// session adapts one peer's packet flow to protocol.Transport: sends go
// out the shared socket (safe for concurrent use), receives come from the
// inbox the dispatch loop fills for this address.
type session struct {
	conn  *net.UDPConn
	peer  *net.UDPAddr
	inbox <-chan *packet.Packet
}

func (t *session) Send(p *packet.Packet) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteToUDP(b, t.peer); err != nil {
		return fmt.Errorf("send to %s failed: %w", t.peer.String(), err)
	}
	return nil
}

func (t *session) Receive(timeout time.Duration) (*packet.Packet, error) {
	if t.inbox == nil {
		return nil, protocol.ErrReceiveTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p, ok := <-t.inbox:
		if !ok {
			return nil, protocol.ErrReceiveTimeout
		}
		return p, nil
	case <-timer.C:
		return nil, protocol.ErrReceiveTimeout
	}
}
