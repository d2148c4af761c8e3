package server

import (
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// handle runs the responder side of exactly one session. Failures are
// contained here: they reach the peer as an ERROR packet and the operator
// as a log line, never the dispatch loop.
func (s *Server) handle(req *packet.Packet, peer *net.UDPAddr, inbox <-chan *packet.Packet) {
	log := slog.With(
		"request_id", uuid.New().String(),
		"peer", peer.String(),
		"op", req.Op.String(),
		"filename", req.Filename)

	sess := &session{conn: s.conn, peer: peer, inbox: inbox}

	switch req.Op {
	case packet.OpRead:
		s.handleRead(sess, req, log)
	case packet.OpWrite:
		s.handleWrite(sess, req, log)
	case packet.OpDelete:
		s.handleDelete(sess, req, log)
	}
}

func (s *Server) handleRead(sess *session, req *packet.Packet, log *slog.Logger) {
	f, err := s.store.Open(req.Filename)
	if err != nil {
		log.Error("file not found", "error", err)
		if err := s.sendError(sess, "Error: File not found."); err != nil {
			log.Warn("failed to report missing file", "error", err)
		}
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn("failed to close served file", "error", err)
		}
	}()

	// Accept the request before streaming so the client stops
	// retransmitting it.
	if err := sess.Send(s.engine.NewAck()); err != nil {
		log.Error("failed to accept read request", "error", err)
		return
	}

	n, err := s.engine.SendStream(sess, packet.OpAck, req.Filename, f)
	if err != nil {
		log.Error("download failed", "bytes_sent", n, "error", err)
		return
	}
	log.Info("file sent", "bytes", n)
}

func (s *Server) handleWrite(sess *session, req *packet.Packet, log *slog.Logger) {
	f, err := s.store.Create(req.Filename)
	if err != nil {
		log.Error("could not create file", "error", err)
		if err := s.sendError(sess, "Error: Could not create file."); err != nil {
			log.Warn("failed to report create failure", "error", err)
		}
		return
	}

	if err := sess.Send(s.engine.NewAck()); err != nil {
		log.Error("failed to accept write request", "error", err)
		f.Close()
		return
	}

	n, err := s.engine.ReceiveStream(sess, f)
	closeErr := f.Close()
	if err != nil {
		// No rollback: whatever bytes were persisted stay on disk.
		log.Error("upload failed", "bytes_received", n, "error", err)
		return
	}
	if closeErr != nil {
		log.Error("failed to close uploaded file", "error", closeErr)
		return
	}

	backup, err := s.store.Archive(req.Filename)
	if err != nil {
		// The upload itself succeeded; a failed relocation is an
		// operator problem, not a peer-visible one.
		log.Error("backup relocation failed", "error", err)
	} else {
		log.Info("file stored", "bytes", n, "backup", backup)
	}
}

func (s *Server) handleDelete(sess *session, req *packet.Packet, log *slog.Logger) {
	if err := s.store.Remove(req.Filename); err != nil {
		log.Error("failed to delete file", "error", err)
		if err := s.sendError(sess, "Error: Failed to delete file."); err != nil {
			log.Warn("failed to report delete failure", "error", err)
		}
		return
	}

	status, err := s.engine.NewStatus(packet.OpAck, "Success: File deleted.")
	if err != nil {
		log.Error("failed to build delete status", "error", err)
		return
	}
	if err := sess.Send(status); err != nil {
		log.Warn("failed to send delete status", "error", err)
		return
	}
	log.Info("file deleted")
}
