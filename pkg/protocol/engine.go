package protocol

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rescp17/udpFileCourier/pkg/codec"
	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// AckResult is the outcome of one bounded retry sequence.
type AckResult int

const (
	// Acknowledged means a packet arrived from the peer within the
	// retry budget.
	Acknowledged AckResult = iota
	// Exhausted means every attempt timed out. Whether to run another
	// round is the caller's decision, not the engine's.
	Exhausted
)

func (r AckResult) String() string {
	if r == Acknowledged {
		return "acknowledged"
	}
	return "exhausted"
}

var (
	// ErrPeerSilent reports that the peer never acknowledged within the
	// retry budget.
	ErrPeerSilent = errors.New("peer did not acknowledge within the retry budget")
	// ErrIntegrity reports a checksum mismatch on a received payload.
	ErrIntegrity = errors.New("payload checksum mismatch")
)

// RemoteError is a failure the peer reported in an ERROR packet.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}

// Engine drives the request/response state machine for one logical
// session: packet construction, the retry-with-timeout acknowledgment
// discipline, and per-chunk encrypt/checksum handling. It owns no socket;
// all I/O goes through the Transport it is handed.
type Engine struct {
	cfg    *Config
	cipher codec.Cipher
}

// NewEngine validates cfg and returns an engine using cipher for payload
// transforms.
func NewEngine(cfg *Config, cipher codec.Cipher) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol config: %w", err)
	}
	if cipher == nil {
		return nil, errors.New("cipher cannot be nil")
	}
	return &Engine{cfg: cfg, cipher: cipher}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// NewRequest builds a bare request packet with an empty payload.
func (e *Engine) NewRequest(op packet.Op, filename string) *packet.Packet {
	return &packet.Packet{Op: op, Filename: filename}
}

// NewAck builds an empty acknowledgment packet.
func (e *Engine) NewAck() *packet.Packet {
	return &packet.Packet{Op: packet.OpAck}
}

// NewStatus builds a packet whose payload carries a human-readable status
// message, encrypted and checksummed like any other chunk.
func (e *Engine) NewStatus(op packet.Op, message string) (*packet.Packet, error) {
	return e.EncodeChunk(op, "", []byte(message))
}

// EncodeChunk encrypts data and wraps it in a packet with the checksum
// computed over the ciphertext.
func (e *Engine) EncodeChunk(op packet.Op, filename string, data []byte) (*packet.Packet, error) {
	enc, err := e.cipher.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt chunk: %w", err)
	}
	return &packet.Packet{
		Op:       op,
		Filename: filename,
		Payload:  enc,
		Checksum: codec.Checksum(enc),
	}, nil
}

// DecodeChunk verifies p's checksum over the wire payload and returns the
// decrypted bytes. Verification happens on the outer representation,
// before decryption: it detects transmission corruption, not tampering.
func (e *Engine) DecodeChunk(p *packet.Packet) ([]byte, error) {
	if !codec.VerifyChecksum(p.Payload, p.Checksum) {
		return nil, ErrIntegrity
	}
	data, err := e.cipher.Decrypt(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt chunk: %w", err)
	}
	return data, nil
}

// DecodeMessage extracts the status text of p, returning an empty string
// if the payload cannot be decoded.
func (e *Engine) DecodeMessage(p *packet.Packet) string {
	data, err := e.DecodeChunk(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// SendWithAck transmits p and waits for any packet from the peer. If the
// timeout elapses the identical packet is retransmitted, up to MaxAttempts
// sends in total. The response packet is returned alongside Acknowledged;
// on Exhausted the caller decides whether to start another round.
func (e *Engine) SendWithAck(t Transport, p *packet.Packet) (AckResult, *packet.Packet, error) {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := t.Send(p); err != nil {
			return Exhausted, nil, err
		}
		resp, err := t.Receive(e.cfg.AckTimeout)
		if err == nil {
			return Acknowledged, resp, nil
		}
		if !errors.Is(err, ErrReceiveTimeout) {
			return Exhausted, nil, err
		}
		slog.Debug("no acknowledgment, retransmitting",
			"op", p.Op.String(),
			"filename", p.Filename,
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts)
	}
	return Exhausted, nil, nil
}
