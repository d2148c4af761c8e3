package protocol

import (
	"errors"
	"time"

	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// Config holds the tunables of the acknowledgment discipline.
type Config struct {
	// AckTimeout is how long one attempt waits for any packet from the peer.
	AckTimeout time.Duration
	// MaxAttempts is the number of sends before a transfer is reported
	// as exhausted.
	MaxAttempts int
	// ChunkSize is the number of file bytes carried per data packet.
	ChunkSize int
}

const (
	DefaultAckTimeout  = 1000 * time.Millisecond
	DefaultMaxAttempts = 3
)

// DefaultConfig returns the protocol defaults: 1s ack timeout, 3 attempts,
// full-payload chunks.
func DefaultConfig() *Config {
	return &Config{
		AckTimeout:  DefaultAckTimeout,
		MaxAttempts: DefaultMaxAttempts,
		ChunkSize:   packet.PayloadSize,
	}
}

// Validate checks if the configuration values are usable.
func (c *Config) Validate() error {
	if c.AckTimeout <= 0 {
		return errors.New("ack_timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.ChunkSize > packet.PayloadSize {
		return errors.New("chunk_size cannot exceed the wire payload field")
	}
	return nil
}

// streamTimeout is how long a stream receiver waits for the next chunk:
// the sender's full retry budget plus one slack interval.
func (c *Config) streamTimeout() time.Duration {
	return c.AckTimeout * time.Duration(c.MaxAttempts+1)
}
