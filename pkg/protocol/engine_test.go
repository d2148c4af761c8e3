package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/udpFileCourier/pkg/codec"
	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// fakeTransport records sends and replays a scripted sequence of
// responses; a nil entry simulates an ack timeout. Timeouts return
// immediately so retry tests stay fast.
type fakeTransport struct {
	sends     []*packet.Packet
	responses []*packet.Packet
	recvCalls int
}

func (f *fakeTransport) Send(p *packet.Packet) error {
	f.sends = append(f.sends, p)
	return nil
}

func (f *fakeTransport) Receive(timeout time.Duration) (*packet.Packet, error) {
	defer func() { f.recvCalls++ }()
	if f.recvCalls >= len(f.responses) || f.responses[f.recvCalls] == nil {
		return nil, ErrReceiveTimeout
	}
	return f.responses[f.recvCalls], nil
}

func newTestEngine(tb testing.TB) *Engine {
	tb.Helper()
	engine, err := NewEngine(DefaultConfig(), codec.NewXORCipher())
	require.NoError(tb, err, "Failed to build engine")
	return engine
}

func TestNewEngine_Validation(t *testing.T) {
	t.Run("Nil cipher", func(t *testing.T) {
		_, err := NewEngine(DefaultConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("Invalid config", func(t *testing.T) {
		_, err := NewEngine(&Config{}, codec.NewXORCipher())
		assert.Error(t, err)
	})

	t.Run("Nil config uses defaults", func(t *testing.T) {
		engine, err := NewEngine(nil, codec.NewXORCipher())
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxAttempts, engine.Config().MaxAttempts)
	})
}

func TestSendWithAck_AcknowledgedFirstAttempt(t *testing.T) {
	engine := newTestEngine(t)
	ack := &packet.Packet{Op: packet.OpAck}
	transport := &fakeTransport{responses: []*packet.Packet{ack}}

	result, resp, err := engine.SendWithAck(transport, engine.NewRequest(packet.OpRead, "a.txt"))
	require.NoError(t, err)

	assert.Equal(t, Acknowledged, result)
	assert.Same(t, ack, resp)
	assert.Len(t, transport.sends, 1)
}

func TestSendWithAck_RecoversAfterTimeout(t *testing.T) {
	engine := newTestEngine(t)
	ack := &packet.Packet{Op: packet.OpAck}
	transport := &fakeTransport{responses: []*packet.Packet{nil, ack}}

	result, resp, err := engine.SendWithAck(transport, engine.NewRequest(packet.OpDelete, "b.txt"))
	require.NoError(t, err)

	assert.Equal(t, Acknowledged, result)
	assert.Same(t, ack, resp)
	assert.Len(t, transport.sends, 2, "The request must be retransmitted once")
}

func TestSendWithAck_RetryBound(t *testing.T) {
	engine := newTestEngine(t)
	transport := &fakeTransport{} // never acknowledges

	req := engine.NewRequest(packet.OpWrite, "c.txt")
	start := time.Now()
	result, resp, err := engine.SendWithAck(transport, req)
	elapsed := time.Since(start)

	require.NoError(t, err, "Exhaustion is a result, not an error")
	assert.Equal(t, Exhausted, result)
	assert.Nil(t, resp)
	assert.Len(t, transport.sends, DefaultMaxAttempts, "Exactly MaxAttempts sends, then give up")
	assert.Less(t, elapsed, time.Second, "Exhaustion must not hang")

	for _, sent := range transport.sends {
		assert.Same(t, req, sent, "Every retransmission carries the identical packet")
	}
}

func TestEncodeDecodeChunk(t *testing.T) {
	engine := newTestEngine(t)
	data := []byte("chunk payload for integrity checks")

	p, err := engine.EncodeChunk(packet.OpWrite, "d.bin", data)
	require.NoError(t, err)

	assert.NotEqual(t, data, p.Payload, "Wire payload must be ciphertext")
	assert.Equal(t, codec.Checksum(p.Payload), p.Checksum, "Checksum is computed over the ciphertext")

	decoded, err := engine.DecodeChunk(p)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeChunk_IntegrityMismatch(t *testing.T) {
	engine := newTestEngine(t)

	p, err := engine.EncodeChunk(packet.OpWrite, "e.bin", []byte("soon to be corrupted"))
	require.NoError(t, err)

	p.Payload[3] ^= 0xFF

	_, err = engine.DecodeChunk(p)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestStatusMessages(t *testing.T) {
	engine := newTestEngine(t)

	p, err := engine.NewStatus(packet.OpError, "Error: File not found.")
	require.NoError(t, err)

	assert.Equal(t, packet.OpError, p.Op)
	assert.Equal(t, "Error: File not found.", engine.DecodeMessage(p))

	t.Run("Corrupted status decodes to empty string", func(t *testing.T) {
		p.Payload[0] ^= 0x01
		assert.Empty(t, engine.DecodeMessage(p))
	})
}
