package protocol

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/udpFileCourier/pkg/codec"
	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// chanTransport is one end of an in-memory packet pipe.
type chanTransport struct {
	out chan<- *packet.Packet
	in  <-chan *packet.Packet
}

func (c *chanTransport) Send(p *packet.Packet) error {
	c.out <- p
	return nil
}

func (c *chanTransport) Receive(timeout time.Duration) (*packet.Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-c.in:
		return p, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

// pipeTransports returns two connected transports.
func pipeTransports() (Transport, Transport) {
	aToB := make(chan *packet.Packet, 64)
	bToA := make(chan *packet.Packet, 64)
	return &chanTransport{out: aToB, in: bToA}, &chanTransport{out: bToA, in: aToB}
}

// recordingTransport captures the payload size of every sent packet.
type recordingTransport struct {
	Transport
	payloadSizes []int
}

func (r *recordingTransport) Send(p *packet.Packet) error {
	r.payloadSizes = append(r.payloadSizes, len(p.Payload))
	return r.Transport.Send(p)
}

func fastConfig() *Config {
	return &Config{AckTimeout: 50 * time.Millisecond, MaxAttempts: 3, ChunkSize: packet.PayloadSize}
}

func newStreamEngine(tb testing.TB) *Engine {
	tb.Helper()
	engine, err := NewEngine(fastConfig(), codec.NewXORCipher())
	require.NoError(tb, err)
	return engine
}

func TestStreamRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		size int
	}{
		{"Empty", 0},
		{"Single byte", 1},
		{"One below chunk", 511},
		{"Exact chunk", 512},
		{"One above chunk", 513},
		{"Multiple of chunk size", 512 * 4},
		{"Several chunks with tail", 1500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newStreamEngine(t)
			data := make([]byte, tc.size)
			_, err := rand.Read(data)
			require.NoError(t, err)

			senderSide, receiverSide := pipeTransports()

			type sendResult struct {
				n   int64
				err error
			}
			done := make(chan sendResult, 1)
			go func() {
				n, err := engine.SendStream(senderSide, packet.OpWrite, "stream.bin", bytes.NewReader(data))
				done <- sendResult{n, err}
			}()

			var received bytes.Buffer
			n, err := engine.ReceiveStream(receiverSide, &received)
			require.NoError(t, err, "ReceiveStream failed")

			sent := <-done
			require.NoError(t, sent.err, "SendStream failed")

			assert.Equal(t, int64(tc.size), sent.n, "Sender byte count mismatch")
			assert.Equal(t, int64(tc.size), n, "Receiver byte count mismatch")
			assert.Equal(t, data, received.Bytes(), "Stream round trip must be byte-identical")
		})
	}
}

// A 1500-byte source with 512-byte chunks must cross the wire as exactly
// three chunks of 512, 512 and 476 bytes.
func TestSendStream_ChunkAccounting(t *testing.T) {
	engine := newStreamEngine(t)
	data := make([]byte, 1500)
	_, err := rand.Read(data)
	require.NoError(t, err)

	senderSide, receiverSide := pipeTransports()
	recorder := &recordingTransport{Transport: senderSide}

	done := make(chan error, 1)
	go func() {
		_, err := engine.SendStream(recorder, packet.OpWrite, "chunks.bin", bytes.NewReader(data))
		done <- err
	}()

	var received bytes.Buffer
	n, err := engine.ReceiveStream(receiverSide, &received)
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, int64(1500), n)
	assert.Equal(t, []int{512, 512, 476}, recorder.payloadSizes)
	assert.Equal(t, data, received.Bytes())
}

func TestSendStream_ExhaustionSurfacesAsPeerSilent(t *testing.T) {
	engine := newStreamEngine(t)
	senderSide, _ := pipeTransports() // nothing ever acknowledges

	_, err := engine.SendStream(senderSide, packet.OpWrite, "void.bin", bytes.NewReader([]byte("data")))
	require.ErrorIs(t, err, ErrPeerSilent)
}

func TestReceiveStream_DropsCorruptChunkAndStalls(t *testing.T) {
	engine := newStreamEngine(t)
	inbox := make(chan *packet.Packet, 4)
	acks := make(chan *packet.Packet, 4)
	receiver := &chanTransport{out: acks, in: inbox}

	corrupt, err := engine.EncodeChunk(packet.OpWrite, "bad.bin", []byte("good bytes gone bad"))
	require.NoError(t, err)
	corrupt.Payload[0] ^= 0xFF
	inbox <- corrupt

	var received bytes.Buffer
	start := time.Now()
	n, err := engine.ReceiveStream(receiver, &received)

	require.Error(t, err, "A dropped chunk is never re-requested, so the stream stalls out")
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.Zero(t, n, "Corrupt chunks must not be persisted")
	assert.Empty(t, acks, "Corrupt chunks must not be acknowledged")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReceiveStream_RecoversGoodChunkAfterCorruptOne(t *testing.T) {
	engine := newStreamEngine(t)
	inbox := make(chan *packet.Packet, 4)
	acks := make(chan *packet.Packet, 4)
	receiver := &chanTransport{out: acks, in: inbox}

	corrupt, err := engine.EncodeChunk(packet.OpWrite, "f.bin", []byte("tampered"))
	require.NoError(t, err)
	corrupt.Payload[0] ^= 0xFF
	inbox <- corrupt

	good, err := engine.EncodeChunk(packet.OpWrite, "f.bin", []byte("short final chunk"))
	require.NoError(t, err)
	inbox <- good

	var received bytes.Buffer
	n, err := engine.ReceiveStream(receiver, &received)
	require.NoError(t, err)

	assert.Equal(t, int64(len("short final chunk")), n)
	assert.Equal(t, "short final chunk", received.String())
	assert.Len(t, acks, 1, "Only the verified chunk is acknowledged")
}

func TestReceiveStream_RemoteError(t *testing.T) {
	engine := newStreamEngine(t)
	inbox := make(chan *packet.Packet, 1)
	receiver := &chanTransport{out: make(chan *packet.Packet, 1), in: inbox}

	errPkt, err := engine.NewStatus(packet.OpError, "Error: File not found.")
	require.NoError(t, err)
	inbox <- errPkt

	var received bytes.Buffer
	_, err = engine.ReceiveStream(receiver, &received)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "Error: File not found.", remoteErr.Message)
	assert.Zero(t, received.Len())
}
