package protocol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rescp17/udpFileCourier/pkg/packet"
)

// SendStream reads r in ChunkSize pieces and sends each as an
// individually acknowledged data packet. A short final chunk marks the
// end of the stream; when the source length is an exact multiple of
// ChunkSize (including zero) a trailing empty chunk is sent so the
// receiver still observes a short read. Returns the number of file bytes
// transmitted.
func (e *Engine) SendStream(t Transport, op packet.Op, filename string, r io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, e.cfg.ChunkSize)
	for {
		n, rerr := io.ReadFull(r, buf)
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return total, fmt.Errorf("failed to read chunk: %w", rerr)
		}

		p, err := e.EncodeChunk(op, filename, buf[:n])
		if err != nil {
			return total, err
		}
		result, _, err := e.SendWithAck(t, p)
		if err != nil {
			return total, fmt.Errorf("failed to send chunk: %w", err)
		}
		if result == Exhausted {
			return total, ErrPeerSilent
		}
		total += int64(n)

		if n < e.cfg.ChunkSize {
			return total, nil
		}
	}
}

// ReceiveStream consumes data packets from t until a short chunk arrives,
// writing each verified chunk to w and acknowledging it. A chunk that
// fails checksum verification is dropped without an acknowledgment and
// the transfer stalls; the protocol has no way to re-request a specific
// chunk. Returns the number of file bytes written to w.
func (e *Engine) ReceiveStream(t Transport, w io.Writer) (int64, error) {
	var total int64
	for {
		p, err := t.Receive(e.cfg.streamTimeout())
		if err != nil {
			return total, fmt.Errorf("stream stalled: %w", err)
		}
		if p.Op == packet.OpError {
			return total, &RemoteError{Message: e.DecodeMessage(p)}
		}

		data, err := e.DecodeChunk(p)
		if err != nil {
			if errors.Is(err, ErrIntegrity) {
				slog.Warn("dropping chunk with checksum mismatch",
					"op", p.Op.String(),
					"filename", p.Filename,
					"declared_checksum", p.Checksum)
				continue
			}
			return total, err
		}

		// The chunk is durable only once written; ack after the write
		// so a failed write is never acknowledged.
		if len(data) > 0 {
			n, werr := w.Write(data)
			total += int64(n)
			if werr != nil {
				return total, fmt.Errorf("failed to persist chunk: %w", werr)
			}
		}
		if err := t.Send(e.NewAck()); err != nil {
			return total, fmt.Errorf("failed to acknowledge chunk: %w", err)
		}

		if len(data) < e.cfg.ChunkSize {
			return total, nil
		}
	}
}
