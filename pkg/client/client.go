package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"github.com/rescp17/udpFileCourier/pkg/packet"
	"github.com/rescp17/udpFileCourier/pkg/protocol"
)

// Client issues one request per operation against a courier server and
// drives the protocol engine on the initiating side. It is fully
// synchronous: every call blocks until the transfer finishes, the peer
// reports an error, or the retry budget runs out.
type Client struct {
	serverAddr string
	engine     *protocol.Engine
}

// New returns a Client talking to the server at serverAddr (host:port).
func New(serverAddr string, engine *protocol.Engine) *Client {
	return &Client{serverAddr: serverAddr, engine: engine}
}

// request dials the server, sends one request packet with the bounded
// retry discipline and returns the server's first response. ErrPeerSilent
// is returned on exhaustion so the caller can decide whether to start
// another round.
func (c *Client) request(t *protocol.UDPTransport, op packet.Op, filename string) (*packet.Packet, error) {
	result, resp, err := c.engine.SendWithAck(t, c.engine.NewRequest(op, filename))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op.String(), err)
	}
	if result == protocol.Exhausted {
		return nil, protocol.ErrPeerSilent
	}
	if resp.Op == packet.OpError {
		return nil, &protocol.RemoteError{Message: c.engine.DecodeMessage(resp)}
	}
	return resp, nil
}

// Download fetches remoteName from the server into localPath. The local
// file is created only after the server accepts the request, so a missing
// remote file leaves nothing behind; a transfer that fails midway removes
// its partial output.
func (c *Client) Download(remoteName, localPath string) (int64, error) {
	t, err := protocol.DialUDP(c.serverAddr)
	if err != nil {
		return 0, err
	}
	defer t.Close()

	if _, err := c.request(t, packet.OpRead, remoteName); err != nil {
		return 0, err
	}

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file %q: %w", localPath, err)
	}
	n, err := c.engine.ReceiveStream(t, f)
	closeErr := f.Close()
	if err != nil {
		c.discardPartial(localPath)
		return n, fmt.Errorf("download of %q failed: %w", remoteName, err)
	}
	if closeErr != nil {
		c.discardPartial(localPath)
		return n, fmt.Errorf("failed to close local file: %w", closeErr)
	}

	if mt, err := mimetype.DetectFile(localPath); err == nil {
		slog.Info("download complete", "file", localPath, "bytes", n, "content_type", mt.String())
	} else {
		slog.Info("download complete", "file", localPath, "bytes", n)
	}
	return n, nil
}

// discardPartial removes the local output of a failed download; a
// verified transfer should never leave half a file behind.
func (c *Client) discardPartial(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove partial download", "file", localPath, "error", err)
	}
}

// Upload sends localPath to the server under remoteName, one acknowledged
// chunk at a time.
func (c *Client) Upload(localPath, remoteName string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %q: %w", localPath, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close local file", "file", localPath, "error", err)
		}
	}()

	t, err := protocol.DialUDP(c.serverAddr)
	if err != nil {
		return 0, err
	}
	defer t.Close()

	if _, err := c.request(t, packet.OpWrite, remoteName); err != nil {
		return 0, err
	}

	n, err := c.engine.SendStream(t, packet.OpWrite, remoteName, f)
	if err != nil {
		return n, fmt.Errorf("upload of %q failed: %w", localPath, err)
	}
	slog.Info("upload complete", "file", localPath, "remote_name", remoteName, "bytes", n)
	return n, nil
}

// Delete asks the server to remove remoteName and returns the status text
// the server replied with. A server-side failure is returned as a
// *protocol.RemoteError.
func (c *Client) Delete(remoteName string) (string, error) {
	t, err := protocol.DialUDP(c.serverAddr)
	if err != nil {
		return "", err
	}
	defer t.Close()

	resp, err := c.request(t, packet.OpDelete, remoteName)
	if err != nil {
		return "", err
	}
	status := c.engine.DecodeMessage(resp)
	slog.Info("delete complete", "remote_name", remoteName, "status", status)
	return status, nil
}
