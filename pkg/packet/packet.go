package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Op identifies the operation a packet carries.
type Op uint32

const (
	OpRead   Op = 1 // RRQ: download a file
	OpWrite  Op = 2 // WRQ: upload a file
	OpDelete Op = 3 // DEL: remove a file
	OpAck    Op = 4 // acknowledgment, also carries RRQ data chunks
	OpError  Op = 5 // error report with a message payload
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "RRQ"
	case OpWrite:
		return "WRQ"
	case OpDelete:
		return "DEL"
	case OpAck:
		return "ACK"
	case OpError:
		return "ERROR"
	default:
		return fmt.Sprintf("Op(%d)", uint32(o))
	}
}

// IsRequest reports whether the operation opens a new session.
func (o Op) IsRequest() bool {
	return o == OpRead || o == OpWrite || o == OpDelete
}

// Wire layout, big-endian, fixed width. Field offsets are part of the
// protocol; the struct below is never written to the wire directly.
//
//	offset width field
//	     0     4 operation id
//	     4   256 filename, NUL-padded
//	   260   512 payload (ciphertext when a cipher is active)
//	   772     4 checksum over payload[0:dataSize]
//	   776     4 dataSize
const (
	FilenameSize = 256
	PayloadSize  = 512
	PacketSize   = 4 + FilenameSize + PayloadSize + 4 + 4

	// MaxFilenameLen leaves room for the terminating NUL.
	MaxFilenameLen = FilenameSize - 1

	opOffset       = 0
	filenameOffset = 4
	payloadOffset  = filenameOffset + FilenameSize
	checksumOffset = payloadOffset + PayloadSize
	sizeOffset     = checksumOffset + 4
)

var (
	ErrFilenameTooLong = errors.New("filename exceeds wire field")
	ErrPayloadTooLarge = errors.New("payload exceeds wire field")
	ErrShortPacket     = errors.New("datagram shorter than packet size")
	ErrCorruptPacket   = errors.New("declared payload size exceeds buffer")
)

// Packet is one unit of exchange. Payload holds at most PayloadSize valid
// bytes; Checksum is computed by the sender over the encrypted payload and
// re-verified by the receiver before the bytes are trusted.
type Packet struct {
	Op       Op
	Filename string
	Payload  []byte
	Checksum uint32
}

// MarshalBinary encodes p into the fixed wire layout.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.Filename) > MaxFilenameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(p.Filename))
	}
	if len(p.Payload) > PayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	buf := make([]byte, PacketSize)
	binary.BigEndian.PutUint32(buf[opOffset:], uint32(p.Op))
	copy(buf[filenameOffset:filenameOffset+FilenameSize], p.Filename)
	copy(buf[payloadOffset:payloadOffset+PayloadSize], p.Payload)
	binary.BigEndian.PutUint32(buf[checksumOffset:], p.Checksum)
	binary.BigEndian.PutUint32(buf[sizeOffset:], uint32(len(p.Payload)))
	return buf, nil
}

// UnmarshalBinary decodes one datagram. Trailing bytes beyond PacketSize
// are rejected along with short reads: every packet is exactly one
// fixed-size datagram.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < PacketSize {
		return fmt.Errorf("%w: got %d bytes", ErrShortPacket, len(data))
	}
	if len(data) > PacketSize {
		return fmt.Errorf("datagram larger than packet size: %d bytes", len(data))
	}

	dataSize := binary.BigEndian.Uint32(data[sizeOffset:])
	if dataSize > PayloadSize {
		return fmt.Errorf("%w: %d", ErrCorruptPacket, dataSize)
	}

	p.Op = Op(binary.BigEndian.Uint32(data[opOffset:]))
	name := data[filenameOffset : filenameOffset+FilenameSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	p.Filename = string(name)
	p.Payload = make([]byte, dataSize)
	copy(p.Payload, data[payloadOffset:payloadOffset+int(dataSize)])
	p.Checksum = binary.BigEndian.Uint32(data[checksumOffset:])
	return nil
}
