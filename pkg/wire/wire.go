// Package wire implements the bit-exact on-the-wire layouts for the
// reliable-datagram protocol: the handshake control word, data packets,
// and acknowledgment packets. The codec is pure — no I/O, no allocation
// beyond the returned buffer — so it can be exercised identically from
// the handshake engine, the sender/receiver cores, and their tests.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Chunk is the fixed payload size carried by every data packet except
// possibly the last.
const Chunk = 972

// MaxDatagram is the largest datagram either peer ever sends.
const MaxDatagram = dataHeaderSize + Chunk

const (
	handshakeSize  = 2
	ackSize        = 4
	dataHeaderSize = 4
)

// MaxWindowSize is the largest value the 13-bit window field can hold.
const MaxWindowSize = 1<<13 - 1

// ErrMalformedPacket is returned when a received datagram's length does
// not match any recognized packet shape.
var ErrMalformedPacket = errors.New("malformed packet")

// Flags is the 3-bit flag mask carried in a handshake control word.
type Flags uint8

const (
	SYN Flags = 1 << iota
	ACK
	FIN
)

func (f Flags) Has(o Flags) bool { return f&o == o }

func (f Flags) String() string {
	if f == 0 {
		return "NONE"
	}
	s := ""
	for _, p := range []struct {
		f Flags
		n string
	}{{SYN, "SYN"}, {ACK, "ACK"}, {FIN, "FIN"}} {
		if f.Has(p.f) {
			if s != "" {
				s += "|"
			}
			s += p.n
		}
	}
	return s
}

// HandshakeWord is the packed 16-bit handshake control word:
//
//	bits 15..3 : window size (13 bits, 0..8191)
//	bits  2..0 : flags
type HandshakeWord uint16

// NewHandshakeWord packs a window size and flag set into a control word.
// A window size greater than MaxWindowSize saturates to MaxWindowSize.
func NewHandshakeWord(windowSize uint16, flags Flags) HandshakeWord {
	if windowSize > MaxWindowSize {
		windowSize = MaxWindowSize
	}
	return HandshakeWord(windowSize<<3) | HandshakeWord(flags&0x7)
}

// WindowSize returns the 13-bit window size field.
func (w HandshakeWord) WindowSize() uint16 {
	return uint16(w >> 3)
}

// Flags returns the 3-bit flag field.
func (w HandshakeWord) Flags() Flags {
	return Flags(w & 0x7)
}

// SetWindowSize returns a copy of w with the window size field replaced,
// leaving the flags untouched. A value greater than MaxWindowSize
// saturates to MaxWindowSize.
func (w HandshakeWord) SetWindowSize(windowSize uint16) HandshakeWord {
	return NewHandshakeWord(windowSize, w.Flags())
}

// SetFlags returns a copy of w with the flags field replaced, leaving
// the window size untouched.
func (w HandshakeWord) SetFlags(flags Flags) HandshakeWord {
	return NewHandshakeWord(w.WindowSize(), flags)
}

// Encode renders the control word as its two-byte wire form.
func (w HandshakeWord) Encode() []byte {
	b := make([]byte, handshakeSize)
	binary.BigEndian.PutUint16(b, uint16(w))
	return b
}

// DecodeHandshake parses a two-byte handshake datagram.
func DecodeHandshake(b []byte) (HandshakeWord, error) {
	if len(b) != handshakeSize {
		return 0, errors.Wrapf(ErrMalformedPacket, "handshake datagram has length %d, want %d", len(b), handshakeSize)
	}
	return HandshakeWord(binary.BigEndian.Uint16(b)), nil
}

// EncodeData renders a data packet: a 4-byte big-endian sequence number
// followed by the payload. The payload must be 1..Chunk bytes.
func EncodeData(seq uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > Chunk {
		return nil, errors.Wrapf(ErrMalformedPacket, "data payload has length %d, want 1..%d", len(payload), Chunk)
	}
	b := make([]byte, dataHeaderSize+len(payload))
	binary.BigEndian.PutUint32(b, seq)
	copy(b[dataHeaderSize:], payload)
	return b, nil
}

// DecodeData parses a data packet, recovering the payload length from
// the datagram length as specified.
func DecodeData(b []byte) (seq uint32, payload []byte, err error) {
	if len(b) < dataHeaderSize+1 {
		return 0, nil, errors.Wrapf(ErrMalformedPacket, "data datagram has length %d, want >= %d", len(b), dataHeaderSize+1)
	}
	seq = binary.BigEndian.Uint32(b[:dataHeaderSize])
	payload = b[dataHeaderSize:]
	return seq, payload, nil
}

// EncodeAck renders a 4-byte acknowledgment packet.
func EncodeAck(seq uint32) []byte {
	b := make([]byte, ackSize)
	binary.BigEndian.PutUint32(b, seq)
	return b
}

// DecodeAck parses a 4-byte acknowledgment packet.
func DecodeAck(b []byte) (uint32, error) {
	if len(b) != ackSize {
		return 0, errors.Wrapf(ErrMalformedPacket, "ack datagram has length %d, want %d", len(b), ackSize)
	}
	return binary.BigEndian.Uint32(b), nil
}

// TotalPackets computes ceil(fileSize / Chunk), the number of data
// packets a file of the given size is split into. A zero-length file
// yields zero packets, since a data packet never carries an empty payload.
func TotalPackets(fileSize int) uint32 {
	if fileSize <= 0 {
		return 0
	}
	return uint32((fileSize + Chunk - 1) / Chunk)
}
