package ws

import (
	"bytes"
	"encoding/binary"
)

// EncodeFrame builds a server-to-client frame: server frames are never
// masked per RFC 6455 §5.1, so no masking key is written. Control
// frames (close/ping/pong) must not be fragmented; callers pass
// fin=true for those.
func EncodeFrame(opcode Opcode, fin bool, payload []byte) []byte {
	var out bytes.Buffer

	first := byte(opcode)
	if fin {
		first |= 0x80
	}
	out.WriteByte(first)

	n := len(payload)
	switch {
	case n < 126:
		out.WriteByte(byte(n))
	case n <= 0xffff:
		out.WriteByte(126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		out.Write(ext[:])
	default:
		out.WriteByte(127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		out.Write(ext[:])
	}

	out.Write(payload)
	return out.Bytes()
}

// EncodeText and EncodeBinary build single-frame (unfragmented)
// messages, which is all a server ever needs to send: fragmentation is
// a sender's choice, and Poseidon's writer never splits outgoing
// messages.
func EncodeText(data []byte) []byte   { return EncodeFrame(OpText, true, data) }
func EncodeBinary(data []byte) []byte { return EncodeFrame(OpBinary, true, data) }

// EncodePing and EncodePong build control frames; payload is truncated
// to MaxControlPayload per RFC 6455 §5.5.
func EncodePing(payload []byte) []byte {
	return EncodeFrame(OpPing, true, truncate(payload, MaxControlPayload))
}

func EncodePong(payload []byte) []byte {
	return EncodeFrame(OpPong, true, truncate(payload, MaxControlPayload))
}

// EncodeClose builds a close frame carrying a status code and UTF-8
// reason, truncated so the whole payload stays within
// MaxControlPayload.
func EncodeClose(status uint16, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, status)
	copy(payload[2:], reason)
	return EncodeFrame(OpClose, true, truncate(payload, MaxControlPayload))
}

// Deflate compression for outgoing messages is a Deflater (compress.go):
// a per-message stateless function can't honor RFC 7692 context
// takeover, since the compressor's LZ77 window must survive from one
// message to the next.
