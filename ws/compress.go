// Package ws additions in this file implement the persistent
// per-connection DEFLATE compressor/decompressor pair RFC 7692's
// permessage-deflate extension describes: each side keeps its LZ77
// sliding window alive across messages on the same connection unless
// the peer negotiated the corresponding *_no_context_takeover
// parameter, in which case the window is discarded after every
// message instead.
//
// Grounded on the frame parser's own incremental-Feed shape in
// frame.go: Deflater/Inflater are long-lived per-connection objects
// constructed once and fed one message at a time, mirroring Parser
// rather than a stateless compress/decompress helper.
package ws

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// flateWindowSize is DEFLATE's maximum back-reference distance (RFC
// 1951 §2.7.1): the largest amount of prior output a decompressor
// ever needs to retain as dictionary between messages.
const flateWindowSize = 32768

// Deflater compresses successive WebSocket messages through one
// persistent flate.Writer, so a later message's back-references can
// reach into data written for an earlier one (RFC 7692's context
// takeover). Not safe for concurrent use; a connection has at most
// one outstanding Deflate call at a time.
type Deflater struct {
	noContextTakeover bool
	buf               bytes.Buffer
	w                 *flate.Writer
}

// NewDeflater creates a compressor. noContextTakeover mirrors the
// peer's negotiated "server_no_context_takeover"/
// "client_no_context_takeover" extension parameter (whichever side
// this Deflater writes for): when true, the sliding window is reset
// after every message instead of carried forward.
func NewDeflater(noContextTakeover bool) *Deflater {
	return &Deflater{noContextTakeover: noContextTakeover}
}

// Deflate compresses data as one per-message DEFLATE block and strips
// the trailing 0x00 0x00 0xff 0xff sync-flush marker, as
// permessage-deflate requires (RFC 7692 §7.2.1).
func (d *Deflater) Deflate(data []byte) ([]byte, error) {
	if d.w == nil {
		w, err := flate.NewWriter(&d.buf, flate.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("ws: deflate: %w", err)
		}
		d.w = w
	}
	d.buf.Reset()

	if _, err := d.w.Write(data); err != nil {
		return nil, fmt.Errorf("ws: deflate: %w", err)
	}
	// Flush performs a sync flush (Z_SYNC_FLUSH): it empties the
	// writer's pending output without resetting its LZ77 window, which
	// is exactly what keeps context takeover working across calls.
	if err := d.w.Flush(); err != nil {
		return nil, fmt.Errorf("ws: deflate: %w", err)
	}

	out := append([]byte(nil), d.buf.Bytes()...)
	if len(out) >= 4 && bytes.Equal(out[len(out)-4:], []byte{0x00, 0x00, 0xff, 0xff}) {
		out = out[:len(out)-4]
	}

	if d.noContextTakeover {
		d.w.Reset(&d.buf)
	}
	return out, nil
}

// Inflater decompresses successive WebSocket messages, reconstructing
// the peer's sliding window from its own previously decompressed
// output so a later message's back-references into earlier ones still
// resolve. compress/flate has no API to keep a Reader's window alive
// across a new io.Reader source, so Inflater rebuilds it explicitly
// via flate.Resetter.Reset's dict parameter each call.
type Inflater struct {
	noContextTakeover bool
	window            []byte
	r                 io.ReadCloser
}

// NewInflater creates a decompressor; see NewDeflater for
// noContextTakeover.
func NewInflater(noContextTakeover bool) *Inflater {
	return &Inflater{noContextTakeover: noContextTakeover}
}

// Inflate decompresses one per-message DEFLATE block, first restoring
// the trailing sync-flush marker permessage-deflate strips before
// sending and then appending an empty final stored block, so the
// flate reader sees a complete stream and ends with io.EOF.
func (in *Inflater) Inflate(data []byte) ([]byte, error) {
	data = append(append([]byte(nil), data...), 0x00, 0x00, 0xff, 0xff, 0x01, 0x00, 0x00, 0xff, 0xff)
	src := bytes.NewReader(data)

	if in.r == nil {
		in.r = flate.NewReaderDict(src, in.window)
	} else if err := in.r.(flate.Resetter).Reset(src, in.window); err != nil {
		return nil, fmt.Errorf("ws: inflate: reset: %w", err)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, in.r); err != nil {
		return nil, fmt.Errorf("ws: inflate: %w", err)
	}

	if in.noContextTakeover {
		in.window = nil
	} else {
		in.window = append(in.window, out.Bytes()...)
		if len(in.window) > flateWindowSize {
			in.window = append([]byte(nil), in.window[len(in.window)-flateWindowSize:]...)
		}
	}
	return out.Bytes(), nil
}
