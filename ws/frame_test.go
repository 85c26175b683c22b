package ws

import (
	"bytes"
	"testing"
)

func maskClientFrame(frame []byte, key [4]byte, headerLen int) []byte {
	out := append([]byte(nil), frame[:headerLen]...)
	out[1] |= 0x80
	out = append(out, key[:]...)
	for i, b := range frame[headerLen:] {
		out = append(out, b^key[i%4])
	}
	return out
}

func clientFrame(t *testing.T, opcode Opcode, fin bool, payload []byte) []byte {
	t.Helper()
	raw := EncodeFrame(opcode, fin, payload)
	headerLen := 2
	if len(payload) >= 126 && len(payload) <= 0xffff {
		headerLen = 4
	} else if len(payload) > 0xffff {
		headerLen = 10
	}
	return maskClientFrame(raw, [4]byte{0x11, 0x22, 0x33, 0x44}, headerLen)
}

func TestSingleTextFrameRoundTrip(t *testing.T) {
	var got []byte
	p := NewParser(Callbacks{OnText: func(b []byte) { got = b }}, false, false)

	frame := clientFrame(t, OpText, true, []byte("hello"))
	n, err := p.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != len(frame) {
		t.Errorf("consumed %d, want %d", n, len(frame))
	}
	if string(got) != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestFragmentedMessageReassembled(t *testing.T) {
	var got []byte
	p := NewParser(Callbacks{OnBinary: func(b []byte) { got = b }}, false, false)

	f1 := clientFrame(t, OpBinary, false, []byte("ab"))
	f2 := clientFrame(t, OpContinuation, true, []byte("cd"))

	if _, err := p.Feed(f1); err != nil {
		t.Fatalf("feed f1: %v", err)
	}
	if got != nil {
		t.Fatal("message delivered before FIN")
	}
	if _, err := p.Feed(f2); err != nil {
		t.Fatalf("feed f2: %v", err)
	}
	if string(got) != "abcd" {
		t.Errorf("got %q, want abcd", got)
	}
}

func TestPingInterleavedDuringFragmentation(t *testing.T) {
	var pinged, done []byte
	p := NewParser(Callbacks{
		OnPing:   func(b []byte) { pinged = b },
		OnBinary: func(b []byte) { done = b },
	}, false, false)

	f1 := clientFrame(t, OpBinary, false, []byte("ab"))
	ping := clientFrame(t, OpPing, true, []byte("pp"))
	f2 := clientFrame(t, OpContinuation, true, []byte("cd"))

	p.Feed(f1)
	p.Feed(ping)
	if string(pinged) != "pp" {
		t.Errorf("ping payload = %q", pinged)
	}
	p.Feed(f2)
	if string(done) != "abcd" {
		t.Errorf("reassembled = %q, want abcd (ping must not disturb fragmentation)", done)
	}
}

func TestNestedCloseDiscardsPartialFragmentedMessage(t *testing.T) {
	var binaryFired bool
	var closeStatus uint16
	p := NewParser(Callbacks{
		OnBinary: func(b []byte) { binaryFired = true },
		OnClose:  func(status uint16, reason string) { closeStatus = status },
	}, false, false)

	f1 := clientFrame(t, OpBinary, false, []byte("partial"))
	closePayload := []byte{0x03, 0xe8} // status 1000, no reason
	closeFrame := clientFrame(t, OpClose, true, closePayload)

	p.Feed(f1)
	p.Feed(closeFrame)

	if binaryFired {
		t.Error("OnBinary must not fire for a message interrupted by CLOSE")
	}
	if closeStatus != 1000 {
		t.Errorf("close status = %d, want 1000", closeStatus)
	}
}

func TestContinuationWithoutStartIsError(t *testing.T) {
	var errFired bool
	p := NewParser(Callbacks{OnError: func(err error) { errFired = true }}, false, false)

	f := clientFrame(t, OpContinuation, true, []byte("x"))
	p.Feed(f)
	if !errFired {
		t.Error("expected OnError for orphan continuation frame")
	}
}

func TestExtendedPayloadLength16Bit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 200)
	var got []byte
	p := NewParser(Callbacks{OnText: func(b []byte) { got = b }}, false, false)

	frame := clientFrame(t, OpText, true, payload)
	if _, err := p.Feed(frame); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch, got %d bytes want %d", len(got), len(payload))
	}
}

func TestFeedByteAtATime(t *testing.T) {
	var got []byte
	p := NewParser(Callbacks{OnText: func(b []byte) { got = b }}, false, false)

	frame := clientFrame(t, OpText, true, []byte("byte-by-byte"))
	for i := range frame {
		if _, err := p.Feed(frame[i : i+1]); err != nil {
			t.Fatalf("feed byte %d: %v", i, err)
		}
	}
	if string(got) != "byte-by-byte" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeFrameServerSideIsUnmasked(t *testing.T) {
	frame := EncodeText([]byte("hi"))
	if frame[1]&0x80 != 0 {
		t.Error("server-to-client frame must not set the mask bit")
	}
}

func TestEncodeCloseTruncatesToControlPayloadCap(t *testing.T) {
	longReason := string(bytes.Repeat([]byte("r"), 200))
	frame := EncodeClose(1000, longReason)
	payloadLen := int(frame[1] & 0x7f)
	if payloadLen > MaxControlPayload {
		t.Errorf("close payload len = %d, want <= %d", payloadLen, MaxControlPayload)
	}
}
