package ws

import "testing"

func TestDeflaterInflaterRoundTripAcrossMessages(t *testing.T) {
	d := NewDeflater(false)
	in := NewInflater(false)

	messages := []string{
		"the quick brown fox jumps over the lazy dog",
		"the quick brown fox jumps over the lazy dog again",
		"a third message sharing the quick brown fox phrase",
	}

	for _, msg := range messages {
		compressed, err := d.Deflate([]byte(msg))
		if err != nil {
			t.Fatalf("Deflate(%q): %v", msg, err)
		}
		decompressed, err := in.Inflate(compressed)
		if err != nil {
			t.Fatalf("Inflate(%q): %v", msg, err)
		}
		if string(decompressed) != msg {
			t.Errorf("round trip = %q, want %q", decompressed, msg)
		}
	}
}

func TestDeflaterNoContextTakeoverResetsWindow(t *testing.T) {
	d := NewDeflater(true)
	in := NewInflater(true)

	for _, msg := range []string{"first message", "second message"} {
		compressed, err := d.Deflate([]byte(msg))
		if err != nil {
			t.Fatalf("Deflate(%q): %v", msg, err)
		}
		decompressed, err := in.Inflate(compressed)
		if err != nil {
			t.Fatalf("Inflate(%q): %v", msg, err)
		}
		if string(decompressed) != msg {
			t.Errorf("round trip = %q, want %q", decompressed, msg)
		}
	}
	if in.window != nil {
		t.Error("no_context_takeover inflater must not retain a window between messages")
	}
}

func TestParserDecodesDeflatedMessage(t *testing.T) {
	d := NewDeflater(false)
	var got []byte
	p := NewParser(Callbacks{OnText: func(b []byte) { got = b }}, true, false)

	compressed, err := d.Deflate([]byte("hello, deflate"))
	if err != nil {
		t.Fatalf("Deflate: %v", err)
	}

	frame := clientFrame(t, OpText, true, compressed)
	if _, err := p.Feed(frame); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if string(got) != "hello, deflate" {
		t.Errorf("got %q", got)
	}
}
