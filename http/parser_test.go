package http

import (
	"strings"
	"testing"
)

func TestParsesSimpleGETWithContentLength(t *testing.T) {
	var gotLine RequestLine
	var gotHeaders Header
	var body []byte
	finished := false

	p := NewParser(Callbacks{
		OnHeaders:  func(rl RequestLine, h Header) { gotLine = rl; gotHeaders = h },
		OnBodyData: func(b []byte) { body = append(body, b...) },
		OnFinish:   func() { finished = true },
	})

	req := "POST /echo HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	n, err := p.Feed([]byte(req))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != len(req) {
		t.Errorf("consumed %d, want %d", n, len(req))
	}
	if !finished {
		t.Fatal("expected OnFinish to fire")
	}
	if gotLine.Method != "POST" || gotLine.Path != "/echo" {
		t.Errorf("request line = %+v", gotLine)
	}
	if gotHeaders.Get("host") != "example.com" {
		t.Errorf("headers = %v", gotHeaders)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestParsesIncrementallyAcrossFeedCalls(t *testing.T) {
	finished := false
	var body []byte
	p := NewParser(Callbacks{
		OnBodyData: func(b []byte) { body = append(body, b...) },
		OnFinish:   func() { finished = true },
	})

	full := "GET / HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc"
	for i := 0; i < len(full); i++ {
		if _, err := p.Feed([]byte{full[i]}); err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
	}
	if !finished {
		t.Fatal("expected finish after feeding byte-by-byte")
	}
	if string(body) != "abc" {
		t.Errorf("body = %q", body)
	}
}

func TestChunkedBodyIsDechunkedTransparently(t *testing.T) {
	var body []byte
	finished := false
	p := NewParser(Callbacks{
		OnBodyData: func(b []byte) { body = append(body, b...) },
		OnFinish:   func() { finished = true },
	})

	req := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	if _, err := p.Feed([]byte(req)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !finished {
		t.Fatal("expected finish after final chunk")
	}
	if string(body) != "Wikipedia" {
		t.Errorf("body = %q, want Wikipedia", body)
	}
}

func TestUpgradeStopsParsingAndFiresCallback(t *testing.T) {
	upgraded := false
	p := NewParser(Callbacks{
		OnUpgrade: func() { upgraded = true },
	})

	req := "GET /ws HTTP/1.1\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n" + "extra-bytes"
	n, err := p.Feed([]byte(req))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !upgraded {
		t.Fatal("expected OnUpgrade to fire")
	}
	headerEnd := strings.Index(req, "\r\n\r\n") + 4
	if n != headerEnd {
		t.Errorf("consumed = %d, want %d (stop after header terminator)", n, headerEnd)
	}
	if !p.Done() {
		t.Error("expected Done() after upgrade")
	}
}

func TestMalformedRequestLineFiresOnError(t *testing.T) {
	status := 0
	p := NewParser(Callbacks{
		OnError: func(s int) { status = s },
	})
	p.Feed([]byte("GARBAGE\r\n\r\n"))
	if status != 400 {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestNoBodyRequestFinishesImmediately(t *testing.T) {
	finished := false
	p := NewParser(Callbacks{OnFinish: func() { finished = true }})
	p.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	if !finished {
		t.Fatal("expected finish with no Content-Length/chunked body")
	}
}
