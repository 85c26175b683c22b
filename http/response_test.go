package http

import (
	"reflect"
	"testing"
)

func TestBuildResponseRoundTripsStatusHeadersBody(t *testing.T) {
	headers := Header{"content-type": {"text/plain"}, "x-request-id": {"abc123"}}
	body := []byte("hello, world")

	wire := BuildResponse(200, "OK", headers, body)

	var gotStatus StatusLine
	var gotHeaders Header
	var gotBody []byte
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnStatus:   func(sl StatusLine, h Header) { gotStatus = sl; gotHeaders = h },
		OnBodyData: func(b []byte) { gotBody = append(gotBody, b...) },
		OnFinish:   func() { finished = true },
	}, false)

	n, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != len(wire) {
		t.Errorf("consumed %d, want %d", n, len(wire))
	}
	if !finished {
		t.Fatal("expected OnFinish to fire")
	}
	if gotStatus.Status != 200 || gotStatus.Reason != "OK" {
		t.Errorf("status line = %+v", gotStatus)
	}
	if gotHeaders.Get("content-type") != "text/plain" || gotHeaders.Get("x-request-id") != "abc123" {
		t.Errorf("headers = %v", gotHeaders)
	}
	if !reflect.DeepEqual(gotBody, body) {
		t.Errorf("body = %q, want %q", gotBody, body)
	}
}

func TestBuildRequestRoundTripsThroughParser(t *testing.T) {
	headers := Header{"host": {"example.com"}}
	body := []byte("payload")

	wire := BuildRequest("POST", "/echo", headers, body)

	var gotLine RequestLine
	var gotHeaders Header
	var gotBody []byte
	p := NewParser(Callbacks{
		OnHeaders:  func(rl RequestLine, h Header) { gotLine = rl; gotHeaders = h },
		OnBodyData: func(b []byte) { gotBody = append(gotBody, b...) },
	})

	if _, err := p.Feed(wire); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if gotLine.Method != "POST" || gotLine.Path != "/echo" {
		t.Errorf("request line = %+v", gotLine)
	}
	if gotHeaders.Get("host") != "example.com" {
		t.Errorf("headers = %v", gotHeaders)
	}
	if string(gotBody) != "payload" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestResponseParsesIncrementallyAcrossFeedCalls(t *testing.T) {
	var gotBody []byte
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func(b []byte) { gotBody = append(gotBody, b...) },
		OnFinish:   func() { finished = true },
	}, false)

	full := "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc"
	for i := 0; i < len(full); i++ {
		if _, err := p.Feed([]byte{full[i]}); err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
	}
	if !finished {
		t.Fatal("expected finish after feeding byte-by-byte")
	}
	if string(gotBody) != "abc" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestResponseChunkedBodyIsDechunkedTransparently(t *testing.T) {
	var body []byte
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func(b []byte) { body = append(body, b...) },
		OnFinish:   func() { finished = true },
	}, false)

	resp := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !finished {
		t.Fatal("expected finish after final chunk")
	}
	if string(body) != "Wikipedia" {
		t.Errorf("body = %q, want Wikipedia", body)
	}
}

func TestNoContentResponseHasNoBodyRegardlessOfHeaders(t *testing.T) {
	bodyCalled := false
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func([]byte) { bodyCalled = true },
		OnFinish:   func() { finished = true },
	}, false)

	resp := "HTTP/1.1 204 No Content\r\nContent-Length: 5\r\n\r\n"
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !finished {
		t.Fatal("expected 204 to finish without consuming a body")
	}
	if bodyCalled {
		t.Error("expected no OnBodyData for 204")
	}
}

func TestHeadResponseHasNoBodyEvenWithContentLength(t *testing.T) {
	bodyCalled := false
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func([]byte) { bodyCalled = true },
		OnFinish:   func() { finished = true },
	}, true)

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 12\r\n\r\n"
	n, err := p.Feed([]byte(resp))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != len(resp) {
		t.Errorf("consumed %d, want %d", n, len(resp))
	}
	if !finished || bodyCalled {
		t.Errorf("finished=%v bodyCalled=%v, want finished with no body", finished, bodyCalled)
	}
}

func TestResponseBodyRunsUntilCloseWithoutFramingHeaders(t *testing.T) {
	var body []byte
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func(b []byte) { body = append(body, b...) },
	}, false)

	resp := "HTTP/1.1 200 OK\r\n\r\nsome unterminated body"
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if p.Done() {
		t.Error("body-until-close should not finish until the connection actually closes")
	}
	if string(body) != "some unterminated body" {
		t.Errorf("body = %q", body)
	}
}

func TestCloseNotifyFinishesBodyUntilCloseResponse(t *testing.T) {
	var body []byte
	finished := false
	p := NewResponseParser(ResponseCallbacks{
		OnBodyData: func(b []byte) { body = append(body, b...) },
		OnFinish:   func() { finished = true },
	}, false)

	p.Feed([]byte("HTTP/1.1 200 OK\r\n\r\nstreamed"))
	if finished {
		t.Fatal("should not finish before CloseNotify")
	}
	p.CloseNotify()
	if !finished {
		t.Fatal("expected CloseNotify to finish a body-until-close response")
	}
	if string(body) != "streamed" {
		t.Errorf("body = %q", body)
	}

	// CloseNotify is a no-op for a response that already finished on its
	// own (here a bodiless 204), not just for body-until-close.
	fixed := NewResponseParser(ResponseCallbacks{}, false)
	fixed.Feed([]byte("HTTP/1.1 204 No Content\r\n\r\n"))
	fixed.CloseNotify()
	if !fixed.Done() {
		t.Fatal("expected already-finished parser to remain done")
	}
}

func TestMalformedStatusLineFiresOnError(t *testing.T) {
	var gotErr error
	p := NewResponseParser(ResponseCallbacks{
		OnError: func(err error) { gotErr = err },
	}, false)
	p.Feed([]byte("GARBAGE\r\n\r\n"))
	if gotErr == nil {
		t.Fatal("expected OnError to fire for a malformed status line")
	}
}
