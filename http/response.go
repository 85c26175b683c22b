// Package http additions in this file implement the HttpClient half
// of spec §4.4's HTTP server/client trait: an incremental response
// parser mirroring Parser's request-side Feed shape (status-line →
// headers → body, transparently de-chunked), plus BuildRequest and
// BuildResponse so the round-trip law spec §8 names — "a response
// built from a (status, headers, body) triple and parsed back yields
// an equal triple" — has something on both ends to round-trip through.
package http

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StatusLine is the parsed first line of an HTTP/1.1 response.
type StatusLine struct {
	Proto  string
	Status int
	Reason string
}

// ResponseCallbacks are the response parser's event hooks, mirroring
// Callbacks' request-side chain.
type ResponseCallbacks struct {
	OnStatus   func(StatusLine, Header)
	OnBodyData func([]byte)
	OnFinish   func()
	OnError    func(err error)
}

type responseParserState int

const (
	respStateStatusLine responseParserState = iota
	respStateHeaders
	respStateBodyFixed
	respStateBodyUntilClose
	respStateChunkSize
	respStateChunkData
	respStateChunkCRLF
	respStateChunkTrailer
	respStateDone
	respStateError
)

// ResponseParser is an incremental HTTP/1.1 response parser, the
// HttpClient-side counterpart to Parser. Construct one per response;
// a pipelined/keep-alive client builds a new ResponseParser after each
// OnFinish the same way a server builds a new Parser after each
// request.
type ResponseParser struct {
	cb     ResponseCallbacks
	state  responseParserState
	noBody bool

	lineBuf   bytes.Buffer
	headerBuf bytes.Buffer

	status    StatusLine
	headers   Header
	remaining int64
}

// NewResponseParser creates a parser in status-line state. noBody must
// be set by the caller when the request this responds to was HEAD (or
// any other method whose response is defined to never carry a body):
// Content-Length/Transfer-Encoding on such a response describe a body
// that was never actually sent, so the parser must be told rather than
// infer it from those headers.
func NewResponseParser(cb ResponseCallbacks, noBody bool) *ResponseParser {
	return &ResponseParser{cb: cb, state: respStateStatusLine, headers: Header{}, noBody: noBody}
}

// Feed supplies newly read bytes and returns the number consumed.
func (p *ResponseParser) Feed(data []byte) (consumed int, err error) {
	total := 0
	for len(data) > 0 {
		switch p.state {
		case respStateDone, respStateError:
			return total, nil
		case respStateStatusLine:
			n, done, perr := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(perr)
				return total, perr
			}
			if done {
				if err := p.parseStatusLine(p.lineBuf.Bytes()); err != nil {
					p.fail(err)
					return total, err
				}
				p.lineBuf.Reset()
				p.state = respStateHeaders
			}
		case respStateHeaders:
			n, done, perr := feedLine(data, &p.headerBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(perr)
				return total, perr
			}
			if done {
				line := p.headerBuf.String()
				p.headerBuf.Reset()
				if line == "" {
					p.finishHeaders()
				} else if err := addHeaderLine(p.headers, line); err != nil {
					p.fail(err)
					return total, err
				}
			}
		case respStateBodyFixed:
			n := p.consumeFixed(data)
			total += n
			data = data[n:]
		case respStateBodyUntilClose:
			if len(data) > 0 && p.cb.OnBodyData != nil {
				p.cb.OnBodyData(data)
			}
			total += len(data)
			data = nil
		case respStateChunkSize:
			n, done, perr := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(perr)
				return total, perr
			}
			if done {
				if err := p.parseChunkSize(p.lineBuf.String()); err != nil {
					p.fail(err)
					return total, err
				}
				p.lineBuf.Reset()
			}
		case respStateChunkData:
			n := p.consumeChunk(data)
			total += n
			data = data[n:]
		case respStateChunkCRLF:
			n, done, _ := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if done {
				p.lineBuf.Reset()
				p.state = respStateChunkSize
			}
		case respStateChunkTrailer:
			n, done, _ := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if done {
				line := p.lineBuf.String()
				p.lineBuf.Reset()
				if line == "" {
					p.finish()
				}
			}
		}
	}
	return total, nil
}

func (p *ResponseParser) parseStatusLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return fmt.Errorf("http: malformed status line %q", line)
	}
	rest := line[sp1+1:]
	statusField, reason := rest, []byte(nil)
	if sp2 := bytes.IndexByte(rest, ' '); sp2 != -1 {
		statusField, reason = rest[:sp2], rest[sp2+1:]
	}
	code, err := strconv.Atoi(string(statusField))
	if err != nil {
		return fmt.Errorf("http: malformed status code %q", statusField)
	}
	p.status = StatusLine{Proto: string(line[:sp1]), Status: code, Reason: string(reason)}
	return nil
}

func (p *ResponseParser) finishHeaders() {
	if p.cb.OnStatus != nil {
		p.cb.OnStatus(p.status, p.headers)
	}

	if p.noBody || noResponseBody(p.status.Status) {
		p.finish()
		return
	}

	if strings.EqualFold(p.headers.Get("Transfer-Encoding"), "chunked") {
		p.state = respStateChunkSize
		return
	}

	if cl := p.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			p.fail(fmt.Errorf("http: malformed Content-Length %q", cl))
			return
		}
		if n == 0 {
			p.finish()
			return
		}
		p.remaining = n
		p.state = respStateBodyFixed
		return
	}

	// Neither Content-Length nor chunked: per RFC 7230 §3.3.3 the body
	// runs until the connection closes, unlike a request's absence of
	// either header (which means no body at all).
	p.state = respStateBodyUntilClose
}

// noResponseBody reports whether status is defined to never carry a
// body regardless of headers (RFC 7230 §3.3.3): 1xx, 204, and 304.
func noResponseBody(status int) bool {
	return status/100 == 1 || status == 204 || status == 304
}

func (p *ResponseParser) consumeFixed(data []byte) int {
	n := int64(len(data))
	if n > p.remaining {
		n = p.remaining
	}
	if n > 0 && p.cb.OnBodyData != nil {
		p.cb.OnBodyData(data[:n])
	}
	p.remaining -= n
	if p.remaining == 0 {
		p.finish()
	}
	return int(n)
}

func (p *ResponseParser) parseChunkSize(line string) error {
	if idx := strings.IndexByte(line, ';'); idx != -1 {
		line = line[:idx]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("http: malformed chunk size %q", line)
	}
	p.remaining = n
	if n == 0 {
		p.state = respStateChunkTrailer
		return nil
	}
	p.state = respStateChunkData
	return nil
}

func (p *ResponseParser) consumeChunk(data []byte) int {
	n := int64(len(data))
	if n > p.remaining {
		n = p.remaining
	}
	if n > 0 && p.cb.OnBodyData != nil {
		p.cb.OnBodyData(data[:n])
	}
	p.remaining -= n
	if p.remaining == 0 {
		p.state = respStateChunkCRLF
	}
	return int(n)
}

func (p *ResponseParser) finish() {
	p.state = respStateDone
	if p.cb.OnFinish != nil {
		p.cb.OnFinish()
	}
}

func (p *ResponseParser) fail(err error) {
	p.state = respStateError
	if p.cb.OnError != nil {
		p.cb.OnError(err)
	}
}

// Done reports whether the parser reached a terminal state (finished
// or errored) and should be replaced for the next response.
func (p *ResponseParser) Done() bool {
	return p.state == respStateDone || p.state == respStateError
}

// CloseNotify tells the parser the connection closed. A response with
// neither Content-Length nor chunked framing ends at connection close
// (respStateBodyUntilClose) rather than at a byte count the parser can
// recognize on its own, so the caller's OnClosed hook must call this
// to fire OnFinish for that case. It is a no-op once the parser is
// already in a terminal state.
func (p *ResponseParser) CloseNotify() {
	if p.state == respStateBodyUntilClose {
		p.finish()
	}
}

// writeHeaders writes headers in sorted-key order followed by the
// blank line ending the header block, adding a Content-Length header
// sized to bodyLen when the caller did not already set one.
func writeHeaders(buf *bytes.Buffer, headers Header, bodyLen int) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	if headers.Get("Content-Length") == "" {
		fmt.Fprintf(buf, "Content-Length: %d\r\n", bodyLen)
	}
	buf.WriteString("\r\n")
}

// BuildRequest serializes an HTTP/1.1 request line, headers, and body.
// headers should use the same lowercased keys Header.add normalizes
// to (e.g. via a literal built with lowercase keys) so a round trip
// through Parser yields back an equal Header.
func BuildRequest(method, path string, headers Header, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, path)
	writeHeaders(&buf, headers, len(body))
	buf.Write(body)
	return buf.Bytes()
}

// BuildResponse serializes an HTTP/1.1 status line, headers, and body.
// Feeding the result to a ResponseParser recovers an equal
// (status, headers, body) triple, the round-trip law spec §8 names.
func BuildResponse(status int, reason string, headers Header, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, reason)
	writeHeaders(&buf, headers, len(body))
	buf.Write(body)
	return buf.Bytes()
}
