// Package http implements Poseidon's HTTP/1.1 socket specialisation
// (spec §4.5 "HTTP/1.1 specialisation"): an incremental request parser
// that feeds a callback chain — on_headers, zero or more
// on_payload_stream, then on_finish or on_error — and transparently
// de-chunks chunked bodies. An "Upgrade" response stops the parser and
// hands remaining bytes to on_upgraded_stream, which is how WebSocket
// is layered on top in the ws package.
//
// Grounded on core/http/parser.go from searchktools-fast-server for
// request-line and header tokenizing (IndexByte scanning instead of
// strings.Split, matching its zero-allocation style), reworked from a
// whole-buffer parser into an incremental Feed loop that can be called
// repeatedly as bytes trickle in off a non-blocking socket.
package http

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Header is a case-insensitive multi-map of header fields.
type Header map[string][]string

func (h Header) add(key, value string) {
	key = strings.ToLower(key)
	h[key] = append(h[key], value)
}

// Get returns the first value for key, case-insensitively.
func (h Header) Get(key string) string {
	vs := h[strings.ToLower(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// RequestLine is the parsed first line of an HTTP/1.1 request.
type RequestLine struct {
	Method string
	Path   string
	Proto  string
}

type parserState int

const (
	stateRequestLine parserState = iota
	stateHeaders
	stateBodyFixed
	stateBodyUntilClose
	stateChunkSize
	stateChunkData
	stateChunkCRLF
	stateChunkTrailer
	stateDone
	stateUpgraded
	stateError
)

// Callbacks are the parser's event hooks (spec §4.4 "HTTP/1.1
// specialisation" callback chain). Each is optional.
type Callbacks struct {
	OnHeaders  func(RequestLine, Header)
	OnBodyData func([]byte)
	OnFinish   func()
	OnError    func(status int)
	OnUpgrade  func()
}

// Parser is an incremental HTTP/1.1 request parser. One Parser
// handles one connection's pipelined request stream; construct a new
// one after each on_finish to parse the next request.
type Parser struct {
	cb    Callbacks
	state parserState

	lineBuf    bytes.Buffer
	headerBuf  bytes.Buffer
	headersEnd bool

	req      RequestLine
	headers  Header
	remaining int64 // bytes left for stateBodyFixed / current chunk
}

// NewParser creates a parser in request-line state.
func NewParser(cb Callbacks) *Parser {
	return &Parser{cb: cb, state: stateRequestLine, headers: Header{}}
}

// Feed supplies newly read bytes and returns the number consumed. Once
// Done reports true, any unconsumed suffix of data is either the start
// of the next pipelined request or, after an Upgrade, the first bytes
// the upgraded protocol (e.g. a WebSocket frame parser) should see.
func (p *Parser) Feed(data []byte) (consumed int, err error) {
	total := 0
	for len(data) > 0 {
		switch p.state {
		case stateDone, stateUpgraded, stateError:
			return total, nil
		case stateRequestLine:
			n, done, perr := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(400)
				return total, perr
			}
			if done {
				if err := p.parseRequestLine(p.lineBuf.Bytes()); err != nil {
					p.fail(400)
					return total, err
				}
				p.lineBuf.Reset()
				p.state = stateHeaders
			}
		case stateHeaders:
			n, done, perr := feedLine(data, &p.headerBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(400)
				return total, perr
			}
			if done {
				line := p.headerBuf.String()
				p.headerBuf.Reset()
				if line == "" {
					p.finishHeaders()
				} else if err := addHeaderLine(p.headers, line); err != nil {
					p.fail(400)
					return total, err
				}
			}
		case stateBodyFixed:
			n := p.consumeFixed(data)
			total += n
			data = data[n:]
		case stateBodyUntilClose:
			if len(data) > 0 && p.cb.OnBodyData != nil {
				p.cb.OnBodyData(data)
			}
			total += len(data)
			data = nil
		case stateChunkSize:
			n, done, perr := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if perr != nil {
				p.fail(400)
				return total, perr
			}
			if done {
				if err := p.parseChunkSize(p.lineBuf.String()); err != nil {
					p.fail(400)
					return total, err
				}
				p.lineBuf.Reset()
			}
		case stateChunkData:
			n := p.consumeChunk(data)
			total += n
			data = data[n:]
		case stateChunkCRLF:
			n, done, _ := feedLine(data, &p.lineBuf)
			total += n
			data = data[n:]
			if done {
				p.lineBuf.Reset()
				p.state = stateChunkSize
			}
		case stateChunkTrailer:
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

// feedLine scans data for a '\n'-terminated line into buf, stripping
// a trailing '\r'. Returns bytes consumed and whether a full line was
// found this call. Shared by Parser and ResponseParser (response.go):
// the request-line/status-line/header/chunk-size lines of both sides
// are all scanned the same way.
func feedLine(data []byte, buf *bytes.Buffer) (consumed int, done bool, err error) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		buf.Write(data)
		if buf.Len() > maxLineLength {
			return len(data), false, fmt.Errorf("http: header line too long")
		}
		return len(data), false, nil
	}
	buf.Write(data[:idx])
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] == '\r' {
		buf.Truncate(len(b) - 1)
	}
	return idx + 1, true, nil
}

const maxLineLength = 16384

func (p *Parser) parseRequestLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return fmt.Errorf("http: malformed request line")
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 == -1 {
		return fmt.Errorf("http: malformed request line")
	}
	p.req = RequestLine{
		Method: string(line[:sp1]),
		Path:   string(rest[:sp2]),
		Proto:  string(rest[sp2+1:]),
	}
	return nil
}

// addHeaderLine parses one "Key: value" header line into h. Shared by
// Parser and ResponseParser.
func addHeaderLine(h Header, line string) error {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return fmt.Errorf("http: malformed header line %q", line)
	}
	key := strings.TrimSpace(line[:colon])
	value := strings.TrimSpace(line[colon+1:])
	h.add(key, value)
	return nil
}

func (p *Parser) finishHeaders() {
	if p.cb.OnHeaders != nil {
		p.cb.OnHeaders(p.req, p.headers)
	}

	if strings.EqualFold(p.headers.Get("Connection"), "upgrade") && p.headers.Get("Upgrade") != "" {
		p.state = stateUpgraded
		if p.cb.OnUpgrade != nil {
			p.cb.OnUpgrade()
		}
		return
	}

	if strings.EqualFold(p.headers.Get("Transfer-Encoding"), "chunked") {
		p.state = stateChunkSize
		return
	}

	if cl := p.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			p.fail(400)
			return
		}
		if n == 0 {
			p.finish()
			return
		}
		p.remaining = n
		p.state = stateBodyFixed
		return
	}

	p.finish()
}

func (p *Parser) consumeFixed(data []byte) int {
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

func (p *Parser) parseChunkSize(line string) error {
	if idx := strings.IndexByte(line, ';'); idx != -1 {
		line = line[:idx]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("http: malformed chunk size %q", line)
	}
	p.remaining = n
	if n == 0 {
		p.state = stateChunkTrailer
		return nil
	}
	p.state = stateChunkData
	return nil
}

func (p *Parser) consumeChunk(data []byte) int {
	n := int64(len(data))
	if n > p.remaining {
		n = p.remaining
	}
	if n > 0 && p.cb.OnBodyData != nil {
		p.cb.OnBodyData(data[:n])
	}
	p.remaining -= n
	if p.remaining == 0 {
		p.state = stateChunkCRLF
	}
	return int(n)
}

func (p *Parser) finish() {
	p.state = stateDone
	if p.cb.OnFinish != nil {
		p.cb.OnFinish()
	}
}

func (p *Parser) fail(status int) {
	p.state = stateError
	if p.cb.OnError != nil {
		p.cb.OnError(status)
	}
}

// Done reports whether the parser reached a terminal state (finished,
// upgraded, or errored) and should be replaced for the next request.
func (p *Parser) Done() bool {
	return p.state == stateDone || p.state == stateUpgraded || p.state == stateError
}
