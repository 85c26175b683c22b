// Package ws implements Poseidon's WebSocket socket specialisation
// (spec §4.4/§4.5 "WebSocket specialisation"): the RFC 6455 Sec-
// WebSocket-Accept computation, an incremental frame parser, and the
// text/binary/ping/pong/close callback chain, layered on top of the
// http package's Upgrade hand-off.
//
// The accept-key GUID and computation are grounded on
// protocol/handshake.go (teacher): the same
// "258EAFA5-E914-47DA-95CA-C5AB0DC85B11" magic GUID, sha1+base64
// accept digest, and Connection/Upgrade/Sec-WebSocket-Version header
// validation, translated from a one-shot http.ReadRequest-based
// handshake into a function operating on an already-parsed
// http.Header from the http package's incremental parser.
package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lhmouse/poseidon/http"
)

const (
	webSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	requiredWebSocketVersion = "13"
)

var (
	ErrInvalidUpgradeHeaders = fmt.Errorf("ws: invalid upgrade headers")
	ErrMissingKey            = fmt.Errorf("ws: missing Sec-WebSocket-Key header")
	ErrBadVersion            = fmt.Errorf("ws: unsupported Sec-WebSocket-Version; only 13 is supported")
)

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey + webSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ValidateUpgrade checks that headers carry a well-formed WebSocket
// upgrade request and returns the client's handshake key.
func ValidateUpgrade(headers http.Header) (clientKey string, err error) {
	if !headerContainsToken(headers, "connection", "upgrade") {
		return "", ErrInvalidUpgradeHeaders
	}
	if !strings.EqualFold(headers.Get("upgrade"), "websocket") {
		return "", ErrInvalidUpgradeHeaders
	}
	if headers.Get("sec-websocket-version") != requiredWebSocketVersion {
		return "", ErrBadVersion
	}
	key := headers.Get("sec-websocket-key")
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// ResponseHeaders builds the 101 response headers for a successful
// upgrade, selecting subprotocol if non-empty.
func ResponseHeaders(clientKey, subprotocol string) map[string]string {
	h := map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Sec-WebSocket-Accept": AcceptKey(clientKey),
	}
	if subprotocol != "" {
		h["Sec-WebSocket-Protocol"] = subprotocol
	}
	return h
}

func headerContainsToken(h http.Header, headerName, token string) bool {
	for _, v := range h[strings.ToLower(headerName)] {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
