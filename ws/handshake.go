// File: ws/handshake.go
// Package ws
// Author: momentics <momentics@gmail.com>
//
// RFC 6455 HTTP upgrade handshake for both roles, grounded on the
// teacher's protocol/handshake.go (server-side Sec-WebSocket-Accept
// computation via net/http.ReadRequest) and client/client.go's
// dialAndHandshake (client-side Sec-WebSocket-Key generation and
// Upgrade response verification).
package ws

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/momentics/netreactor/api"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client's
// Sec-WebSocket-Key (RFC 6455 §1.3).
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(clientKey) + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewClientKey generates a fresh, random Sec-WebSocket-Key.
func NewClientKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", api.NewError(api.ErrCodeResource, "generate websocket key", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ParseServerHandshake reads and validates an HTTP upgrade request from
// br, returning its headers. Split from the response-building step so a
// caller (ws.Server's upgradeListener) can invoke onWSConnecting with the
// real request before writing anything back to the peer.
func ParseServerHandshake(br *bufio.Reader) (http.Header, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, api.NewError(api.ErrCodeProtocol, "read upgrade request", err)
	}
	if !headerContainsToken(req.Header, "Connection", "Upgrade") ||
		!headerContainsToken(req.Header, "Upgrade", "websocket") {
		return nil, api.NewError(api.ErrCodeProtocol, "missing Upgrade/Connection headers", nil)
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return nil, api.NewError(api.ErrCodeProtocol, "unsupported Sec-WebSocket-Version", nil)
	}
	if req.Header.Get("Sec-WebSocket-Key") == "" {
		return nil, api.NewError(api.ErrCodeProtocol, "missing Sec-WebSocket-Key", nil)
	}
	return req.Header, nil
}

// BuildServerHandshakeResponse renders the "101 Switching Protocols"
// response for a request already validated by ParseServerHandshake.
func BuildServerHandshakeResponse(reqHeaders http.Header) []byte {
	resp := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		AcceptKey(reqHeaders.Get("Sec-WebSocket-Key")),
	)
	return []byte(resp)
}

// BuildClientHeaders constructs the base header set for a client upgrade
// request, returning the map so a caller's onWSConnecting hook can add or
// override entries (mirroring CppServer's WSClient::onWSConnecting,
// which is handed the request to customize before it is sent) before
// SerializeClientRequest renders it.
func BuildClientHeaders(host string) (http.Header, string, error) {
	key, err := NewClientKey()
	if err != nil {
		return nil, "", err
	}
	h := http.Header{}
	h.Set("Host", host)
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set("Sec-WebSocket-Key", key)
	h.Set("Sec-WebSocket-Version", "13")
	return h, key, nil
}

// SerializeClientRequest renders a GET upgrade request for path with the
// given headers.
func SerializeClientRequest(path string, h http.Header) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	for k, vs := range h {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// VerifyServerHandshake reads the server's HTTP response from br and
// checks the Sec-WebSocket-Accept value against clientKey.
func VerifyServerHandshake(br *bufio.Reader, clientKey string) (http.Header, error) {
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, api.NewError(api.ErrCodeProtocol, "read upgrade response", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, api.NewError(api.ErrCodeProtocol, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") ||
		!headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return nil, api.NewError(api.ErrCodeProtocol, "missing Upgrade/Connection headers in response", nil)
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != AcceptKey(clientKey) {
		return nil, api.NewError(api.ErrCodeProtocol, "Sec-WebSocket-Accept mismatch", nil)
	}
	return resp.Header, nil
}

func headerContainsToken(h http.Header, headerName, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}
