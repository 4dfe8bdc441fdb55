// File: httpmsg/message.go
// Package httpmsg
// Author: momentics <momentics@gmail.com>
//
// Minimal HTTP/1.1 request/response parsing and byte-stable building for
// the WebSocket upgrade handshake and plain HTTP sessions (spec §4.4).
// Grounded on the teacher's protocol/handshake.go, which parses the
// upgrade request with net/http.ReadRequest; generalized here into a
// standalone request/response pair reusable outside the WS handshake
// (e.g. a plain httpmsg.Session).
package httpmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/momentics/netreactor/api"
)

// Request is a parsed HTTP/1.1 request, header size and body size bounded
// per spec §4.4's max_header_size/max_body_size.
type Request struct {
	Method  string
	Target  string
	Proto   string
	Header  http.Header
	Body    []byte
	Host    string
}

// Response is a byte-stable HTTP/1.1 response builder.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// NewResponse constructs a Response with the given status code and an
// empty header set.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     make(http.Header),
	}
}

// ParseRequest reads a single HTTP/1.1 request from r, enforcing
// maxHeaderSize (total header bytes) and maxBodySize (Content-Length or
// accumulated chunked body).
func ParseRequest(r *bufio.Reader, maxHeaderSize, maxBodySize int) (*Request, error) {
	httpReq, err := http.ReadRequest(r)
	if err != nil {
		return nil, api.NewError(api.ErrCodeProtocol, "parse request line/headers", err)
	}

	headerBytes := 0
	for k, vs := range httpReq.Header {
		headerBytes += len(k)
		for _, v := range vs {
			headerBytes += len(v)
		}
	}
	if headerBytes > maxHeaderSize {
		return nil, api.NewError(api.ErrCodeProtocol, "request headers exceed max_header_size", nil)
	}

	req := &Request{
		Method: httpReq.Method,
		Target: httpReq.URL.RequestURI(),
		Proto:  httpReq.Proto,
		Header: httpReq.Header,
		Host:   httpReq.Host,
	}

	if httpReq.Header.Get("Upgrade") != "" {
		// WebSocket upgrade requests carry no body worth buffering here;
		// the ws package takes over the connection immediately after.
		return req, nil
	}

	// net/http moves Transfer-Encoding out of Header into TransferEncoding.
	chunked := len(httpReq.TransferEncoding) > 0 && strings.EqualFold(httpReq.TransferEncoding[0], "chunked")
	body, err := readBody(r, httpReq.Header, chunked, maxBodySize)
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

func readBody(r *bufio.Reader, hdr http.Header, chunked bool, maxBodySize int) ([]byte, error) {
	if chunked {
		return readChunkedBody(r, maxBodySize)
	}
	clStr := hdr.Get("Content-Length")
	if clStr == "" {
		return nil, nil
	}
	cl, err := strconv.Atoi(clStr)
	if err != nil || cl < 0 {
		return nil, api.NewError(api.ErrCodeProtocol, "invalid Content-Length", err)
	}
	if cl > maxBodySize {
		return nil, api.ErrTooLarge
	}
	body := make([]byte, cl)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, api.NewError(api.ErrCodeProtocol, "short body read", err)
	}
	return body, nil
}

func readChunkedBody(r *bufio.Reader, maxBodySize int) ([]byte, error) {
	var out bytes.Buffer
	for {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, api.NewError(api.ErrCodeProtocol, "chunked size line", err)
		}
		sizeLine = strings.TrimSpace(strings.SplitN(sizeLine, ";", 2)[0])
		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil {
			return nil, api.NewError(api.ErrCodeProtocol, "invalid chunk size", err)
		}
		if size == 0 {
			// consume trailing CRLF terminating the chunked body
			_, _ = r.ReadString('\n')
			break
		}
		if out.Len()+int(size) > maxBodySize {
			return nil, api.ErrTooLarge
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, api.NewError(api.ErrCodeProtocol, "short chunk read", err)
		}
		if _, err := r.Discard(2); err != nil { // trailing CRLF after chunk data
			return nil, api.NewError(api.ErrCodeProtocol, "malformed chunk terminator", err)
		}
	}
	return out.Bytes(), nil
}

// Bytes renders the response as a byte-stable HTTP/1.1 wire message.
func (resp *Response) Bytes() []byte {
	var buf bytes.Buffer
	resp.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo renders the response into buf, which the caller owns and may
// have borrowed from a pool (see Session's respPool). buf is not reset
// first; callers that reuse a buffer across responses must reset it
// themselves.
func (resp *Response) WriteTo(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", resp.StatusCode, resp.Status)
	if resp.Body != nil && resp.Header.Get("Content-Length") == "" {
		resp.Header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(resp.Body)
}

// KeepAlive reports whether req's Connection semantics call for the
// underlying transport to remain open after this exchange (spec §4.4).
func (req *Request) KeepAlive() bool {
	conn := strings.ToLower(req.Header.Get("Connection"))
	if req.Proto == "HTTP/1.0" {
		return conn == "keep-alive"
	}
	return conn != "close"
}
