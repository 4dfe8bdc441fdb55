package httpmsg_test

import (
	"bufio"
	"strings"
	"testing"

	"github.com/momentics/netreactor/httpmsg"
)

func TestParseRequestContentLength(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	req, err := httpmsg.ParseRequest(bufio.NewReader(strings.NewReader(raw)), 8192, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(req.Body) != "hello" {
		t.Errorf("unexpected body: %q", req.Body)
	}
	if !req.KeepAlive() {
		t.Error("HTTP/1.1 with no explicit Connection header should keep-alive")
	}
}

func TestParseRequestChunked(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n, worl\r\n1\r\nd\r\n0\r\n\r\n"
	req, err := httpmsg.ParseRequest(bufio.NewReader(strings.NewReader(raw)), 8192, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(req.Body) != "hello, world" {
		t.Errorf("unexpected chunked body: %q", req.Body)
	}
}

func TestParseRequestBodyTooLarge(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\n0123456789"
	_, err := httpmsg.ParseRequest(bufio.NewReader(strings.NewReader(raw)), 8192, 4)
	if err == nil {
		t.Fatal("expected max_body_size to be enforced")
	}
}

func TestRequestConnectionClose(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"
	req, err := httpmsg.ParseRequest(bufio.NewReader(strings.NewReader(raw)), 8192, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.KeepAlive() {
		t.Error("explicit Connection: close must not keep-alive")
	}
}

func TestResponseBytesIncludesContentLength(t *testing.T) {
	resp := httpmsg.NewResponse(200)
	resp.Body = []byte("ok")
	out := string(resp.Bytes())
	if !strings.Contains(out, "Content-Length: 2") {
		t.Errorf("expected Content-Length header, got: %s", out)
	}
	if !strings.HasSuffix(out, "ok") {
		t.Errorf("expected body appended, got: %s", out)
	}
}
