package ws_test

import (
	"testing"

	"github.com/momentics/netreactor/ws"
)

// TestAcceptKeyRFCVector verifies the canonical RFC 6455 §1.3 example.
func TestAcceptKeyRFCVector(t *testing.T) {
	got := ws.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey mismatch: got %q want %q", got, want)
	}
}

func TestNewClientKeyIsUnique(t *testing.T) {
	a, err := ws.NewClientKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ws.NewClientKey()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected two independently generated keys to differ")
	}
}
