package buffer_test

import (
	"testing"

	"github.com/momentics/netreactor/buffer"
)

func TestSendRegionSwapsOnDrain(t *testing.T) {
	r := buffer.NewSendRegion(0)
	if !r.Append([]byte("abc")) {
		t.Fatal("append should succeed with no high-water mark")
	}
	chunk := r.Ready()
	if string(chunk) != "abc" {
		t.Fatalf("unexpected ready chunk: %q", chunk)
	}
	r.Advance(len(chunk))
	if !r.Empty() {
		t.Fatal("expected region empty after full advance")
	}

	// Append twice after the full drain, then drain again: the region
	// must end up empty.
	r.Append([]byte("x"))
	r.Append([]byte("y"))
	first := r.Ready()
	r.Advance(len(first))
	if !r.Empty() {
		t.Fatal("expected region empty after draining the swap")
	}
}

func TestSendRegionOverflow(t *testing.T) {
	r := buffer.NewSendRegion(4)
	if !r.Append([]byte("abcd")) {
		t.Fatal("append at exactly the high-water mark should succeed")
	}
	if r.Append([]byte("e")) {
		t.Fatal("append past the high-water mark should fail")
	}
	if !r.ConsumeOverflow() {
		t.Fatal("expected overflow flag to be set")
	}
	if r.ConsumeOverflow() {
		t.Fatal("overflow flag must clear after being consumed once")
	}
}

func TestRecvRegionGrowth(t *testing.T) {
	r := buffer.NewRecvRegion(4, 16)
	if !r.GrowIfFull(4) {
		t.Fatal("growth within limit should succeed")
	}
	if len(r.Bytes()) != 8 {
		t.Fatalf("expected doubled capacity 8, got %d", len(r.Bytes()))
	}
	if !r.GrowIfFull(8) {
		t.Fatal("second growth within limit should succeed")
	}
	if len(r.Bytes()) != 16 {
		t.Fatalf("expected capped capacity 16, got %d", len(r.Bytes()))
	}
	if r.GrowIfFull(16) {
		t.Fatal("growth past the limit should fail")
	}
}

func TestRecvRegionNoGrowthWhenNotFull(t *testing.T) {
	r := buffer.NewRecvRegion(8, 0)
	if !r.GrowIfFull(3) {
		t.Fatal("partial read should never require growth")
	}
	if len(r.Bytes()) != 8 {
		t.Fatalf("expected unchanged capacity 8, got %d", len(r.Bytes()))
	}
}
