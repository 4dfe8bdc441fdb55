// File: buffer/recv_region.go
// Package buffer
// Author: momentics <momentics@gmail.com>
//
// RecvRegion implements the receive-side growth policy from spec §4.3:
// the region starts at receive_buffer_initial and doubles whenever a read
// fills it completely, up to receive_buffer_limit. RecvRegion is not
// synchronized: it is used only from the owning session's receive
// goroutine, which supplies the raw read result.

package buffer

// RecvRegion is a growable byte buffer used to stage inbound data before
// the session's frame/message parser consumes it.
type RecvRegion struct {
	buf   []byte
	limit int // 0 means unbounded
}

// NewRecvRegion constructs a region starting at the given initial capacity.
// limit of 0 means the region may grow without bound.
func NewRecvRegion(initial, limit int) *RecvRegion {
	return &RecvRegion{
		buf:   make([]byte, initial),
		limit: limit,
	}
}

// Bytes returns the full underlying buffer, sized to its current capacity;
// callers read into this slice and pass the byte count read to GrowIfFull.
func (r *RecvRegion) Bytes() []byte {
	return r.buf
}

// GrowIfFull doubles the region's capacity when a read filled it entirely
// (n == len(r.buf)), capped at limit. Returns false if growth was needed
// but the region is already at its limit (spec §4.3 edge case: sustained
// large messages).
func (r *RecvRegion) GrowIfFull(n int) bool {
	if n < len(r.buf) {
		return true
	}
	next := len(r.buf) * 2
	if r.limit > 0 && next > r.limit {
		if len(r.buf) >= r.limit {
			return false
		}
		next = r.limit
	}
	grown := make([]byte, next)
	r.buf = grown
	return true
}

// Consume discards the first n bytes of accumulated data, shifting the
// remainder to the front. Used once the parser has extracted a complete
// frame or message.
func (r *RecvRegion) Consume(n int) {
	if n <= 0 {
		return
	}
	copy(r.buf, r.buf[n:])
}
