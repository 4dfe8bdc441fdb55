// File: pool/bytepool.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// BytePool is a sync.Pool-backed reusable []byte allocator, grounded on
// the teacher's pool/bufferpool_linux.go class-of-size pooling but
// simplified to a single size class per pool instance (a session's
// receive region grows geometrically, see buffer.RecvRegion).

package pool

import "sync"

// BytePool hands out byte slices of at least a minimum capacity and
// recycles them on Put. Slices returned to Put with a different capacity
// than they were acquired at are still accepted; the pool only ever grows
// what it hands back out.
type BytePool struct {
	minCap int
	pool   sync.Pool
}

// NewBytePool constructs a pool whose Get() never returns a slice smaller
// than minCap.
func NewBytePool(minCap int) *BytePool {
	p := &BytePool{minCap: minCap}
	p.pool.New = func() any {
		return make([]byte, 0, minCap)
	}
	return p
}

// Get returns a zero-length slice with capacity >= max(minCap, hint).
func (p *BytePool) Get(hint int) []byte {
	buf := p.pool.Get().([]byte)
	want := hint
	if want < p.minCap {
		want = p.minCap
	}
	if cap(buf) < want {
		return make([]byte, 0, want)
	}
	return buf[:0]
}

// Put returns buf to the pool for reuse.
func (p *BytePool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	p.pool.Put(buf[:0])
}
