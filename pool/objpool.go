// File: pool/objpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// Generic object pool wrapping sync.Pool, grounded on the teacher's
// pool/objpool.go.

package pool

import "sync"

// ObjectPool is a generic, thread-safe pool for reusable objects.
type ObjectPool[T any] struct {
	pool *sync.Pool
}

// NewObjectPool creates a pool that manufactures new instances with new_.
func NewObjectPool[T any](new_ func() T) *ObjectPool[T] {
	return &ObjectPool[T]{
		pool: &sync.Pool{New: func() any { return new_() }},
	}
}

// Get returns a pooled or freshly constructed instance.
func (p *ObjectPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an instance for reuse.
func (p *ObjectPool[T]) Put(obj T) {
	p.pool.Put(obj)
}
