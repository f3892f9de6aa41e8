// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
	pool *sync.Pool
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		pool: &sync.Pool{New: func() any { return creator() }},
	}
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}

// ReceiveBufferSize is the size of the scratch buffer each reading handle
// owns. It also bounds a single UDP datagram.
const ReceiveBufferSize = 64 * 1024

var receiveBuffers = NewSyncPool(func() *[]byte {
	b := make([]byte, ReceiveBufferSize)
	return &b
})

// GetReceiveBuffer returns a ReceiveBufferSize scratch buffer.
func GetReceiveBuffer() []byte {
	return *receiveBuffers.Get()
}

// PutReceiveBuffer recycles a buffer obtained from GetReceiveBuffer.
// Buffers of any other size are dropped.
func PutReceiveBuffer(b []byte) {
	if cap(b) != ReceiveBufferSize {
		return
	}
	b = b[:ReceiveBufferSize]
	receiveBuffers.Put(&b)
}
