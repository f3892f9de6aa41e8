package pool_test

import (
	"testing"

	"github.com/momentics/hioload-wrap/pool"
)

func TestReceiveBufferSize(t *testing.T) {
	b := pool.GetReceiveBuffer()
	if len(b) != pool.ReceiveBufferSize {
		t.Fatalf("len = %d, want %d", len(b), pool.ReceiveBufferSize)
	}
	pool.PutReceiveBuffer(b[:10])
	b2 := pool.GetReceiveBuffer()
	if len(b2) != pool.ReceiveBufferSize {
		t.Fatalf("recycled len = %d, want %d", len(b2), pool.ReceiveBufferSize)
	}
}

func TestPutReceiveBufferDropsForeignSizes(t *testing.T) {
	pool.PutReceiveBuffer(make([]byte, 16))
	if b := pool.GetReceiveBuffer(); len(b) != pool.ReceiveBufferSize {
		t.Fatalf("len = %d after foreign put", len(b))
	}
}

func TestSyncPool(t *testing.T) {
	calls := 0
	p := pool.NewSyncPool(func() int { calls++; return 7 })
	if v := p.Get(); v != 7 {
		t.Fatalf("Get = %d", v)
	}
	if calls == 0 {
		t.Fatal("creator not called")
	}
}
