package memory

import (
	"fmt"
	"sync/atomic"
)

// retired is an object waiting for its grace period, tagged with the
// global epoch observed when it was retired.
type retired struct {
	obj   any
	epoch uint64
	next  *retired
}

// RetireRing is a bounded FIFO of retired objects.
// It has a single consumer and a single producer: the reclaimer
// moves retirements in and recycles them out.
type RetireRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []*retired
	mask  uint64
}

func NewRetireRing(size uint64) *RetireRing {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]*retired, size),
		mask: size - 1,
	}
}

// Enqueue adds an element; returns false if full.
func (r *RetireRing) Enqueue(v *retired) bool {
	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = v
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Peek returns the oldest element without removing it.
func (r *RetireRing) Peek() *retired {
	t := r.tail
	if t == atomic.LoadUint64(&r.head) {
		return nil
	}
	return r.buf[t&r.mask]
}

// Dequeue removes the oldest element; returns nil if empty.
func (r *RetireRing) Dequeue() *retired {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return nil
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = nil
	atomic.StoreUint64(&r.tail, t+1)
	return v
}

func (r *RetireRing) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing) Cap() int { return len(r.buf) }

func (r *RetireRing) String() string {
	return fmt.Sprintf("RetireRing{len=%d, cap=%d, head=%d, tail=%d}",
		r.Len(), r.Cap(), atomic.LoadUint64(&r.head), atomic.LoadUint64(&r.tail))
}
