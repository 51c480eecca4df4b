package memory

import "sync/atomic"

const inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section.
// Records are owned by a Collector and reused across Enter calls.
type ReaderEpoch struct {
	epoch atomic.Uint64
	inUse atomic.Bool
	next  *ReaderEpoch
	_pad  [40]byte
}

// Exit ends the read section. References obtained inside it must not
// be used afterwards.
func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
	r.inUse.Store(false)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// ReclaimablePool is the ONLY requirement for reclamation.
// It is intentionally type-erased.
type ReclaimablePool interface {
	PutAny(any)
}

// Collector implements epoch-based reclamation.
//
// Retire may be called from any goroutine. Reclaim is serialized
// internally; concurrent callers return immediately.
type Collector struct {
	global  atomic.Uint64
	readers atomic.Pointer[ReaderEpoch]
	retired atomic.Pointer[retired]

	pending    *RetireRing
	reclaiming atomic.Bool
	pool       ReclaimablePool

	every         uint64
	retiredCount  atomic.Uint64
	recycledCount atomic.Uint64
}

// NewCollector creates a collector returning safe objects to pool.
// ringSize bounds how many retirements one Reclaim pass examines and
// must be a power of two. every > 0 triggers an opportunistic Reclaim
// after that many retirements.
func NewCollector(pool ReclaimablePool, ringSize uint64, every uint64) *Collector {
	c := &Collector{
		pending: NewRetireRing(ringSize),
		pool:    pool,
		every:   every,
	}
	c.global.Store(1)
	return c
}

// Enter starts a read section at the current epoch.
func (c *Collector) Enter() *ReaderEpoch {
	for r := c.readers.Load(); r != nil; r = r.next {
		if !r.inUse.Load() && r.inUse.CompareAndSwap(false, true) {
			r.epoch.Store(c.global.Load())
			return r
		}
	}

	r := &ReaderEpoch{}
	r.inUse.Store(true)
	r.epoch.Store(c.global.Load())
	for {
		head := c.readers.Load()
		r.next = head
		if c.readers.CompareAndSwap(head, r) {
			return r
		}
	}
}

// Retire hands obj to the collector. obj must already be unreachable
// for new readers; it is recycled once every older reader has exited.
// Retiring the same object twice is a caller bug.
func (c *Collector) Retire(obj any) {
	n := &retired{obj: obj, epoch: c.global.Load()}
	for {
		head := c.retired.Load()
		n.next = head
		if c.retired.CompareAndSwap(head, n) {
			break
		}
	}
	if cnt := c.retiredCount.Add(1); c.every > 0 && cnt%c.every == 0 {
		c.Reclaim()
	}
}

// Reclaim advances the epoch and recycles every retired object that no
// active reader can still observe. It returns how many were recycled.
func (c *Collector) Reclaim() int {
	if !c.reclaiming.CompareAndSwap(false, true) {
		return 0
	}
	defer c.reclaiming.Store(false)

	c.global.Add(1)
	c.drain()

	min := c.minReaderEpoch()
	freed := 0
	for {
		r := c.pending.Peek()
		if r == nil || r.epoch >= min {
			// FIFO: newer ones aren't safe either
			break
		}
		c.pending.Dequeue()
		c.pool.PutAny(r.obj)
		freed++
	}
	c.recycledCount.Add(uint64(freed))
	return freed
}

// drain moves the shared retire stack into the pending ring in
// retirement order. Whatever does not fit goes back on the stack.
func (c *Collector) drain() {
	batch := c.retired.Swap(nil)

	var fifo *retired
	for batch != nil {
		next := batch.next
		batch.next = fifo
		fifo = batch
		batch = next
	}

	for fifo != nil {
		next := fifo.next
		fifo.next = nil
		if !c.pending.Enqueue(fifo) {
			fifo.next = next
			c.putBack(fifo)
			return
		}
		fifo = next
	}
}

func (c *Collector) putBack(list *retired) {
	for list != nil {
		next := list.next
		for {
			head := c.retired.Load()
			list.next = head
			if c.retired.CompareAndSwap(head, list) {
				break
			}
		}
		list = next
	}
}

func (c *Collector) minReaderEpoch() uint64 {
	min := inactive
	for r := c.readers.Load(); r != nil; r = r.next {
		if v := r.Value(); v < min {
			min = v
		}
	}
	return min
}

// Epoch returns the current global epoch.
func (c *Collector) Epoch() uint64 { return c.global.Load() }

// Retired returns the number of objects ever retired.
func (c *Collector) Retired() uint64 { return c.retiredCount.Load() }

// Recycled returns the number of objects returned to the pool.
func (c *Collector) Recycled() uint64 { return c.recycledCount.Load() }
