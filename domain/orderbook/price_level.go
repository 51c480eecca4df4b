package orderbook

import (
	"fmt"
	"sync/atomic"
)

type node struct {
	order *Order
	seq   uint64
	next  atomic.Pointer[node]
}

// PriceLevel is a FIFO queue at a single price.
//
// It is a Michael-Scott queue: head always points at a consumed node
// and the first resting order is head.next. Push links at the tail with
// a CAS and RetireHead unlinks with a CAS on head, so the two ends only
// race among themselves.
type PriceLevel struct {
	Price int64
	Side  Side

	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]
	count atomic.Int64
	stub  node

	retire func(*Order)
}

func (l *PriceLevel) init(side Side, price int64, retire func(*Order)) {
	l.Side = side
	l.Price = price
	l.retire = retire
	l.head.Store(&l.stub)
	l.tail.Store(&l.stub)
}

// Push appends o at the tail. ticket hands out arrival sequence numbers;
// Push stamps o.Seq with the ticket it links under, and only links when
// that ticket is newer than the current tail's, so sequence order and
// queue order agree.
func (l *PriceLevel) Push(o *Order, ticket func() uint64) {
	n := &node{order: o}
	for {
		t := l.tail.Load()
		next := t.next.Load()
		if t != l.tail.Load() {
			continue
		}
		if next != nil {
			l.tail.CompareAndSwap(t, next)
			continue
		}
		seq := ticket()
		if seq <= t.seq {
			continue
		}
		n.seq = seq
		o.Seq = seq
		if t.next.CompareAndSwap(nil, n) {
			l.tail.CompareAndSwap(t, n)
			l.count.Add(1)
			return
		}
	}
}

// PeekHead returns the oldest order, or nil. The caller must be inside
// a read section for as long as it uses the result.
func (l *PriceLevel) PeekHead() *Order {
	n := l.head.Load().next.Load()
	if n == nil {
		return nil
	}
	return n.order
}

// RetireHead unlinks the head if it is still expected. It reports false
// when the head is some other order, usually because a racing caller
// already retired expected. expected must be exhausted.
func (l *PriceLevel) RetireHead(expected *Order) bool {
	for {
		h := l.head.Load()
		n := h.next.Load()
		if n == nil || n.order != expected {
			return false
		}
		if rem := expected.Remaining(); rem != 0 {
			panic(fmt.Sprintf("orderbook: retiring order %d with %d remaining", expected.ID, rem))
		}
		if t := l.tail.Load(); t == h {
			l.tail.CompareAndSwap(t, n)
			continue
		}
		if l.head.CompareAndSwap(h, n) {
			l.count.Add(-1)
			expected.markRetired()
			if l.retire != nil {
				l.retire(expected)
			}
			return true
		}
	}
}

func (l *PriceLevel) IsEmpty() bool {
	return l.head.Load().next.Load() == nil
}

// Len is the number of linked orders, exhausted heads included.
func (l *PriceLevel) Len() int {
	return int(l.count.Load())
}

// Walk visits linked orders oldest first until fn returns false.
// Same read section rule as PeekHead.
func (l *PriceLevel) Walk(fn func(*Order) bool) {
	for n := l.head.Load().next.Load(); n != nil; n = n.next.Load() {
		if !fn(n.order) {
			return
		}
	}
}

func (l *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{%s %d, orders=%d}", l.Side, l.Price, l.Len())
}
