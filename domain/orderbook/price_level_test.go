package orderbook

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickets struct{ n atomic.Uint64 }

func (t *tickets) next() uint64 { return t.n.Add(1) }

func newOrder(id uint64, side Side, price, qty int64) *Order {
	o := &Order{}
	o.Init(id, 7, side, price, qty, 0)
	return o
}

func newLevel(side Side, price int64, retire func(*Order)) *PriceLevel {
	l := &PriceLevel{}
	l.init(side, price, retire)
	return l
}

// exhaust fills o completely against a throwaway counter order.
func exhaust(t *testing.T, o *Order) {
	t.Helper()
	side := Sell
	if o.Side == Sell {
		side = Buy
	}
	other := newOrder(0, side, o.Price, o.Remaining())
	buy, sell := o, other
	if o.Side == Sell {
		buy, sell = other, o
	}
	require.True(t, Cross(buy, sell, buy.Observe(), sell.Observe(), o.Remaining()))
}

func TestPriceLevelFIFO(t *testing.T) {
	var tk tickets
	l := newLevel(Buy, 500, nil)
	assert.True(t, l.IsEmpty())
	assert.Nil(t, l.PeekHead())

	a, b, c := newOrder(1, Buy, 500, 1), newOrder(2, Buy, 500, 1), newOrder(3, Buy, 500, 1)
	l.Push(a, tk.next)
	l.Push(b, tk.next)
	l.Push(c, tk.next)

	assert.False(t, l.IsEmpty())
	assert.Equal(t, 3, l.Len())
	assert.Less(t, a.Seq, b.Seq)
	assert.Less(t, b.Seq, c.Seq)

	var got []uint64
	l.Walk(func(o *Order) bool {
		got = append(got, o.ID)
		return true
	})
	assert.Equal(t, []uint64{1, 2, 3}, got)

	for _, o := range []*Order{a, b, c} {
		require.Same(t, o, l.PeekHead())
		exhaust(t, o)
		require.True(t, l.RetireHead(o))
		assert.True(t, o.Retired())
	}
	assert.True(t, l.IsEmpty())
	assert.Equal(t, 0, l.Len())
}

func TestRetireHeadWrongOrder(t *testing.T) {
	var tk tickets
	l := newLevel(Sell, 500, nil)
	a, b := newOrder(1, Sell, 500, 1), newOrder(2, Sell, 500, 1)
	l.Push(a, tk.next)
	l.Push(b, tk.next)
	exhaust(t, b)

	assert.False(t, l.RetireHead(b), "b is not the head")
	assert.False(t, b.Retired())
	assert.Same(t, a, l.PeekHead())
}

func TestRetireHeadWithRemainingPanics(t *testing.T) {
	var tk tickets
	l := newLevel(Buy, 500, nil)
	a := newOrder(1, Buy, 500, 5)
	l.Push(a, tk.next)

	assert.Panics(t, func() { l.RetireHead(a) })
}

func TestPushSkipsStaleTicket(t *testing.T) {
	l := newLevel(Buy, 500, nil)
	first := newOrder(1, Buy, 500, 1)
	l.Push(first, func() uint64 { return 10 })

	// a ticket older than the tail must not be linked under
	issued := []uint64{4, 9, 11}
	second := newOrder(2, Buy, 500, 1)
	l.Push(second, func() uint64 {
		v := issued[0]
		issued = issued[1:]
		return v
	})
	assert.Equal(t, uint64(11), second.Seq)
}

func TestConcurrentPushKeepsSequenceOrder(t *testing.T) {
	const workers, perWorker = 8, 500
	var tk tickets
	l := newLevel(Buy, 500, nil)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				l.Push(newOrder(uint64(w*perWorker+i+1), Buy, 500, 1), tk.next)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, l.Len())
	seen := make(map[uint64]bool)
	var last uint64
	l.Walk(func(o *Order) bool {
		assert.Greater(t, o.Seq, last)
		last = o.Seq
		assert.False(t, seen[o.ID], "order %d linked twice", o.ID)
		seen[o.ID] = true
		return true
	})
	assert.Len(t, seen, workers*perWorker)
}

func TestConcurrentRetireHeadSucceedsOnce(t *testing.T) {
	var tk tickets
	var hooked atomic.Int32
	l := newLevel(Sell, 500, func(*Order) { hooked.Add(1) })
	a, b := newOrder(1, Sell, 500, 3), newOrder(2, Sell, 500, 3)
	l.Push(a, tk.next)
	l.Push(b, tk.next)
	exhaust(t, a)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.RetireHead(a) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), hooked.Load())
	assert.Same(t, b, l.PeekHead())
	assert.Equal(t, 1, l.Len())
}

func TestRetireLastThenPush(t *testing.T) {
	var tk tickets
	l := newLevel(Buy, 500, nil)
	a := newOrder(1, Buy, 500, 1)
	l.Push(a, tk.next)
	exhaust(t, a)
	require.True(t, l.RetireHead(a))
	assert.True(t, l.IsEmpty())

	b := newOrder(2, Buy, 500, 1)
	l.Push(b, tk.next)
	assert.Same(t, b, l.PeekHead())
	assert.Greater(t, b.Seq, a.Seq)
}
