package orderbook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook(retire func(*Order)) *OrderBook {
	var tk tickets
	return NewOrderBook(7, MustLadder("1", "1", "100"), tk.next, retire)
}

func TestInsertAndBestPrices(t *testing.T) {
	book := newTestBook(nil)

	_, ok := book.BestBid()
	assert.False(t, ok)
	_, ok = book.BestAsk()
	assert.False(t, ok)

	require.NoError(t, book.Insert(newOrder(1, Buy, 50, 5)))
	require.NoError(t, book.Insert(newOrder(2, Buy, 52, 5)))
	require.NoError(t, book.Insert(newOrder(3, Sell, 60, 5)))
	require.NoError(t, book.Insert(newOrder(4, Sell, 55, 5)))

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(52), bid.Price)
	assert.Equal(t, Buy, bid.Side)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(55), ask.Price)
	assert.Equal(t, Sell, ask.Side)
}

func TestInsertOutsideLadder(t *testing.T) {
	book := newTestBook(nil)
	assert.ErrorIs(t, book.Insert(newOrder(1, Buy, 0, 5)), ErrInvalidPrice)
	assert.ErrorIs(t, book.Insert(newOrder(2, Sell, 101, 5)), ErrInvalidPrice)

	_, ok := book.BestBid()
	assert.False(t, ok)
	_, ok = book.BestAsk()
	assert.False(t, ok)
}

func TestInsertWrongInstrumentPanics(t *testing.T) {
	book := newTestBook(nil)
	o := &Order{}
	o.Init(1, 8, Buy, 50, 1, 0)
	assert.Panics(t, func() { _ = book.Insert(o) })
}

func TestBestBidSkipsEmptiedLevel(t *testing.T) {
	var retired []*Order
	book := newTestBook(func(o *Order) { retired = append(retired, o) })

	hi, lo := newOrder(1, Buy, 60, 2), newOrder(2, Buy, 40, 2)
	require.NoError(t, book.Insert(hi))
	require.NoError(t, book.Insert(lo))

	exhaust(t, hi)
	require.True(t, book.Level(Buy, 60).RetireHead(hi))
	assert.Equal(t, []*Order{hi}, retired)

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(40), bid.Price)
}

func TestWalkOrder(t *testing.T) {
	book := newTestBook(nil)
	for i, p := range []int64{30, 10, 20} {
		require.NoError(t, book.Insert(newOrder(uint64(i+1), Buy, p, 1)))
		require.NoError(t, book.Insert(newOrder(uint64(i+10), Sell, p+50, 1)))
	}

	var bids, asks []int64
	book.BidsWalk(func(l *PriceLevel) bool {
		bids = append(bids, l.Price)
		return true
	})
	book.AsksWalk(func(l *PriceLevel) bool {
		asks = append(asks, l.Price)
		return true
	})
	assert.Equal(t, []int64{30, 20, 10}, bids)
	assert.Equal(t, []int64{60, 70, 80}, asks)

	var first []int64
	book.AsksWalk(func(l *PriceLevel) bool {
		first = append(first, l.Price)
		return false
	})
	assert.Equal(t, []int64{60}, first)
}

func TestLevelLookup(t *testing.T) {
	book := newTestBook(nil)
	assert.Nil(t, book.Level(Buy, 0))
	assert.Nil(t, book.Level(Sell, 101))
	assert.Nil(t, book.Level(Side(9), 50))

	l := book.Level(Sell, 100)
	require.NotNil(t, l)
	assert.Equal(t, int64(100), l.Price)
	assert.True(t, l.IsEmpty())
}

func TestConcurrentInsertAcrossLevels(t *testing.T) {
	book := newTestBook(nil)
	var wg sync.WaitGroup
	for p := int64(1); p <= 100; p++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = book.Insert(newOrder(uint64(p), Buy, p, 1))
		}()
		go func() {
			defer wg.Done()
			_ = book.Insert(newOrder(uint64(p+100), Sell, p, 1))
		}()
	}
	wg.Wait()

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(100), bid.Price)
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(1), ask.Price)

	n := 0
	book.BidsWalk(func(l *PriceLevel) bool {
		n += l.Len()
		return true
	})
	assert.Equal(t, 100, n)
}
