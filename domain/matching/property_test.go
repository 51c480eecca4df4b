package matching

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"matchbook/domain/orderbook"
)

type submitted struct {
	instrument uint32
	side       orderbook.Side
	qty        int64
	price      int64
}

func assertUncrossed(t require.TestingT, e *Engine, instrument uint32) {
	v, err := e.Depth(instrument, 1)
	require.NoError(t, err)
	if len(v.Bids) > 0 && len(v.Asks) > 0 {
		assert.True(t, v.Bids[0].Price.LessThan(v.Asks[0].Price),
			"crossed book: bid %s ask %s", v.Bids[0].Price, v.Asks[0].Price)
	}
}

// assertConserved checks that every order's fills plus what still rests
// add up to what was submitted.
func assertConserved(t require.TestingT, e *Engine, instrument uint32, orders map[uint64]submitted, trades []Trade) {
	filled := make(map[uint64]int64)
	for _, tr := range trades {
		assert.Positive(t, tr.Qty)
		filled[tr.BuyOrderID] += tr.Qty
		filled[tr.SellOrderID] += tr.Qty
		assert.Equal(t, orderbook.Buy, orders[tr.BuyOrderID].side)
		assert.Equal(t, orderbook.Sell, orders[tr.SellOrderID].side)
	}

	resting := make(map[uint64]int64)
	v, err := e.Depth(instrument, 0)
	require.NoError(t, err)
	for _, lv := range append(v.Bids, v.Asks...) {
		for _, o := range lv.Orders {
			resting[o.ID] = o.Remaining
		}
	}

	for id, o := range orders {
		assert.Equal(t, o.qty, filled[id]+resting[id], "order %d", id)
	}
}

func TestPropertyMatchingInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e, err := New(1, orderbook.MustLadder("1", "1", "100"))
		require.NoError(rt, err)

		orders := make(map[uint64]submitted)
		var trades []Trade
		n := rapid.IntRange(1, 60).Draw(rt, "orders")
		for range n {
			o := submitted{
				side:  rapid.SampledFrom([]orderbook.Side{orderbook.Buy, orderbook.Sell}).Draw(rt, "side"),
				qty:   rapid.Int64Range(1, 20).Draw(rt, "qty"),
				price: rapid.Int64Range(45, 55).Draw(rt, "price"),
			}
			id, err := e.SubmitTicks(0, o.side, o.qty, o.price)
			require.NoError(rt, err)
			orders[id] = o

			got, err := e.MatchInstrument(0)
			require.NoError(rt, err)
			for _, tr := range got {
				sell, buy := orders[tr.SellOrderID], orders[tr.BuyOrderID]
				assert.Equal(rt, sell.price, tr.Price.IntPart(), "executes at the ask")
				assert.GreaterOrEqual(rt, buy.price, sell.price)
				assert.LessOrEqual(rt, tr.Qty, min(buy.qty, sell.qty))
			}
			trades = append(trades, got...)
			assertUncrossed(rt, e, 0)
		}
		assertConserved(rt, e, 0, orders, trades)
	})
}

func TestConcurrentBrokersConserveQuantity(t *testing.T) {
	const brokers, perBroker = 8, 400
	e := newTestEngine(t, WithReclaimEvery(64), WithRetireRing(256))

	var mu sync.Mutex
	orders := make(map[uint64]submitted)
	var trades []Trade

	var wg sync.WaitGroup
	for b := range brokers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(b), 42))
			for range perBroker {
				o := submitted{
					instrument: uint32(rng.IntN(2)),
					side:       orderbook.Side(rng.IntN(2) + 1),
					qty:        int64(rng.IntN(50) + 1),
					price:      int64(rng.IntN(11) + 45),
				}
				instrument := o.instrument
				id, err := e.SubmitTicks(instrument, o.side, o.qty, o.price)
				if !assert.NoError(t, err) {
					return
				}
				got, err := e.MatchInstrument(instrument)
				assert.NoError(t, err)

				mu.Lock()
				orders[id] = o
				trades = append(trades, got...)
				mu.Unlock()
				if rng.IntN(16) == 0 {
					e.Reclaim()
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	byInstrument := make(map[uint32][]Trade)
	for _, tr := range trades {
		assert.False(t, seen[tr.ID], "trade %d reported twice", tr.ID)
		seen[tr.ID] = true
		byInstrument[tr.Instrument] = append(byInstrument[tr.Instrument], tr)
	}

	total := len(trades)
	for _, instrument := range []uint32{0, 1} {
		extra, err := e.MatchInstrument(instrument)
		require.NoError(t, err)
		total += len(extra)
		byInstrument[instrument] = append(byInstrument[instrument], extra...)
		assertUncrossed(t, e, instrument)
	}

	// Every accepted order, including ones neither traded nor resting.
	require.Len(t, orders, brokers*perBroker)
	for _, instrument := range []uint32{0, 1} {
		mine := make(map[uint64]submitted)
		for id, o := range orders {
			if o.instrument == instrument {
				mine[id] = o
			}
		}
		for _, tr := range byInstrument[instrument] {
			assert.Equal(t, instrument, orders[tr.BuyOrderID].instrument, "trade %d", tr.ID)
			assert.Equal(t, instrument, orders[tr.SellOrderID].instrument, "trade %d", tr.ID)
		}
		assertConserved(t, e, instrument, mine, byInstrument[instrument])
	}

	s := e.Stats()
	assert.Equal(t, uint64(brokers*perBroker), s.OrdersAccepted)
	assert.Equal(t, uint64(total), s.Trades)
	assert.LessOrEqual(t, s.Recycled, s.Retired)
}
