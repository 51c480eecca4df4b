package orderbook

import (
	"fmt"
	"sync/atomic"
)

const (
	undecided int32 = iota
	committed
	aborted
)

// crossing is the descriptor of a two-order fill in flight.
//
// The buy order is held first, then the sell order; a goroutine that
// finds either order held helps the crossing to a decision instead of
// waiting for it. Every order state involved is precomputed, so all
// helpers race to install the same pointers and each transition
// happens once.
type crossing struct {
	buy, sell *Order
	qty       int64
	status    atomic.Int32

	buyFrom, sellFrom *qtyState
	buyHeld, sellHeld *qtyState
	buyTo, sellTo     *qtyState
}

// Cross debits qty from both orders as a single atomic step, provided
// neither changed since it was observed. It reports false on contention
// and leaves both orders exactly as they were.
func Cross(buy, sell *Order, b, s Observed, qty int64) bool {
	if qty <= 0 || qty > b.Remaining || qty > s.Remaining {
		panic(fmt.Sprintf("orderbook: cross of %d against remaining %d/%d", qty, b.Remaining, s.Remaining))
	}
	if buy.Side != Buy || sell.Side != Sell {
		panic(fmt.Sprintf("orderbook: cross of %s against %s", buy.Side, sell.Side))
	}

	c := &crossing{
		buy:      buy,
		sell:     sell,
		qty:      qty,
		buyFrom:  b.state,
		sellFrom: s.state,
		buyTo:    &qtyState{remaining: b.Remaining - qty},
		sellTo:   &qtyState{remaining: s.Remaining - qty},
	}
	c.buyHeld = &qtyState{remaining: b.Remaining, cross: c}
	c.sellHeld = &qtyState{remaining: s.Remaining, cross: c}

	if !buy.state.CompareAndSwap(b.state, c.buyHeld) {
		return false
	}
	c.help()
	return c.status.Load() == committed
}

func (c *crossing) help() {
	c.holdSell()
	c.release()
}

// holdSell installs the crossing on the sell order and decides it.
func (c *crossing) holdSell() {
	for c.status.Load() == undecided {
		cur := c.sell.state.Load()
		switch {
		case cur == c.sellHeld:
			c.status.CompareAndSwap(undecided, committed)
		case cur == c.sellFrom:
			if c.sell.state.CompareAndSwap(cur, c.sellHeld) {
				c.status.CompareAndSwap(undecided, committed)
			}
		case cur.cross != nil:
			// another crossing already holds both its orders
			cur.cross.help()
		default:
			c.status.CompareAndSwap(undecided, aborted)
		}
	}
}

// release moves both orders off the crossing, to the debited states on
// commit or back to the observed ones on abort.
func (c *crossing) release() {
	buyTo, sellTo := c.buyFrom, c.sellFrom
	if c.status.Load() == committed {
		buyTo, sellTo = c.buyTo, c.sellTo
	}
	c.buy.state.CompareAndSwap(c.buyHeld, buyTo)
	c.sell.state.CompareAndSwap(c.sellHeld, sellTo)
}
