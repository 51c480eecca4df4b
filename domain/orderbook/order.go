package orderbook

import (
	"fmt"
	"sync/atomic"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// qtyState is an immutable snapshot of an order's remaining quantity.
// Orders swap whole states, so a CAS against a state pointer can never
// succeed on a value that merely looks the same.
type qtyState struct {
	remaining int64
	cross     *crossing // non-nil while a Cross holds the order
}

// Order is a resting limit order. Identity fields are written once by
// Init, before the order is published to a level, and are read-only
// afterwards. Price is in ticks of the book's Ladder.
type Order struct {
	ID         uint64
	Instrument uint32
	Side       Side
	Price      int64
	Qty        int64
	Seq        uint64
	Time       int64

	state   atomic.Pointer[qtyState]
	retired atomic.Bool
}

// Init prepares a pooled order for use. Seq is assigned on Insert.
func (o *Order) Init(id uint64, instrument uint32, side Side, price, qty int64, now int64) {
	o.ID = id
	o.Instrument = instrument
	o.Side = side
	o.Price = price
	o.Qty = qty
	o.Seq = 0
	o.Time = now
	o.state.Store(&qtyState{remaining: qty})
	o.retired.Store(false)
}

// Reset clears the order before it goes back to the pool.
func (o *Order) Reset() {
	o.Init(0, 0, 0, 0, 0, 0)
}

// Observed is a settled view of an order's remaining quantity. It is
// the expected value for a later Cross.
type Observed struct {
	Remaining int64
	state     *qtyState
}

// Observe returns the order's settled remaining quantity, first helping
// any in-flight Cross that holds the order to finish.
func (o *Order) Observe() Observed {
	s := o.settled()
	return Observed{Remaining: s.remaining, state: s}
}

// Remaining is Observe().Remaining.
func (o *Order) Remaining() int64 {
	return o.settled().remaining
}

// Filled is the quantity executed so far.
func (o *Order) Filled() int64 {
	return o.Qty - o.Remaining()
}

// Retired reports whether the order has been unlinked from its level.
func (o *Order) Retired() bool {
	return o.retired.Load()
}

func (o *Order) settled() *qtyState {
	for {
		s := o.state.Load()
		if s.cross == nil {
			return s
		}
		s.cross.help()
	}
}

// markRetired flips the order to retired exactly once.
func (o *Order) markRetired() {
	if !o.retired.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("orderbook: order %d retired twice", o.ID))
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %d/%d@%d #%d", o.Side, o.Remaining(), o.Qty, o.Price, o.ID)
}
