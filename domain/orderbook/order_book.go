package orderbook

import (
	"fmt"
	"sync/atomic"
)

// OrderBook holds both sides of one instrument over a fixed Ladder.
// Every level is allocated up front; nothing is created while trading.
type OrderBook struct {
	Instrument uint32

	ladder Ladder
	bids   []PriceLevel
	asks   []PriceLevel
	ticket func() uint64

	// Scan bounds. bidHigh only rises and askLow only falls; both are
	// moved before an order is linked so a scan never starts past it.
	bidHigh atomic.Int64
	askLow  atomic.Int64
}

// NewOrderBook allocates the levels for ladder. ticket supplies arrival
// sequence numbers and retire, if not nil, receives every order
// unlinked by RetireHead.
func NewOrderBook(instrument uint32, ladder Ladder, ticket func() uint64, retire func(*Order)) *OrderBook {
	n := ladder.Levels()
	b := &OrderBook{
		Instrument: instrument,
		ladder:     ladder,
		bids:       make([]PriceLevel, n),
		asks:       make([]PriceLevel, n),
		ticket:     ticket,
	}
	for i := range n {
		tick := ladder.MinTick + int64(i)
		b.bids[i].init(Buy, tick, retire)
		b.asks[i].init(Sell, tick, retire)
	}
	b.bidHigh.Store(-1)
	b.askLow.Store(int64(n))
	return b
}

func (b *OrderBook) Ladder() Ladder { return b.ladder }

// Insert links o at the tail of its level.
func (b *OrderBook) Insert(o *Order) error {
	if o.Instrument != b.Instrument {
		panic(fmt.Sprintf("orderbook: order %d for instrument %d inserted into book %d", o.ID, o.Instrument, b.Instrument))
	}
	if !b.ladder.Contains(o.Price) {
		return fmt.Errorf("%w: tick %d outside [%d, %d]", ErrInvalidPrice, o.Price, b.ladder.MinTick, b.ladder.MaxTick)
	}
	i := int64(b.ladder.index(o.Price))

	switch o.Side {
	case Buy:
		raise(&b.bidHigh, i)
		b.bids[i].Push(o, b.ticket)
	case Sell:
		lower(&b.askLow, i)
		b.asks[i].Push(o, b.ticket)
	default:
		panic(fmt.Sprintf("orderbook: order %d has side %s", o.ID, o.Side))
	}
	return nil
}

// BestBid returns the highest non-empty bid level. The level may empty
// again before the caller looks at it.
func (b *OrderBook) BestBid() (*PriceLevel, bool) {
	for i := b.bidHigh.Load(); i >= 0; i-- {
		if !b.bids[i].IsEmpty() {
			return &b.bids[i], true
		}
	}
	return nil, false
}

// BestAsk returns the lowest non-empty ask level.
func (b *OrderBook) BestAsk() (*PriceLevel, bool) {
	n := int64(len(b.asks))
	for i := b.askLow.Load(); i < n; i++ {
		if !b.asks[i].IsEmpty() {
			return &b.asks[i], true
		}
	}
	return nil, false
}

// Level returns the level for side at tick, or nil off the ladder.
func (b *OrderBook) Level(side Side, tick int64) *PriceLevel {
	if !b.ladder.Contains(tick) {
		return nil
	}
	i := b.ladder.index(tick)
	switch side {
	case Buy:
		return &b.bids[i]
	case Sell:
		return &b.asks[i]
	}
	return nil
}

// BidsWalk visits non-empty bid levels best first until fn returns false.
func (b *OrderBook) BidsWalk(fn func(*PriceLevel) bool) {
	for i := b.bidHigh.Load(); i >= 0; i-- {
		if b.bids[i].IsEmpty() {
			continue
		}
		if !fn(&b.bids[i]) {
			return
		}
	}
}

// AsksWalk visits non-empty ask levels best first until fn returns false.
func (b *OrderBook) AsksWalk(fn func(*PriceLevel) bool) {
	n := int64(len(b.asks))
	for i := b.askLow.Load(); i < n; i++ {
		if b.asks[i].IsEmpty() {
			continue
		}
		if !fn(&b.asks[i]) {
			return
		}
	}
}

func raise(v *atomic.Int64, to int64) {
	for {
		cur := v.Load()
		if cur >= to || v.CompareAndSwap(cur, to) {
			return
		}
	}
}

func lower(v *atomic.Int64, to int64) {
	for {
		cur := v.Load()
		if cur <= to || v.CompareAndSwap(cur, to) {
			return
		}
	}
}
