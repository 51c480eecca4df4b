package matching

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
)

// OrderEvent records an accepted order as it was submitted.
type OrderEvent struct {
	ID         uint64
	Instrument uint32
	Side       orderbook.Side
	Price      decimal.Decimal
	Qty        int64
	Seq        uint64
	Time       time.Time
}

// Trade is one execution. Price is the resting ask's price; BuyPrice is
// the bid's limit and is informational only.
type Trade struct {
	ID          uint64
	Instrument  uint32
	Price       decimal.Decimal
	BuyPrice    decimal.Decimal
	Qty         int64
	BuyOrderID  uint64
	SellOrderID uint64
	Time        time.Time
}

// Sink receives engine events. Calls come from whichever goroutine
// submitted or matched, so implementations must be safe for concurrent
// use. Trades of one MatchInstrument call arrive in execution order.
type Sink interface {
	OrderAccepted(OrderEvent) error
	TradeExecuted(Trade) error
}

type NopSink struct{}

func (NopSink) OrderAccepted(OrderEvent) error { return nil }
func (NopSink) TradeExecuted(Trade) error      { return nil }

// MultiSink fans every event out to all sinks, in order. One failing
// sink does not stop the others.
type MultiSink []Sink

func (m MultiSink) OrderAccepted(ev OrderEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.OrderAccepted(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) TradeExecuted(t Trade) error {
	var errs []error
	for _, s := range m {
		if err := s.TradeExecuted(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Directory names instruments. It is consulted for display only.
type Directory interface {
	Name(instrument uint32) (string, bool)
}

// Names is a Directory backed by a slice indexed by instrument id.
type Names []string

func (n Names) Name(instrument uint32) (string, bool) {
	if int(instrument) >= len(n) || n[instrument] == "" {
		return "", false
	}
	return n[instrument], true
}
