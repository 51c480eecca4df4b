package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
)

type OrderView struct {
	ID        uint64
	Seq       uint64
	Qty       int64
	Remaining int64
}

type LevelView struct {
	Price  decimal.Decimal
	Qty    int64
	Orders []OrderView
}

// BookView is a copy of the resting orders of one instrument, best
// levels first. It is read level by level while trading continues, so
// it is not one point in time.
type BookView struct {
	Instrument uint32
	Name       string
	Bids       []LevelView
	Asks       []LevelView
}

// Depth copies up to levels price levels per side; levels <= 0 means
// all of them. Exhausted orders still awaiting retirement are left out.
func (e *Engine) Depth(instrument uint32, levels int) (BookView, error) {
	if int(instrument) >= len(e.books) {
		return BookView{}, fmt.Errorf("%w: %d not in [0, %d)", ErrUnknownInstrument, instrument, len(e.books))
	}
	v := BookView{Instrument: instrument, Name: e.InstrumentName(instrument)}
	book := e.books[instrument].Load()
	if book == nil {
		return v, nil
	}

	r := e.gc.Enter()
	defer r.Exit()

	v.Bids = e.collect(book.BidsWalk, levels)
	v.Asks = e.collect(book.AsksWalk, levels)
	return v, nil
}

func (e *Engine) collect(walk func(func(*orderbook.PriceLevel) bool), levels int) []LevelView {
	var out []LevelView
	walk(func(l *orderbook.PriceLevel) bool {
		lv := LevelView{Price: e.ladder.Price(l.Price)}
		l.Walk(func(o *orderbook.Order) bool {
			rem := o.Remaining()
			if rem == 0 {
				return true
			}
			lv.Qty += rem
			lv.Orders = append(lv.Orders, OrderView{ID: o.ID, Seq: o.Seq, Qty: o.Qty, Remaining: rem})
			return true
		})
		if len(lv.Orders) == 0 {
			return true
		}
		out = append(out, lv)
		return levels <= 0 || len(out) < levels
	})
	return out
}
