package snapshot

import (
	"time"

	"github.com/shopspring/decimal"
)

type Snapshot struct {
	EngineID string
	Seq      uint64
	Created  time.Time
	Books    []BookEntry
}

type BookEntry struct {
	Instrument uint32
	Name       string
	Bids       []LevelEntry
	Asks       []LevelEntry
}

type LevelEntry struct {
	Price  decimal.Decimal
	Orders []OrderEntry
}

type OrderEntry struct {
	ID        uint64
	Seq       uint64
	Qty       int64
	Remaining int64
}

// Orders counts the resting orders in s.
func (s *Snapshot) Orders() int {
	n := 0
	for _, b := range s.Books {
		for _, l := range b.Bids {
			n += len(l.Orders)
		}
		for _, l := range b.Asks {
			n += len(l.Orders)
		}
	}
	return n
}
