package grpcserver

import (
	"github.com/shopspring/decimal"

	"matchbook/domain/matching"
	"matchbook/infra/codec"
)

// Messages travel as google.protobuf.Struct; these are their shapes.
// Prices are decimal strings. Ids and quantities are JSON numbers and so
// exact only up to 2^53.

type SubmitRequest struct {
	Instrument uint32          `json:"instrument"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        int64           `json:"qty"`
}

type SubmitResponse struct {
	OrderID uint64 `json:"order_id"`
}

type MatchRequest struct {
	Instrument uint32 `json:"instrument"`
}

type MatchResponse struct {
	Trades []codec.TradeMessage `json:"trades"`
}

type DepthRequest struct {
	Instrument uint32 `json:"instrument"`
	// Levels per side; zero returns all.
	Levels int `json:"levels"`
}

type DepthOrder struct {
	ID        uint64 `json:"id"`
	Seq       uint64 `json:"seq"`
	Qty       int64  `json:"qty"`
	Remaining int64  `json:"remaining"`
}

type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Qty    int64           `json:"qty"`
	Orders []DepthOrder    `json:"orders"`
}

type DepthResponse struct {
	Instrument uint32       `json:"instrument"`
	Name       string       `json:"name"`
	Bids       []DepthLevel `json:"bids"`
	Asks       []DepthLevel `json:"asks"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Books             uint64 `json:"books"`
	OrdersAccepted    uint64 `json:"orders_accepted"`
	OrdersRejected    uint64 `json:"orders_rejected"`
	Trades            uint64 `json:"trades"`
	Volume            uint64 `json:"volume"`
	ContentionRetries uint64 `json:"contention_retries"`
	SinkErrors        uint64 `json:"sink_errors"`
	Retired           uint64 `json:"retired"`
	Recycled          uint64 `json:"recycled"`
	Epoch             uint64 `json:"epoch"`
	JournalSeq        uint64 `json:"journal_seq"`
	OutboxPending     int    `json:"outbox_pending"`
}

func depthResponse(v matching.BookView) DepthResponse {
	return DepthResponse{
		Instrument: v.Instrument,
		Name:       v.Name,
		Bids:       depthLevels(v.Bids),
		Asks:       depthLevels(v.Asks),
	}
}

func depthLevels(in []matching.LevelView) []DepthLevel {
	out := make([]DepthLevel, 0, len(in))
	for _, lv := range in {
		orders := make([]DepthOrder, 0, len(lv.Orders))
		for _, o := range lv.Orders {
			orders = append(orders, DepthOrder(o))
		}
		out = append(out, DepthLevel{Price: lv.Price, Qty: lv.Qty, Orders: orders})
	}
	return out
}
