package codec

import (
	"time"

	"github.com/shopspring/decimal"

	"matchbook/domain/matching"
)

const Version = 1

const (
	TypeOrder = "order"
	TypeTrade = "trade"
)

type OrderMessage struct {
	V          int             `json:"v"`
	Type       string          `json:"type"`
	ID         uint64          `json:"id"`
	Instrument uint32          `json:"instrument"`
	Name       string          `json:"name"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        int64           `json:"qty"`
	Seq        uint64          `json:"seq"`
	Time       time.Time       `json:"time"`
}

type TradeMessage struct {
	V           int             `json:"v"`
	Type        string          `json:"type"`
	ID          uint64          `json:"id"`
	Instrument  uint32          `json:"instrument"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	Qty         int64           `json:"qty"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Time        time.Time       `json:"time"`
}

func Order(ev matching.OrderEvent, name string) OrderMessage {
	return OrderMessage{
		V:          Version,
		Type:       TypeOrder,
		ID:         ev.ID,
		Instrument: ev.Instrument,
		Name:       name,
		Side:       ev.Side.String(),
		Price:      ev.Price,
		Qty:        ev.Qty,
		Seq:        ev.Seq,
		Time:       ev.Time,
	}
}

func Trade(t matching.Trade, name string) TradeMessage {
	return TradeMessage{
		V:           Version,
		Type:        TypeTrade,
		ID:          t.ID,
		Instrument:  t.Instrument,
		Name:        name,
		Price:       t.Price,
		BuyPrice:    t.BuyPrice,
		Qty:         t.Qty,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Time:        t.Time,
	}
}
