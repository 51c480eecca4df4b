package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"matchbook/domain/matching"
	"matchbook/infra/codec"
	"matchbook/infra/journal"
	mbkafka "matchbook/infra/kafka"
	"matchbook/infra/outbox"
)

// Namer resolves instrument display names.
type Namer func(instrument uint32) string

// JournalSink appends every order and trade to the audit journal.
type JournalSink struct {
	Journal *journal.Journal
	Codec   codec.Codec
	Names   Namer
}

func (s *JournalSink) OrderAccepted(ev matching.OrderEvent) error {
	b, err := s.Codec.Marshal(codec.Order(ev, s.Names(ev.Instrument)))
	if err != nil {
		return fmt.Errorf("journal sink: %w", err)
	}
	_, err = s.Journal.Append(journal.RecordOrder, b)
	return err
}

func (s *JournalSink) TradeExecuted(t matching.Trade) error {
	b, err := s.Codec.Marshal(codec.Trade(t, s.Names(t.Instrument)))
	if err != nil {
		return fmt.Errorf("journal sink: %w", err)
	}
	_, err = s.Journal.Append(journal.RecordTrade, b)
	return err
}

// OutboxSink stores trades for the broadcaster. Orders are ignored.
type OutboxSink struct {
	Outbox *outbox.Outbox
	Codec  codec.Codec
	Names  Namer
}

func (s *OutboxSink) OrderAccepted(matching.OrderEvent) error { return nil }

func (s *OutboxSink) TradeExecuted(t matching.Trade) error {
	b, err := s.Codec.Marshal(codec.Trade(t, s.Names(t.Instrument)))
	if err != nil {
		return fmt.Errorf("outbox sink: %w", err)
	}
	return s.Outbox.PutNew(t.ID, b)
}

type orderPublisher interface {
	Send(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// KafkaSink publishes accepted orders, keyed by instrument so each
// instrument's orders stay in one partition. Trades are ignored.
type KafkaSink struct {
	Producer orderPublisher
	Codec    codec.Codec
	Names    Namer
	Timeout  time.Duration
}

var _ orderPublisher = (*mbkafka.Producer)(nil)

func (s *KafkaSink) OrderAccepted(ev matching.OrderEvent) error {
	b, err := s.Codec.Marshal(codec.Order(ev, s.Names(ev.Instrument)))
	if err != nil {
		return fmt.Errorf("kafka sink: %w", err)
	}
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	key := strconv.FormatUint(uint64(ev.Instrument), 10)
	return s.Producer.Send(ctx, []byte(key), b, kafka.Header{Key: "codec", Value: []byte(s.Codec.Name())})
}

func (s *KafkaSink) TradeExecuted(matching.Trade) error { return nil }

// TextSink writes the human readable [ORDER]/[TRADE] lines.
type TextSink struct {
	mu    sync.Mutex
	W     io.Writer
	Names Namer
}

func (s *TextSink) OrderAccepted(ev matching.OrderEvent) error {
	return s.line(codec.FormatOrder(codec.Order(ev, s.Names(ev.Instrument))))
}

func (s *TextSink) TradeExecuted(t matching.Trade) error {
	return s.line(codec.FormatTrade(codec.Trade(t, s.Names(t.Instrument))))
}

func (s *TextSink) line(l string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.W, l+"\n")
	return err
}
