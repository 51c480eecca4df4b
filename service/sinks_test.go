package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
)

type sent struct {
	key, value []byte
	headers    []kafka.Header
	deadline   bool
}

type fakePublisher struct {
	msgs []sent
	err  error
}

func (f *fakePublisher) Send(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	_, ok := ctx.Deadline()
	f.msgs = append(f.msgs, sent{key: key, value: value, headers: headers, deadline: ok})
	return f.err
}

func TestKafkaSinkPublishesOrdersOnly(t *testing.T) {
	pub := &fakePublisher{}
	s := &KafkaSink{
		Producer: pub,
		Codec:    codec.Proto{},
		Names:    func(uint32) string { return "ACME" },
		Timeout:  time.Second,
	}

	require.NoError(t, s.OrderAccepted(matching.OrderEvent{
		ID: 4, Instrument: 12, Side: orderbook.Sell, Price: px("7.5"), Qty: 3,
	}))
	require.NoError(t, s.TradeExecuted(matching.Trade{ID: 1}))

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, []byte("12"), m.key)
	assert.True(t, m.deadline)
	assert.Equal(t, []kafka.Header{{Key: "codec", Value: []byte("proto")}}, m.headers)

	var got codec.OrderMessage
	require.NoError(t, codec.Proto{}.Unmarshal(m.value, &got))
	assert.Equal(t, uint64(4), got.ID)
	assert.Equal(t, "SELL", got.Side)
	assert.True(t, got.Price.Equal(px("7.5")))

	pub.err = errors.New("broker down")
	assert.Error(t, s.OrderAccepted(matching.OrderEvent{ID: 5}))
}
