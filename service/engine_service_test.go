package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"matchbook/config"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	"matchbook/infra/outbox"
	"matchbook/snapshot"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig(t testing.TB) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Engine.Universe = 4
	cfg.Engine.TickSize = "0.5"
	cfg.Engine.MinPrice = "0.5"
	cfg.Engine.MaxPrice = "100"
	cfg.Journal.Dir = filepath.Join(dir, "journal")
	cfg.Outbox.Dir = filepath.Join(dir, "outbox")
	cfg.Snapshot.Dir = filepath.Join(dir, "snapshot")
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestService(t testing.TB, cfg *config.AppConfig, extra ...matching.Sink) *EngineService {
	t.Helper()
	svc, err := New(cfg, matching.Names{"ACME", "GLOBEX"}, zaptest.NewLogger(t), extra...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestSubmitMatchWritesEverySink(t *testing.T) {
	cfg := testConfig(t)
	var text bytes.Buffer
	svc := newTestService(t, cfg, &TextSink{W: &text, Names: func(uint32) string { return "ACME" }})
	ctx := context.Background()

	_, err := svc.Submit(ctx, 0, orderbook.Buy, 10, px("50.5"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 0, orderbook.Sell, 4, px("50"))
	require.NoError(t, err)

	trades, err := svc.Match(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(px("50")))

	st := svc.Stats()
	assert.Equal(t, uint64(3), st.JournalSeq, "two orders and a trade")
	assert.Equal(t, 1, st.OutboxPending)
	assert.Equal(t, uint64(2), st.OrdersAccepted)
	assert.Zero(t, st.SinkErrors)

	assert.Equal(t,
		"[ORDER] BUY | Company: ACME | Price: 50.5 | Quantity: 10\n"+
			"[ORDER] SELL | Company: ACME | Price: 50 | Quantity: 4\n"+
			"[TRADE] Company: ACME | Buy @50.5 | Sell @50 | Quantity: 4\n",
		text.String())

	rec, err := svc.Outbox().Get(trades[0].ID)
	require.NoError(t, err)
	var msg codec.TradeMessage
	require.NoError(t, codec.JSON{}.Unmarshal(rec.Payload, &msg))
	assert.Equal(t, "ACME", msg.Name)
	assert.Equal(t, int64(4), msg.Qty)
}

func TestSubmitRejectsPassThrough(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()

	_, err := svc.Submit(ctx, 0, orderbook.Buy, 1, px("50.25"))
	assert.ErrorIs(t, err, matching.ErrInvalidPrice)
	_, err = svc.Submit(ctx, 9, orderbook.Buy, 1, px("50"))
	assert.ErrorIs(t, err, matching.ErrUnknownInstrument)
	_, err = svc.Match(ctx, 9)
	assert.ErrorIs(t, err, matching.ErrUnknownInstrument)

	assert.Zero(t, svc.Stats().JournalSeq)
}

func TestJournalReaderDecodesAuditTrail(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	ctx := context.Background()

	buy, err := svc.Submit(ctx, 1, orderbook.Buy, 3, px("20"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 1, orderbook.Sell, 3, px("19.5"))
	require.NoError(t, err)
	_, err = svc.Match(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	var orders []codec.OrderMessage
	var trades []codec.TradeMessage
	r := &JournalReader{
		Codec: codec.JSON{},
		OnOrder: func(_ uint64, m codec.OrderMessage) error {
			orders = append(orders, m)
			return nil
		},
		OnTrade: func(_ uint64, m codec.TradeMessage) error {
			trades = append(trades, m)
			return nil
		},
	}
	last, err := r.Read(cfg.Journal.Dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	require.Len(t, orders, 2)
	assert.Equal(t, buy, orders[0].ID)
	assert.Equal(t, "GLOBEX", orders[0].Name)
	require.Len(t, trades, 1)
	assert.Equal(t, buy, trades[0].BuyOrderID)
	assert.True(t, trades[0].Price.Equal(px("19.5")))
}

func TestTakeSnapshotPrunesAckedOutbox(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 0, orderbook.Buy, 5, px("10"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 0, orderbook.Sell, 2, px("10"))
	require.NoError(t, err)
	trades, err := svc.Match(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.NoError(t, svc.Outbox().MarkAcked(trades[0].ID))

	snap, err := svc.TakeSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Equal(t, svc.Engine().ID.String(), snap.EngineID)
	require.Len(t, snap.Books, 1)
	assert.Equal(t, 1, snap.Orders())

	n, err := svc.Outbox().Count(outbox.StateAcked)
	require.NoError(t, err)
	assert.Zero(t, n)

	onDisk, err := snapshot.Read(cfg.Snapshot.Dir)
	require.NoError(t, err)
	assert.Equal(t, snap.Seq, onDisk.Seq)
}

func crossOnce(t *testing.T, svc *EngineService, qty int64) matching.Trade {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Submit(ctx, 0, orderbook.Buy, qty, px("10"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 0, orderbook.Sell, qty, px("10"))
	require.NoError(t, err)
	trades, err := svc.Match(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	return trades[0]
}

func outboxQty(t *testing.T, ob *outbox.Outbox, id uint64) (outbox.State, int64) {
	t.Helper()
	rec, err := ob.Get(id)
	require.NoError(t, err)
	var msg codec.TradeMessage
	require.NoError(t, codec.JSON{}.Unmarshal(rec.Payload, &msg))
	return rec.State, msg.Qty
}

func TestRestartKeepsUnpublishedTrades(t *testing.T) {
	cfg := testConfig(t)

	first := newTestService(t, cfg)
	before := crossOnce(t, first, 10)
	require.NoError(t, first.Close())

	second := newTestService(t, cfg)
	after := crossOnce(t, second, 7)
	assert.Greater(t, after.ID, before.ID)

	state, qty := outboxQty(t, second.Outbox(), before.ID)
	assert.Equal(t, outbox.StateNew, state)
	assert.Equal(t, int64(10), qty)
	state, qty = outboxQty(t, second.Outbox(), after.ID)
	assert.Equal(t, outbox.StateNew, state)
	assert.Equal(t, int64(7), qty)

	// Pruning the acked rows must not let ids go back.
	require.NoError(t, second.Outbox().MarkAcked(before.ID))
	require.NoError(t, second.Outbox().MarkAcked(after.ID))
	_, err := second.TakeSnapshot()
	require.NoError(t, err)
	require.NoError(t, second.Close())

	third := newTestService(t, cfg)
	assert.Greater(t, crossOnce(t, third, 3).ID, after.ID)
}

func TestMinimalConfigHasNoCollaborators(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Universe = 2
	svc, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Nil(t, svc.Outbox())
	_, err = svc.TakeSnapshot()
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)

	svc.Start(context.Background())
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}

func TestNewFailsOnUnknownCodec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Codec = "xml"
	_, err := New(cfg, nil, zap.NewNop())
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
}

func BenchmarkSubmit(b *testing.B) {
	cfg := testConfig(b)
	cfg.Outbox.Dir = ""
	svc := newTestService(b, cfg)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		side := orderbook.Buy
		for pb.Next() {
			if _, err := svc.Submit(ctx, 0, side, 1, px("50")); err != nil {
				b.Fatal(err)
			}
			if _, err := svc.Match(ctx, 0); err != nil {
				b.Fatal(err)
			}
			side = 3 - side
		}
	})
}
