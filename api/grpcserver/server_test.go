package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"matchbook/config"
	"matchbook/domain/matching"
	"matchbook/service"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func startServer(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Universe = 2
	cfg.Engine.TickSize = "0.5"
	cfg.Engine.MinPrice = "0.5"
	cfg.Engine.MaxPrice = "100"

	log := zaptest.NewLogger(t)
	svc, err := service.New(cfg, matching.Names{"ACME"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	lis := bufconn.Listen(1 << 20)
	g := NewGRPCServer(NewServer(svc, log))
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestSubmitMatchDepth(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	buy, err := c.Submit(ctx, SubmitRequest{Instrument: 0, Side: "BUY", Price: px("52"), Qty: 5})
	require.NoError(t, err)
	_, err = c.Submit(ctx, SubmitRequest{Instrument: 0, Side: "buy", Price: px("50"), Qty: 5})
	require.NoError(t, err)
	sell, err := c.Submit(ctx, SubmitRequest{Instrument: 0, Side: "SELL", Price: px("49.5"), Qty: 8})
	require.NoError(t, err)
	assert.NotEqual(t, buy.OrderID, sell.OrderID)

	m, err := c.Match(ctx, MatchRequest{Instrument: 0})
	require.NoError(t, err)
	require.Len(t, m.Trades, 2)
	assert.Equal(t, buy.OrderID, m.Trades[0].BuyOrderID)
	assert.Equal(t, "ACME", m.Trades[0].Name)
	assert.True(t, m.Trades[0].Price.Equal(px("49.5")))
	assert.Equal(t, int64(3), m.Trades[1].Qty)

	d, err := c.Depth(ctx, DepthRequest{Instrument: 0})
	require.NoError(t, err)
	assert.Empty(t, d.Asks)
	require.Len(t, d.Bids, 1)
	assert.True(t, d.Bids[0].Price.Equal(px("50")))
	assert.Equal(t, int64(2), d.Bids[0].Qty)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.OrdersAccepted)
	assert.Equal(t, uint64(2), st.Trades)
	assert.Equal(t, uint64(8), st.Volume)
}

func TestErrorCodes(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, SubmitRequest{Side: "BUY", Price: px("50.25"), Qty: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.Submit(ctx, SubmitRequest{Side: "HOLD", Price: px("50"), Qty: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.Submit(ctx, SubmitRequest{Side: "SELL", Price: px("50"), Qty: 0})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.Submit(ctx, SubmitRequest{Instrument: 2, Side: "SELL", Price: px("50"), Qty: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = c.Match(ctx, MatchRequest{Instrument: 7})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRequestIDIsEchoed(t *testing.T) {
	c := startServer(t)

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDHeader, "req-42")
	_, err := c.Stats(ctx, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(requestIDHeader))

	_, err = c.Stats(context.Background(), grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(requestIDHeader), 1)
	assert.Len(t, header.Get(requestIDHeader)[0], 36, "generated uuid")
}
