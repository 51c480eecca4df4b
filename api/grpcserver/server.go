package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	"matchbook/infra/logging"
	"matchbook/service"
)

// Backend is what the server needs from service.EngineService.
type Backend interface {
	Submit(ctx context.Context, instrument uint32, side orderbook.Side, qty int64, price decimal.Decimal) (uint64, error)
	Match(ctx context.Context, instrument uint32) ([]matching.Trade, error)
	Depth(instrument uint32, levels int) (matching.BookView, error)
	Stats() service.Stats
	InstrumentName(instrument uint32) string
}

var _ Backend = (*service.EngineService)(nil)

// Server adapts the engine service to gRPC.
type Server struct {
	svc Backend
	log *zap.Logger
}

func NewServer(svc Backend, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// NewGRPCServer returns a grpc.Server with the Matchbook service and
// request logging installed.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(srv.requestInterceptor))
	g := grpc.NewServer(opts...)
	RegisterMatchbookServer(g, srv)
	return g
}

// -------------------- Commands --------------------

func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitRequest
	if err := codec.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "submit: %v", err)
	}

	id, err := s.svc.Submit(ctx, req.Instrument, toSide(req.Side), req.Qty, req.Price)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(SubmitResponse{OrderID: id})
}

func (s *Server) Match(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req MatchRequest
	if err := codec.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "match: %v", err)
	}

	trades, err := s.svc.Match(ctx, req.Instrument)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := MatchResponse{Trades: make([]codec.TradeMessage, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, codec.Trade(t, s.svc.InstrumentName(t.Instrument)))
	}
	return reply(resp)
}

// -------------------- Queries --------------------

func (s *Server) Depth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DepthRequest
	if err := codec.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "depth: %v", err)
	}

	v, err := s.svc.Depth(req.Instrument, req.Levels)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(depthResponse(v))
}

func (s *Server) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.svc.Stats()
	return reply(StatsResponse{
		Books:             st.Books,
		OrdersAccepted:    st.OrdersAccepted,
		OrdersRejected:    st.OrdersRejected,
		Trades:            st.Trades,
		Volume:            st.Volume,
		ContentionRetries: st.ContentionRetries,
		SinkErrors:        st.SinkErrors,
		Retired:           st.Retired,
		Recycled:          st.Recycled,
		Epoch:             st.Epoch,
		JournalSeq:        st.JournalSeq,
		OutboxPending:     st.OutboxPending,
	})
}

// -------------------- Plumbing --------------------

const requestIDHeader = "x-request-id"

// requestInterceptor tags each call with a request id, taken from the
// x-request-id header when the caller sent one, and logs its outcome.
func (s *Server) requestInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDHeader); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, id)
	ctx = logging.NewContext(ctx, s.log)
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))

	start := time.Now()
	resp, err := next(ctx, req)

	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Stringer("code", code),
		zap.Duration("elapsed", time.Since(start)),
	}
	log := logging.FromContext(ctx)
	if code == codes.Internal || code == codes.Unknown {
		log.Error("rpc failed", append(fields, zap.Error(err))...)
	} else {
		log.Debug("rpc", fields...)
	}
	return resp, err
}

func reply(v any) (*structpb.Struct, error) {
	out, err := codec.ToStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func toSide(s string) orderbook.Side {
	switch strings.ToUpper(s) {
	case "BUY", "BID":
		return orderbook.Buy
	case "SELL", "ASK":
		return orderbook.Sell
	default:
		return 0
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, matching.ErrInvalidPrice),
		errors.Is(err, matching.ErrInvalidQuantity),
		errors.Is(err, matching.ErrInvalidSide):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, matching.ErrUnknownInstrument):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
