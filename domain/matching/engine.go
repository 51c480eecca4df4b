package matching

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/memory"
	"matchbook/infra/sequence"
)

const defaultRetireRing = 1 << 14

/*
Engine owns one OrderBook per instrument of a fixed universe.

Books are built on first use. Orders come from a pool and go back to it
through the epoch Collector once they are retired from their level and
no reader that might still hold them is left.

Every method is safe for concurrent use.
*/
type Engine struct {
	ID uuid.UUID

	ladder orderbook.Ladder
	books  []atomic.Pointer[orderbook.OrderBook]

	pool *memory.Pool[orderbook.Order]
	gc   *memory.Collector

	orderIDs *sequence.Sequencer
	arrivals *sequence.Sequencer
	tradeIDs *sequence.Sequencer

	sink Sink
	dir  Directory
	log  *zap.Logger
	now  func() time.Time

	reclaimEvery uint64
	ringSize     uint64

	stats counters
}

// New builds an engine for instruments [0, universe) priced on ladder.
func New(universe int, ladder orderbook.Ladder, opts ...Option) (*Engine, error) {
	if universe <= 0 {
		return nil, fmt.Errorf("matching: universe must be positive, got %d", universe)
	}
	if ladder.Levels() <= 0 {
		return nil, fmt.Errorf("matching: %w: empty ladder", orderbook.ErrInvalidLadder)
	}

	e := &Engine{
		ID:       uuid.New(),
		ladder:   ladder,
		books:    make([]atomic.Pointer[orderbook.OrderBook], universe),
		orderIDs: sequence.New(0),
		arrivals: sequence.New(0),
		tradeIDs: sequence.New(0),
		sink:     NopSink{},
		log:      zap.NewNop(),
		now:      time.Now,
		ringSize: defaultRetireRing,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ringSize == 0 || e.ringSize&(e.ringSize-1) != 0 {
		return nil, fmt.Errorf("matching: retire ring size %d is not a power of two", e.ringSize)
	}

	e.pool = memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} }, (*orderbook.Order).Reset)
	e.gc = memory.NewCollector(e.pool, e.ringSize, e.reclaimEvery)
	return e, nil
}

func (e *Engine) Ladder() orderbook.Ladder { return e.ladder }

func (e *Engine) Universe() int { return len(e.books) }

// InstrumentName returns the directory name, or "#<id>" when there is
// none.
func (e *Engine) InstrumentName(instrument uint32) string {
	if e.dir != nil {
		if name, ok := e.dir.Name(instrument); ok {
			return name
		}
	}
	return "#" + strconv.FormatUint(uint64(instrument), 10)
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Submit rests a limit order and returns its id. It does not match;
// call MatchInstrument for that.
func (e *Engine) Submit(instrument uint32, side orderbook.Side, qty int64, price decimal.Decimal) (uint64, error) {
	if err := e.validate(instrument, side, qty); err != nil {
		return 0, err
	}
	tick, err := e.ladder.ToTicks(price)
	if err != nil {
		e.stats.rejected.Add(1)
		return 0, err
	}
	return e.submit(instrument, side, qty, tick)
}

// SubmitTicks is Submit with the price already on the ladder.
func (e *Engine) SubmitTicks(instrument uint32, side orderbook.Side, qty int64, tick int64) (uint64, error) {
	if err := e.validate(instrument, side, qty); err != nil {
		return 0, err
	}
	if !e.ladder.Contains(tick) {
		e.stats.rejected.Add(1)
		return 0, fmt.Errorf("%w: tick %d outside [%d, %d]", ErrInvalidPrice, tick, e.ladder.MinTick, e.ladder.MaxTick)
	}
	return e.submit(instrument, side, qty, tick)
}

func (e *Engine) validate(instrument uint32, side orderbook.Side, qty int64) error {
	var err error
	switch {
	case int(instrument) >= len(e.books):
		err = fmt.Errorf("%w: %d not in [0, %d)", ErrUnknownInstrument, instrument, len(e.books))
	case !side.Valid():
		err = fmt.Errorf("%w: %s", ErrInvalidSide, side)
	case qty <= 0:
		err = fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if err != nil {
		e.stats.rejected.Add(1)
	}
	return err
}

func (e *Engine) submit(instrument uint32, side orderbook.Side, qty, tick int64) (uint64, error) {
	book := e.book(instrument)
	now := e.now()

	o := e.pool.Get()
	id := e.orderIDs.Next()
	o.Init(id, instrument, side, tick, qty, now.UnixNano())

	// o may be matched and retired as soon as it is linked; the read
	// section keeps it from being recycled before Seq is read.
	r := e.gc.Enter()
	if err := book.Insert(o); err != nil {
		r.Exit()
		e.pool.Put(o)
		e.stats.rejected.Add(1)
		return 0, err
	}
	seq := o.Seq
	r.Exit()

	e.stats.accepted.Add(1)
	ev := OrderEvent{
		ID:         id,
		Instrument: instrument,
		Side:       side,
		Price:      e.ladder.Price(tick),
		Qty:        qty,
		Seq:        seq,
		Time:       now,
	}
	if err := e.sink.OrderAccepted(ev); err != nil {
		e.stats.sinkErrors.Add(1)
		e.log.Warn("order event not delivered",
			zap.Uint64("order_id", id),
			zap.Uint32("instrument", instrument),
			zap.Error(err),
		)
	}
	return id, nil
}

type step int

const (
	stepDone step = iota
	stepRetry
	stepTrade
)

// MatchInstrument crosses the book until the best bid is below the best
// ask or a side is empty, and returns the trades this call executed.
// Concurrent callers on the same instrument share the work; each trade
// is executed by exactly one of them.
func (e *Engine) MatchInstrument(instrument uint32) ([]Trade, error) {
	if int(instrument) >= len(e.books) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrUnknownInstrument, instrument, len(e.books))
	}
	book := e.books[instrument].Load()
	if book == nil {
		return nil, nil
	}

	var trades []Trade
	for {
		t, res := e.step(book)
		switch res {
		case stepDone:
			return trades, nil
		case stepRetry:
			continue
		}
		trades = append(trades, t)
		e.stats.trades.Add(1)
		e.stats.volume.Add(uint64(t.Qty))
		if err := e.sink.TradeExecuted(t); err != nil {
			e.stats.sinkErrors.Add(1)
			e.log.Warn("trade event not delivered",
				zap.Uint64("trade_id", t.ID),
				zap.Uint32("instrument", instrument),
				zap.Error(err),
			)
		}
	}
}

// step makes one crossing attempt inside its own read section.
func (e *Engine) step(book *orderbook.OrderBook) (Trade, step) {
	r := e.gc.Enter()
	defer r.Exit()

	bid, ok := book.BestBid()
	if !ok {
		return Trade{}, stepDone
	}
	ask, ok := book.BestAsk()
	if !ok || bid.Price < ask.Price {
		return Trade{}, stepDone
	}

	buy, sell := bid.PeekHead(), ask.PeekHead()
	if buy == nil || sell == nil {
		return Trade{}, stepRetry
	}
	b, s := buy.Observe(), sell.Observe()

	// an exhausted head whose filler has not retired it yet
	if b.Remaining == 0 {
		bid.RetireHead(buy)
		return Trade{}, stepRetry
	}
	if s.Remaining == 0 {
		ask.RetireHead(sell)
		return Trade{}, stepRetry
	}

	qty := min(b.Remaining, s.Remaining)
	if !orderbook.Cross(buy, sell, b, s, qty) {
		e.stats.contention.Add(1)
		return Trade{}, stepRetry
	}

	t := Trade{
		ID:          e.tradeIDs.Next(),
		Instrument:  book.Instrument,
		Price:       e.ladder.Price(sell.Price),
		BuyPrice:    e.ladder.Price(buy.Price),
		Qty:         qty,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Time:        e.now(),
	}
	if b.Remaining == qty {
		bid.RetireHead(buy)
	}
	if s.Remaining == qty {
		ask.RetireHead(sell)
	}
	return t, stepTrade
}

// Reclaim recycles every retired order no reader can still hold and
// returns how many went back to the pool.
func (e *Engine) Reclaim() int {
	return e.gc.Reclaim()
}

func (e *Engine) book(instrument uint32) *orderbook.OrderBook {
	p := &e.books[instrument]
	if b := p.Load(); b != nil {
		return b
	}
	b := orderbook.NewOrderBook(instrument, e.ladder, e.arrivals.Next, e.retire)
	if p.CompareAndSwap(nil, b) {
		e.stats.books.Add(1)
		e.log.Debug("order book created",
			zap.Uint32("instrument", instrument),
			zap.String("name", e.InstrumentName(instrument)),
			zap.Int("levels", e.ladder.Levels()),
		)
		return b
	}
	return p.Load()
}

func (e *Engine) retire(o *orderbook.Order) {
	e.gc.Retire(o)
}

// Active returns the instruments that have a book, in id order.
func (e *Engine) Active() []uint32 {
	var ids []uint32
	for i := range e.books {
		if e.books[i].Load() != nil {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}
