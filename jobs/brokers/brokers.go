// Package brokers drives synthetic order flow through the engine. Each
// broker arrives after a random delay, submits random limit orders and
// tries to match after every submit, pausing a random interval in
// between.
package brokers

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
)

const maxQty = 50

// Exchange is the part of the engine service a broker uses.
type Exchange interface {
	Submit(ctx context.Context, instrument uint32, side orderbook.Side, qty int64, price decimal.Decimal) (uint64, error)
	Match(ctx context.Context, instrument uint32) ([]matching.Trade, error)
}

type Config struct {
	// MinBrokers > 0 draws the broker count from [MinBrokers, Brokers].
	MinBrokers      int
	Brokers         int
	OrdersPerBroker int
	// RandomOrders gives each broker [1, OrdersPerBroker] orders.
	RandomOrders bool
	// Instruments are drawn from [0, Universe).
	Universe int
	Ladder   orderbook.Ladder
	// Pauses are drawn from [1ns, MaxDelay]; zero means no pause.
	MaxDelay time.Duration
	// Each broker starts after [0, MaxArrival); zero starts them together.
	MaxArrival time.Duration
	// Zero seeds from the clock.
	Seed uint64
}

type Report struct {
	Brokers   int
	Submitted uint64
	Rejected  uint64
	Trades    uint64
	Volume    uint64
	Elapsed   time.Duration
}

type Driver struct {
	cfg Config
	ex  Exchange
	log *zap.Logger

	submitted atomic.Uint64
	rejected  atomic.Uint64
	trades    atomic.Uint64
	volume    atomic.Uint64
}

func New(ex Exchange, cfg Config, log *zap.Logger) *Driver {
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	return &Driver{cfg: cfg, ex: ex, log: log}
}

// Run starts every broker and waits for them to finish or for ctx to
// end. The report covers whatever was submitted before that.
func (d *Driver) Run(ctx context.Context) Report {
	start := time.Now()
	n := d.brokerCount()
	d.log.Info("simulation started",
		zap.Int("brokers", n),
		zap.Int("orders_per_broker", d.cfg.OrdersPerBroker),
		zap.Bool("random_orders", d.cfg.RandomOrders),
		zap.Duration("max_arrival", d.cfg.MaxArrival),
		zap.Uint64("seed", d.cfg.Seed),
	)

	var wg sync.WaitGroup
	for id := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.broker(ctx, id)
		}()
	}
	wg.Wait()

	r := Report{
		Brokers:   n,
		Submitted: d.submitted.Load(),
		Rejected:  d.rejected.Load(),
		Trades:    d.trades.Load(),
		Volume:    d.volume.Load(),
		Elapsed:   time.Since(start),
	}
	d.log.Info("simulation finished",
		zap.Uint64("submitted", r.Submitted),
		zap.Uint64("rejected", r.Rejected),
		zap.Uint64("trades", r.Trades),
		zap.Uint64("volume", r.Volume),
		zap.Duration("elapsed", r.Elapsed),
	)
	return r
}

func (d *Driver) broker(ctx context.Context, id int) {
	rng := rand.New(rand.NewPCG(d.cfg.Seed, uint64(id)))
	log := d.log.With(zap.Int("broker", id))
	span := d.cfg.Ladder.MaxTick - d.cfg.Ladder.MinTick + 1

	orders := d.cfg.OrdersPerBroker
	if d.cfg.RandomOrders && orders > 0 {
		orders = rng.IntN(orders) + 1
	}
	if d.cfg.MaxArrival > 0 && !sleep(ctx, time.Duration(rng.Int64N(int64(d.cfg.MaxArrival)))) {
		return
	}
	log.Debug("broker arrived", zap.Int("orders", orders))

	for range orders {
		if ctx.Err() != nil {
			return
		}

		instrument := uint32(rng.IntN(d.cfg.Universe))
		side := orderbook.Buy
		if rng.IntN(2) == 1 {
			side = orderbook.Sell
		}
		qty := rng.Int64N(maxQty) + 1
		price := d.cfg.Ladder.Price(d.cfg.Ladder.MinTick + rng.Int64N(span))

		if _, err := d.ex.Submit(ctx, instrument, side, qty, price); err != nil {
			d.rejected.Add(1)
			log.Warn("order rejected", zap.Error(err))
			continue
		}
		d.submitted.Add(1)

		trades, err := d.ex.Match(ctx, instrument)
		if err != nil {
			log.Warn("match failed", zap.Uint32("instrument", instrument), zap.Error(err))
		}
		for _, t := range trades {
			d.trades.Add(1)
			d.volume.Add(uint64(t.Qty))
		}

		if !d.pause(ctx, rng) {
			return
		}
	}
}

// brokerCount draws from the seed alone so a seeded run is repeatable.
func (d *Driver) brokerCount() int {
	if d.cfg.MinBrokers <= 0 || d.cfg.MinBrokers >= d.cfg.Brokers {
		return d.cfg.Brokers
	}
	rng := rand.New(rand.NewPCG(d.cfg.Seed, math.MaxUint64))
	return d.cfg.MinBrokers + rng.IntN(d.cfg.Brokers-d.cfg.MinBrokers+1)
}

func (d *Driver) pause(ctx context.Context, rng *rand.Rand) bool {
	if d.cfg.MaxDelay <= 0 {
		return true
	}
	return sleep(ctx, time.Duration(rng.Int64N(int64(d.cfg.MaxDelay)))+1)
}

// sleep reports false when ctx ends first.
func sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
