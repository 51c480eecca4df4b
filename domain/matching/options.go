package matching

import (
	"time"

	"go.uber.org/zap"

	"matchbook/infra/sequence"
)

type Option func(*Engine)

func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithDirectory(d Directory) Option {
	return func(e *Engine) { e.dir = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithReclaimEvery recycles retired orders after every n retirements
// on top of explicit Reclaim calls. Zero leaves reclamation to Reclaim.
func WithReclaimEvery(n uint64) Option {
	return func(e *Engine) { e.reclaimEvery = n }
}

// WithRetireRing sets how many retired orders one reclaim pass can
// hold. It must be a power of two.
func WithRetireRing(size uint64) Option {
	return func(e *Engine) { e.ringSize = size }
}

// WithTradeIDsAfter makes the first trade id last+1, so ids keep
// rising across restarts that share a trade store.
func WithTradeIDsAfter(last uint64) Option {
	return func(e *Engine) { e.tradeIDs = sequence.New(last) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
