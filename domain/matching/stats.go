package matching

import "sync/atomic"

type counters struct {
	books      atomic.Uint64
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	trades     atomic.Uint64
	volume     atomic.Uint64
	contention atomic.Uint64
	sinkErrors atomic.Uint64
}

// Stats is a point-in-time read of the engine counters. Each field is
// read separately.
type Stats struct {
	Books             uint64
	OrdersAccepted    uint64
	OrdersRejected    uint64
	Trades            uint64
	Volume            uint64
	ContentionRetries uint64
	SinkErrors        uint64
	Retired           uint64
	Recycled          uint64
	Epoch             uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Books:             e.stats.books.Load(),
		OrdersAccepted:    e.stats.accepted.Load(),
		OrdersRejected:    e.stats.rejected.Load(),
		Trades:            e.stats.trades.Load(),
		Volume:            e.stats.volume.Load(),
		ContentionRetries: e.stats.contention.Load(),
		SinkErrors:        e.stats.sinkErrors.Load(),
		Retired:           e.gc.Retired(),
		Recycled:          e.gc.Recycled(),
		Epoch:             e.gc.Epoch(),
	}
}
