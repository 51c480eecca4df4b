// Package orderbook holds the per-instrument book: a pre-allocated
// ladder of price levels for each side, each level a lock-free FIFO of
// resting orders.
//
// Nothing in this package takes a lock. Levels are appended to with a
// tail CAS and retired from with a head CAS, and an order's remaining
// quantity only changes through Cross, which debits a buy and a sell
// order as one atomic step.
//
// Callers that read orders out of a level (PeekHead, Walk) must do so
// inside a memory.Collector read section: retired orders are recycled
// through a pool once no reader can observe them.
package orderbook
