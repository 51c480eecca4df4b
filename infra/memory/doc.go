// Package memory provides the low-level primitives for object reuse
// and safe reclamation: a typed Pool, the RetireRing used by the
// reclaimer, and the epoch Collector that decides when a retired
// object may go back to its pool.
//
// Readers bracket every access to shared objects with Collector.Enter
// and ReaderEpoch.Exit. An object handed to Collector.Retire is only
// recycled once every reader that could still hold it has exited.
package memory
