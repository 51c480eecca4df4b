// Package snapshot writes point-in-time copies of the resting orders
// of every active book. Books are copied one at a time, each inside an
// engine read section, while trading continues.
//
// Snapshots are for inspection; the engine never loads them back.
package snapshot
