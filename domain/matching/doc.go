// Package matching runs the books of a fixed universe of instruments.
//
// Engine.Submit rests an order in its instrument's book and
// Engine.MatchInstrument crosses the best bid against the best ask until
// the book is no longer crossed. Both are safe to call from any number
// of goroutines for the same instrument; neither takes a lock.
//
// Accepted orders and executed trades are handed to a Sink. Sink errors
// are logged and never undo or abort matching.
package matching
