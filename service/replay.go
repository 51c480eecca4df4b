package service

import (
	"fmt"

	"matchbook/infra/codec"
	"matchbook/infra/journal"
)

/*
JournalReader decodes the audit journal back into the messages the
JournalSink wrote.

IMPORTANT:
- The journal is an audit trail, the engine is NOT rebuilt from it
- Records of unknown type are skipped so older tools keep working
*/
type JournalReader struct {
	Codec codec.Codec

	// Either callback may be nil.
	OnOrder func(seq uint64, m codec.OrderMessage) error
	OnTrade func(seq uint64, m codec.TradeMessage) error
}

// Read walks every segment in dir in sequence order and returns the
// last sequence seen.
func (r *JournalReader) Read(dir string) (uint64, error) {
	return journal.Replay(dir, func(rec *journal.Record) error {
		switch rec.Type {
		case journal.RecordOrder:
			if r.OnOrder == nil {
				return nil
			}
			var m codec.OrderMessage
			if err := r.Codec.Unmarshal(rec.Data, &m); err != nil {
				return fmt.Errorf("journal seq %d: %w", rec.Seq, err)
			}
			return r.OnOrder(rec.Seq, m)

		case journal.RecordTrade:
			if r.OnTrade == nil {
				return nil
			}
			var m codec.TradeMessage
			if err := r.Codec.Unmarshal(rec.Data, &m); err != nil {
				return fmt.Errorf("journal seq %d: %w", rec.Seq, err)
			}
			return r.OnTrade(rec.Seq, m)
		}
		return nil
	})
}
