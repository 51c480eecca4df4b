package journal

import "fmt"

type RecordType uint8

const (
	RecordOrder RecordType = iota + 1
	RecordTrade
)

func (t RecordType) String() string {
	switch t {
	case RecordOrder:
		return "ORDER"
	case RecordTrade:
		return "TRADE"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Record is one journal entry. Seq is assigned by Append and is
// strictly increasing across the whole journal.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}
