// Package outbox keeps trade events in pebble until they are published.
//
// Every record moves NEW -> SENT -> ACKED, or ends FAILED once its
// publisher gives up. A record is written NEW before anyone tries to
// publish it, so a crash between the two leaves it for the next scan.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

var (
	ErrInvalidRecord = errors.New("outbox: invalid record")
	ErrNotFound      = errors.New("outbox: not found")
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const headerSize = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerSize+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[headerSize:], r.Payload)
	return buf
}

// decodeRecord copies the payload; pebble owns b.
func decodeRecord(b []byte) (Record, error) {
	if len(b) < headerSize || State(b[0]) > StateFailed {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrInvalidRecord, len(b))
	}
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[headerSize:]),
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db  *pebble.DB
	now func() time.Time

	// mu orders high-water mark writes; lastID is the highest id ever
	// put, kept past PruneAcked.
	mu     sync.Mutex
	lastID uint64
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	o := &Outbox{db: db, now: time.Now}
	if o.lastID, err = o.loadLastID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

// Close syncs outstanding writes and closes the store.
func (o *Outbox) Close() error {
	return errors.Join(o.Sync(), o.db.Close())
}

// PutNew stores a payload awaiting publication. The write is not
// fsynced: it is durable once Sync or Close returns, and survives a
// process crash but not a machine crash before that.
func (o *Outbox) PutNew(id uint64, payload []byte) error {
	b := o.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(id), encodeRecord(Record{State: StateNew, Payload: payload}), nil); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if id > o.lastID {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], id)
		if err := b.Set([]byte(lastIDKey), v[:], nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return err
	}
	o.lastID = max(o.lastID, id)
	return nil
}

// LastID returns the highest id ever stored, including ids whose
// records were pruned. Ids issued after a restart must start above it.
func (o *Outbox) LastID() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastID
}

// Sync makes every write so far durable.
func (o *Outbox) Sync() error {
	return o.db.LogData(nil, pebble.Sync)
}

// loadLastID reads the high-water mark, falling back to the highest
// stored key for stores written without one.
func (o *Outbox) loadLastID() (uint64, error) {
	var last uint64
	val, closer, err := o.db.Get([]byte(lastIDKey))
	switch {
	case err == nil:
		if len(val) != 8 {
			_ = closer.Close()
			return 0, fmt.Errorf("%w: high-water mark of %d bytes", ErrInvalidRecord, len(val))
		}
		last = binary.BigEndian.Uint64(val)
		_ = closer.Close()
	case !errors.Is(err, pebble.ErrNotFound):
		return 0, err
	}

	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if iter.Last() {
		id, err := parseKey(iter.Key())
		if err != nil {
			return 0, err
		}
		last = max(last, id)
	}
	return last, iter.Error()
}

// MarkSent records a publish attempt.
func (o *Outbox) MarkSent(id uint64) error {
	return o.update(id, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = o.now().UnixNano()
	})
}

func (o *Outbox) MarkAcked(id uint64) error {
	return o.update(id, func(r *Record) { r.State = StateAcked })
}

func (o *Outbox) MarkFailed(id uint64) error {
	return o.update(id, func(r *Record) { r.State = StateFailed })
}

// update is read-modify-write; each id has a single publisher.
func (o *Outbox) update(id uint64, fn func(*Record)) error {
	rec, err := o.Get(id)
	if err != nil {
		return err
	}
	fn(&rec)
	return o.db.Set(keyFor(id), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) Get(id uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

func (o *Outbox) Delete(id uint64) error {
	return o.db.Delete(keyFor(id), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState calls fn, in id order, for every record in state. fn may
// update the record it is given.
func (o *Outbox) ScanByState(state State, fn func(id uint64, rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PruneAcked deletes acknowledged records with id <= upTo and returns
// how many were removed.
func (o *Outbox) PruneAcked(upTo uint64) (int, error) {
	var ids []uint64
	err := o.ScanByState(StateAcked, func(id uint64, _ Record) error {
		if id <= upTo {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	b := o.db.NewBatch()
	defer b.Close()
	for _, id := range ids {
		if err := b.Delete(keyFor(id), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Count returns how many records are in state.
func (o *Outbox) Count(state State) (int, error) {
	n := 0
	err := o.ScanByState(state, func(uint64, Record) error {
		n++
		return nil
	})
	return n, err
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "trade/"
	lastIDKey = "meta/last-id"
)

func keyFor(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func parseKey(b []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q", ErrInvalidRecord, b)
	}
	return id, nil
}
