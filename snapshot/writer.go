package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"matchbook/domain/matching"
)

const fileName = "snapshot.bin"

// Source is what a snapshot is taken from; *matching.Engine is one.
type Source interface {
	Active() []uint32
	Depth(instrument uint32, levels int) (matching.BookView, error)
}

type Writer struct {
	Dir      string
	EngineID string
}

// Write replaces Dir/snapshot.bin with the current books. seq tags the
// snapshot, usually with the journal position it was taken at.
func (w *Writer) Write(seq uint64, src Source) (*Snapshot, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, err
	}

	s := &Snapshot{
		EngineID: w.EngineID,
		Seq:      seq,
		Created:  time.Now(),
	}
	for _, id := range src.Active() {
		v, err := src.Depth(id, 0)
		if err != nil {
			return nil, fmt.Errorf("snapshot: instrument %d: %w", id, err)
		}
		s.Books = append(s.Books, BookEntry{
			Instrument: v.Instrument,
			Name:       v.Name,
			Bids:       levels(v.Bids),
			Asks:       levels(v.Asks),
		})
	}

	tmp, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return s, os.Rename(tmp.Name(), filepath.Join(w.Dir, fileName))
}

func levels(in []matching.LevelView) []LevelEntry {
	out := make([]LevelEntry, 0, len(in))
	for _, l := range in {
		e := LevelEntry{Price: l.Price, Orders: make([]OrderEntry, 0, len(l.Orders))}
		for _, o := range l.Orders {
			e.Orders = append(e.Orders, OrderEntry{ID: o.ID, Seq: o.Seq, Qty: o.Qty, Remaining: o.Remaining})
		}
		out = append(out, e)
	}
	return out
}

// Read loads the snapshot in dir.
func Read(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &s, nil
}
