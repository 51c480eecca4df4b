package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"matchbook/snapshot"
)

var ErrSnapshotsDisabled = errors.New("snapshots disabled")

func (s *EngineService) reclaimLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.engine.Reclaim(); n > 0 {
				s.log.Debug("reclaimed orders", zap.Int("count", n))
			}
		}
	}
}

func (s *EngineService) snapshotLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.TakeSnapshot(); err != nil {
				s.log.Error("snapshot failed", zap.Error(err))
			}
		}
	}
}

// TakeSnapshot writes the resting books tagged with the current journal
// position, then drops acknowledged outbox records.
func (s *EngineService) TakeSnapshot() (*snapshot.Snapshot, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}

	var seq uint64
	if s.journal != nil {
		seq = s.journal.LastSeq()
	}
	snap, err := s.snapshots.Write(seq, s.engine)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Uint64("journal_seq", seq),
		zap.Int("books", len(snap.Books)),
		zap.Int("orders", snap.Orders()),
	}
	if s.outbox != nil {
		pruned, err := s.outbox.PruneAcked(math.MaxUint64)
		if err != nil {
			s.log.Warn("outbox prune failed", zap.Error(err))
		}
		fields = append(fields, zap.Int("outbox_pruned", pruned))
	}
	s.log.Info("snapshot written", fields...)
	return snap, nil
}
