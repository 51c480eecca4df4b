package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/config"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	"matchbook/infra/journal"
	mbkafka "matchbook/infra/kafka"
	"matchbook/infra/logging"
	"matchbook/infra/outbox"
	"matchbook/snapshot"
)

const kafkaSendTimeout = 5 * time.Second

/*
EngineService is the ONLY entry point into the engine for transports
and drivers.

All coordination between:
- domain (matching engine)
- infra (journal, outbox, kafka)
- snapshot
happens here. Collaborators that are not configured are simply absent.
*/
type EngineService struct {
	cfg    *config.AppConfig
	engine *matching.Engine
	log    *zap.Logger

	journal   *journal.Journal
	outbox    *outbox.Outbox
	orders    *mbkafka.Producer
	snapshots *snapshot.Writer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New opens the configured collaborators and builds the engine. extra
// sinks receive events after the built-in ones.
func New(cfg *config.AppConfig, dir matching.Directory, log *zap.Logger, extra ...matching.Sink) (_ *EngineService, err error) {
	ladder, err := cfg.Engine.Ladder()
	if err != nil {
		return nil, err
	}

	svc := &EngineService{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = svc.closeResources()
		}
	}()

	names := func(id uint32) string { return svc.engine.InstrumentName(id) }
	var sinks matching.MultiSink

	// ---------------- Journal ----------------

	if cfg.Journal.Dir != "" {
		c, err := codec.ByName(cfg.Journal.Codec)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		if svc.journal, err = journal.Open(journal.Config{
			Dir:             cfg.Journal.Dir,
			SegmentSize:     cfg.Journal.SegmentSize,
			SegmentDuration: cfg.Journal.SegmentDuration,
		}); err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		sinks = append(sinks, &JournalSink{Journal: svc.journal, Codec: c, Names: names})
		log.Info("journal opened", zap.String("dir", cfg.Journal.Dir), zap.Uint64("last_seq", svc.journal.LastSeq()))
	}

	// ---------------- Outbox ----------------

	kafkaCodec, err := codec.ByName(cfg.Kafka.Codec)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	if cfg.Outbox.Dir != "" {
		if svc.outbox, err = outbox.Open(cfg.Outbox.Dir); err != nil {
			return nil, fmt.Errorf("outbox: %w", err)
		}
		sinks = append(sinks, &OutboxSink{Outbox: svc.outbox, Codec: kafkaCodec, Names: names})
		log.Info("outbox opened", zap.String("dir", cfg.Outbox.Dir), zap.Uint64("last_trade_id", svc.outbox.LastID()))
	}

	// ---------------- Kafka order feed ----------------

	if cfg.Kafka.Enabled {
		svc.orders = mbkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic)
		sinks = append(sinks, &KafkaSink{Producer: svc.orders, Codec: kafkaCodec, Names: names, Timeout: kafkaSendTimeout})
	}

	if cfg.Journal.Text {
		sinks = append(sinks, &TextSink{W: os.Stdout, Names: names})
	}
	sinks = append(sinks, extra...)

	// ---------------- Engine ----------------

	opts := []matching.Option{
		matching.WithLogger(log.Named("engine")),
		matching.WithReclaimEvery(cfg.Engine.ReclaimEvery),
		matching.WithRetireRing(cfg.Engine.RetireRing),
	}
	if len(sinks) > 0 {
		opts = append(opts, matching.WithSink(sinks))
	}
	if dir != nil {
		opts = append(opts, matching.WithDirectory(dir))
	}
	if svc.outbox != nil {
		// Outbox rows are keyed by trade id; a restart must not reuse one.
		opts = append(opts, matching.WithTradeIDsAfter(svc.outbox.LastID()))
	}
	if svc.engine, err = matching.New(cfg.Engine.Universe, ladder, opts...); err != nil {
		return nil, err
	}

	if cfg.Snapshot.Dir != "" {
		svc.snapshots = &snapshot.Writer{Dir: cfg.Snapshot.Dir, EngineID: svc.engine.ID.String()}
	}

	log.Info("engine ready",
		zap.String("engine_id", svc.engine.ID.String()),
		zap.Int("universe", cfg.Engine.Universe),
		zap.Int("levels", ladder.Levels()),
		zap.Int("sinks", len(sinks)),
	)
	return svc, nil
}

func (s *EngineService) Engine() *matching.Engine { return s.engine }

func (s *EngineService) InstrumentName(instrument uint32) string {
	return s.engine.InstrumentName(instrument)
}

// Outbox is nil unless outbox.dir is configured.
func (s *EngineService) Outbox() *outbox.Outbox { return s.outbox }

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

func (s *EngineService) Submit(ctx context.Context, instrument uint32, side orderbook.Side, qty int64, price decimal.Decimal) (uint64, error) {
	id, err := s.engine.Submit(instrument, side, qty, price)
	if err != nil {
		logging.FromContext(ctx).Debug("order rejected",
			zap.Uint32("instrument", instrument),
			zap.Stringer("side", side),
			zap.Int64("qty", qty),
			zap.Stringer("price", price),
			zap.Error(err),
		)
		return 0, err
	}
	return id, nil
}

func (s *EngineService) Match(ctx context.Context, instrument uint32) ([]matching.Trade, error) {
	trades, err := s.engine.MatchInstrument(instrument)
	if err != nil {
		return nil, err
	}
	if len(trades) > 0 {
		logging.FromContext(ctx).Debug("matched",
			zap.Uint32("instrument", instrument),
			zap.Int("trades", len(trades)),
		)
	}
	return trades, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *EngineService) Depth(instrument uint32, levels int) (matching.BookView, error) {
	return s.engine.Depth(instrument, levels)
}

type Stats struct {
	matching.Stats
	JournalSeq    uint64
	OutboxPending int
}

func (s *EngineService) Stats() Stats {
	st := Stats{Stats: s.engine.Stats()}
	if s.journal != nil {
		st.JournalSeq = s.journal.LastSeq()
	}
	if s.outbox != nil {
		n, err := s.outbox.Count(outbox.StateNew)
		if err != nil {
			s.log.Warn("outbox count failed", zap.Error(err))
		}
		st.OutboxPending = n
	}
	return st
}

//
// ──────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────
//

// Start runs the background jobs until ctx ends or Close is called.
func (s *EngineService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reclaimLoop(ctx, s.cfg.Engine.ReclaimInterval)
	}()

	if s.snapshots != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.snapshotLoop(ctx, s.cfg.Snapshot.Interval)
		}()
	}
}

// Close stops the jobs and closes every collaborator. Callers must stop
// submitting first.
func (s *EngineService) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.engine.Reclaim()
		s.closeErr = s.closeResources()
	})
	return s.closeErr
}

func (s *EngineService) closeResources() error {
	var errs []error
	if s.orders != nil {
		errs = append(errs, s.orders.Close())
	}
	if s.outbox != nil {
		errs = append(errs, s.outbox.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}
