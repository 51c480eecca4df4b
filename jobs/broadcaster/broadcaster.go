package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"matchbook/infra/outbox"
)

// Broadcaster drains the trade outbox into Kafka. Delivery is at least
// once: a record is marked SENT before publishing and only ACKED after
// the broker confirms, so a crash in between republishes it.
type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string

	interval    time.Duration
	resendAfter time.Duration
	maxRetries  uint32
	attempts    uint64
	newBackOff  func() backoff.BackOff
	log         *zap.Logger
}

type Option func(*Broadcaster)

// WithInterval sets how often the outbox is polled.
func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) { b.interval = d }
}

// WithMaxRetries sets how many flushes may try a record before it is
// marked FAILED.
func WithMaxRetries(n uint32) Option {
	return func(b *Broadcaster) { b.maxRetries = n }
}

// WithResendAfter sets how long a SENT record waits for its ack before it
// is published again.
func WithResendAfter(d time.Duration) Option {
	return func(b *Broadcaster) { b.resendAfter = d }
}

// WithBackOff sets how many sends one flush tries per record and the
// pause between them.
func WithBackOff(attempts uint64, newBackOff func() backoff.BackOff) Option {
	return func(b *Broadcaster) {
		b.attempts = max(attempts, 1)
		b.newBackOff = newBackOff
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Broadcaster) { b.log = l }
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// NewProducer dials a synchronous producer that waits for every in-sync
// replica.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, cfg)
}

func New(ob *outbox.Outbox, producer sarama.SyncProducer, topic string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		outbox:      ob,
		producer:    producer,
		topic:       topic,
		interval:    250 * time.Millisecond,
		resendAfter: 30 * time.Second,
		maxRetries:  5,
		attempts:    3,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run flushes the outbox every interval until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))
	defer b.log.Info("broadcaster stopped")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Flush(ctx); err != nil {
				b.log.Error("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes every NEW record and every SENT record whose ack is
// overdue. It returns how many were acknowledged. Publish failures are
// left for a later flush; only outbox errors are returned.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	acked := 0
	publish := func(id uint64, rec outbox.Record) error {
		ok, err := b.publish(ctx, id, rec)
		if ok {
			acked++
		}
		return err
	}

	if err := b.outbox.ScanByState(outbox.StateNew, publish); err != nil {
		return acked, err
	}

	err := b.outbox.ScanByState(outbox.StateSent, func(id uint64, rec outbox.Record) error {
		if time.Since(time.Unix(0, rec.LastAttempt)) < b.resendAfter {
			return nil
		}
		return publish(id, rec)
	})
	return acked, err
}

func (b *Broadcaster) publish(ctx context.Context, id uint64, rec outbox.Record) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	if rec.Retries >= b.maxRetries {
		b.log.Warn("trade dropped after retries",
			zap.Uint64("trade_id", id),
			zap.Uint32("retries", rec.Retries),
		)
		return false, b.outbox.MarkFailed(id)
	}

	// 1. mark SENT
	if err := b.outbox.MarkSent(id); err != nil {
		return false, err
	}

	// 2. publish
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(id, 10)),
		Value: sarama.ByteEncoder(rec.Payload),
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b.newBackOff(), b.attempts-1), ctx)
	err := backoff.Retry(func() error {
		_, _, err := b.producer.SendMessage(msg)
		return err
	}, policy)
	if err != nil {
		b.log.Warn("trade publish failed",
			zap.Uint64("trade_id", id),
			zap.Uint32("retries", rec.Retries+1),
			zap.Error(err),
		)
		return false, nil
	}

	// 3. mark ACKED
	return true, b.outbox.MarkAcked(id)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
