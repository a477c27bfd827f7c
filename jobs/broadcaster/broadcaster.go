// Package broadcaster drains the completed-match outbox into Kafka with
// at-least-once delivery.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"bazaar/infra/outbox"
)

const maxPublishRetries = 10

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(ob *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(ob, producer, topic, interval, log), nil
}

// NewWithProducer injects the producer directly; tests use sarama's mocks.
func NewWithProducer(ob *outbox.Outbox, producer sarama.SyncProducer, topic string, interval time.Duration, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// Run drains the outbox on a ticker until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

// drainOnce publishes every pending record. The SENT mark lands before the
// publish, so a crash in between is replayed rather than lost; consumers
// dedupe on match id.
func (b *Broadcaster) drainOnce() {
	err := b.outbox.ScanPending(func(rec outbox.Record) error {
		if rec.Retries >= maxPublishRetries {
			b.log.Error("giving up on outbox record",
				zap.String("match", rec.MatchID.String()),
				zap.Uint32("retries", rec.Retries))
			return nil
		}

		if err := b.outbox.MarkSent(rec.MatchID); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.ByteEncoder(rec.MatchID[:]),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("match publish failed, will retry",
				zap.String("match", rec.MatchID.String()),
				zap.Error(err))
			return b.outbox.MarkFailed(rec.MatchID, rec.Retries+1)
		}

		return b.outbox.MarkAcked(rec.MatchID)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
