// Package broadcaster drains the event outbox into Kafka. It is the
// only component that marks outbox records SENT or ACKED, so delivery
// bookkeeping has a single writer.
package broadcaster

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"freyr/infra/outbox"
)

const maxRetries = 5

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(ob *outbox.Outbox, brokers []string, topic string, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: 250 * time.Millisecond,
		log:      log,
	}, nil
}

// Start runs the drain loop until ctx is canceled.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
				b.retrySent()
			}
		}
	}()
}

// drainOnce publishes every NEW record. Mark SENT before publishing:
// if the process dies between publish and ack, retrySent picks the
// record up again, so the stream is at-least-once.
func (b *Broadcaster) drainOnce() {
	_ = b.outbox.ScanByState(outbox.StateNew, func(seq uint64, rec outbox.Record) error {
		b.publish(seq, rec)
		return nil
	})
}

// retrySent re-publishes records stuck in SENT from a previous run or
// a failed attempt, parking them after too many retries.
func (b *Broadcaster) retrySent() {
	_ = b.outbox.ScanByState(outbox.StateSent, func(seq uint64, rec outbox.Record) error {
		if rec.Retries >= maxRetries {
			b.log.Warn("event parked after retries",
				zap.Uint64("seq", seq), zap.Uint32("retries", rec.Retries))
			return b.outbox.MarkFailed(seq)
		}
		b.publish(seq, rec)
		return nil
	})
}

func (b *Broadcaster) publish(seq uint64, rec outbox.Record) {
	if err := b.outbox.MarkSent(seq); err != nil {
		b.log.Error("mark sent", zap.Uint64("seq", seq), zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", seq)),
		Value: sarama.ByteEncoder(rec.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn("publish failed, will retry",
			zap.Uint64("seq", seq), zap.Error(err))
		return
	}

	if err := b.outbox.MarkAcked(seq); err != nil {
		b.log.Error("mark acked", zap.Uint64("seq", seq), zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
