package broadcaster

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"freyr/infra/outbox"
)

// fakeProducer satisfies sarama.SyncProducer through embedding; only
// the methods the broadcaster calls are implemented.
type fakeProducer struct {
	sarama.SyncProducer
	sent []*sarama.ProducerMessage
	fail bool
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if f.fail {
		return 0, 0, errors.New("broker down")
	}
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent)), nil
}

func (f *fakeProducer) Close() error { return nil }

func newTestBroadcaster(t *testing.T, fp *fakeProducer) (*Broadcaster, *outbox.Outbox) {
	t.Helper()
	ob, err := outbox.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { ob.Close() })
	return &Broadcaster{
		outbox:   ob,
		producer: fp,
		topic:    "events",
		interval: time.Millisecond,
		log:      zap.NewNop(),
	}, ob
}

func TestDrainPublishesAndAcks(t *testing.T) {
	fp := &fakeProducer{}
	b, ob := newTestBroadcaster(t, fp)

	for seq := uint64(1); seq <= 3; seq++ {
		if err := ob.Put(seq, []byte("payload")); err != nil {
			t.Fatal(err)
		}
	}

	b.drainOnce()

	if len(fp.sent) != 3 {
		t.Fatalf("published %d messages, want 3", len(fp.sent))
	}
	for seq := uint64(1); seq <= 3; seq++ {
		rec, err := ob.Get(seq)
		if err != nil {
			t.Fatal(err)
		}
		if rec.State != outbox.StateAcked {
			t.Fatalf("seq %d state = %v, want ACKED", seq, rec.State)
		}
	}
}

func TestFailedPublishStaysSent(t *testing.T) {
	fp := &fakeProducer{fail: true}
	b, ob := newTestBroadcaster(t, fp)

	if err := ob.Put(1, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	b.drainOnce()

	rec, err := ob.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != outbox.StateSent || rec.Retries != 1 {
		t.Fatalf("after failed publish = %+v, want SENT with 1 retry", rec)
	}

	// Broker recovers: the retry pass delivers and acks.
	fp.fail = false
	b.retrySent()

	rec, _ = ob.Get(1)
	if rec.State != outbox.StateAcked {
		t.Fatalf("after retry = %+v, want ACKED", rec)
	}
	if len(fp.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(fp.sent))
	}
}

func TestParkedAfterMaxRetries(t *testing.T) {
	fp := &fakeProducer{fail: true}
	b, ob := newTestBroadcaster(t, fp)

	if err := ob.Put(1, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	b.drainOnce()
	for i := 0; i < maxRetries+1; i++ {
		b.retrySent()
	}

	rec, err := ob.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != outbox.StateFailed {
		t.Fatalf("state = %v, want FAILED", rec.State)
	}
}
