package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freyr/domain/exchange"
	"freyr/domain/ledger"
	"freyr/infra/outbox"
	"freyr/infra/wal"
	"freyr/snapshot"
)

type Config struct {
	WALDir      string
	SnapshotDir string
	Admin       string
}

// ExchangeService owns the engine, the ledger, and their durability.
// All commands and queries take the one mutex; the engine itself is a
// plain single-threaded object.
type ExchangeService struct {
	mu sync.Mutex

	cfg Config
	log *zap.Logger

	eng *exchange.Engine
	led *ledger.InMemory
	cmd *wal.Log
	out *outbox.Outbox

	seq      uint64 // last command sequence written to the WAL
	eventSeq uint64 // last event sequence staged in the outbox

	// pinnedTime fixes the engine clock to the WAL record's timestamp
	// while a command is applied, live and on replay alike, so expiry
	// decisions cannot drift between the two paths.
	pinnedTime int64
}

// outboundEvent is the outbox/Kafka wire form of an engine event.
type outboundEvent struct {
	Seq uint64 `json:"seq"`
	exchange.Event
}

// New restores the service: snapshot first, then replay of the WAL
// suffix, then the command log is reopened for appending. out may be
// nil when event fan-out is not wanted (tests, tooling).
func New(cfg Config, out *outbox.Outbox, log *zap.Logger) (*ExchangeService, error) {
	s := &ExchangeService{
		cfg: cfg,
		log: log,
		led: ledger.NewInMemory(),
		out: out,
	}
	s.eng = exchange.New(s.led,
		exchange.WithSink(s),
		exchange.WithClock(s.clock),
		exchange.WithAdmin(cfg.Admin),
	)

	meta, err := snapshot.Load(cfg.SnapshotDir, s.eng, s.led)
	if err != nil {
		return nil, err
	}
	s.seq = meta.Seq
	s.eventSeq = meta.EventSeq
	if meta.Trading {
		if err := s.eng.SetTrading(cfg.Admin, true); err != nil {
			return nil, err
		}
	}

	if err := s.replay(meta.Seq); err != nil {
		return nil, err
	}

	s.cmd, err = wal.Open(wal.Config{Dir: cfg.WALDir})
	if err != nil {
		return nil, err
	}

	log.Info("exchange service ready",
		zap.Uint64("seq", s.seq),
		zap.Uint64("event_seq", s.eventSeq),
		zap.Bool("trading", s.eng.TradingEnabled()))
	return s, nil
}

func (s *ExchangeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd.Close()
}

func (s *ExchangeService) clock() int64 {
	if s.pinnedTime != 0 {
		return s.pinnedTime
	}
	return time.Now().Unix()
}

// Publish implements exchange.Sink: every engine event gets the next
// event sequence and is staged durably. During replay the numbering
// comes out identical, so re-staged events overwrite their own keys
// and the stream stays at-least-once instead of lossy.
func (s *ExchangeService) Publish(ev exchange.Event) {
	s.eventSeq++
	if s.out == nil {
		return
	}
	payload, err := json.Marshal(outboundEvent{Seq: s.eventSeq, Event: ev})
	if err != nil {
		s.log.Error("encode event", zap.Error(err))
		return
	}
	if err := s.out.Put(s.eventSeq, payload); err != nil {
		s.log.Error("stage event", zap.Uint64("event_seq", s.eventSeq), zap.Error(err))
	}
}

// exec logs the command intent, then applies it with the engine clock
// pinned to the record's own timestamp. Logging must happen before the
// engine is touched, under the mutex, so the log order is the apply
// order; pinning the clock means replay sees the exact expiry
// decisions the live path made, even when the wall clock ticks over a
// second mid-command.
func (s *ExchangeService) exec(op wal.Op, cmd *wal.Command, apply func() error) error {
	s.seq++
	rec := wal.NewRecord(op, s.seq, cmd.Marshal())
	if err := s.cmd.Append(rec); err != nil {
		return err
	}
	if err := s.cmd.Sync(); err != nil {
		return err
	}

	s.pinnedTime = rec.Time / int64(time.Second)
	defer func() { s.pinnedTime = 0 }()
	return apply()
}

// ---- Commands ----

func (s *ExchangeService) Deposit(account, token string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec(wal.OpDeposit, &wal.Command{
		Account: account, Token: token, Amount: amount.String(),
	}, func() error {
		return s.led.Deposit(account, token, amount)
	})
}

func (s *ExchangeService) Withdraw(account, token string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec(wal.OpWithdraw, &wal.Command{
		Account: account, Token: token, Amount: amount.String(),
	}, func() error {
		return s.led.Withdraw(account, token, amount)
	})
}

func (s *ExchangeService) MakeOffer(owner string, sellAmt decimal.Decimal, sellTok string, buyAmt decimal.Decimal, buyTok string, expiry int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id uint64
	err := s.exec(wal.OpMakeOffer, &wal.Command{
		Account:    owner,
		SellAmount: sellAmt.String(),
		SellToken:  sellTok,
		BuyAmount:  buyAmt.String(),
		BuyToken:   buyTok,
		Expiry:     expiry,
	}, func() error {
		var err error
		id, err = s.eng.MakeOffer(owner, sellAmt, sellTok, buyAmt, buyTok, expiry)
		return err
	})
	return id, err
}

func (s *ExchangeService) TakeOffer(caller string, id uint64, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec(wal.OpTakeOffer, &wal.Command{
		Account: caller, OrderID: id, Amount: amount.String(),
	}, func() error {
		return s.eng.TakeOffer(caller, id, amount)
	})
}

func (s *ExchangeService) CancelOffer(caller string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec(wal.OpCancelOffer, &wal.Command{
		Account: caller, OrderID: id,
	}, func() error {
		return s.eng.CancelOffer(caller, id)
	})
}

func (s *ExchangeService) SetTrading(caller string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec(wal.OpSetTrading, &wal.Command{
		Account: caller, Enabled: enabled,
	}, func() error {
		return s.eng.SetTrading(caller, enabled)
	})
}

// ---- Queries ----

func (s *ExchangeService) Balance(account, token string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led.BalanceOf(account, token)
}

func (s *ExchangeService) OrderDetails(id uint64) exchange.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.OrderDetails(id)
}

func (s *ExchangeService) FirstOffer(p exchange.Pair) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.FirstOffer(p)
}

func (s *ExchangeService) LastOffer(p exchange.Pair) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.LastOffer(p)
}

func (s *ExchangeService) OpenOrders(account string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.OpenOrders(account)
}

func (s *ExchangeService) Depth(p exchange.Pair, max int) []exchange.BookLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Depth(p, max)
}

func (s *ExchangeService) Pairs() []exchange.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Pairs()
}

func (s *ExchangeService) TradingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.TradingEnabled()
}
