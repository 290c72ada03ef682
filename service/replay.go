package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freyr/infra/wal"
)

// replay re-applies every WAL record past the snapshot boundary. It
// must run before the service accepts traffic. Records are applied
// with the clock pinned to their original timestamp, and command
// errors are ignored: a command that was rejected when first applied
// is rejected identically here, which is exactly what keeps the
// rebuilt state in step.
func (s *ExchangeService) replay(after uint64) error {
	applied := 0
	last, err := wal.Replay(s.cfg.WALDir, func(rec *wal.Record) error {
		if rec.Seq <= after {
			return nil
		}

		var cmd wal.Command
		if err := cmd.Unmarshal(rec.Data); err != nil {
			return fmt.Errorf("seq %d: %w", rec.Seq, err)
		}

		s.pinnedTime = rec.Time / int64(time.Second)
		if err := s.apply(rec.Op, &cmd); err != nil {
			s.log.Debug("replayed command rejected",
				zap.Uint64("seq", rec.Seq),
				zap.Stringer("op", rec.Op),
				zap.Error(err))
		}
		applied++
		return nil
	})
	s.pinnedTime = 0
	if err != nil {
		return err
	}

	if last > s.seq {
		s.seq = last
	}
	if applied > 0 {
		s.log.Info("wal replay complete",
			zap.Int("commands", applied),
			zap.Uint64("last_seq", s.seq))
	}
	return nil
}

func (s *ExchangeService) apply(op wal.Op, cmd *wal.Command) error {
	switch op {
	case wal.OpDeposit:
		amount, err := decimal.NewFromString(cmd.Amount)
		if err != nil {
			return err
		}
		return s.led.Deposit(cmd.Account, cmd.Token, amount)

	case wal.OpWithdraw:
		amount, err := decimal.NewFromString(cmd.Amount)
		if err != nil {
			return err
		}
		return s.led.Withdraw(cmd.Account, cmd.Token, amount)

	case wal.OpMakeOffer:
		sellAmt, err := decimal.NewFromString(cmd.SellAmount)
		if err != nil {
			return err
		}
		buyAmt, err := decimal.NewFromString(cmd.BuyAmount)
		if err != nil {
			return err
		}
		_, err = s.eng.MakeOffer(cmd.Account, sellAmt, cmd.SellToken, buyAmt, cmd.BuyToken, cmd.Expiry)
		return err

	case wal.OpTakeOffer:
		amount, err := decimal.NewFromString(cmd.Amount)
		if err != nil {
			return err
		}
		return s.eng.TakeOffer(cmd.Account, cmd.OrderID, amount)

	case wal.OpCancelOffer:
		return s.eng.CancelOffer(cmd.Account, cmd.OrderID)

	case wal.OpSetTrading:
		return s.eng.SetTrading(cmd.Account, cmd.Enabled)

	default:
		return fmt.Errorf("unknown op %d", op)
	}
}
