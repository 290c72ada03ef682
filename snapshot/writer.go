package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"freyr/domain/exchange"
	"freyr/domain/ledger"
)

type Writer struct {
	Dir string
}

// Write captures the live orders and balances under the caller's lock
// and persists them atomically: gob to a temp file, then rename over
// snapshot.bin.
func (w *Writer) Write(seq, eventSeq uint64, eng *exchange.Engine, led *ledger.InMemory) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	s := Snapshot{
		Seq:      seq,
		EventSeq: eventSeq,
		Created:  time.Now(),
		LastID:   eng.LastID(),
		Trading:  eng.TradingEnabled(),
	}

	eng.WalkOpen(func(o exchange.Order) {
		s.Orders = append(s.Orders, OrderEntry{
			ID:         o.ID,
			SellAmount: o.SellAmount.String(),
			SellToken:  o.SellToken,
			BuyAmount:  o.BuyAmount.String(),
			BuyToken:   o.BuyToken,
			Owner:      o.Owner,
			Expiry:     o.Expiry,
		})
	})

	led.Walk(func(account, token string, amount decimal.Decimal) {
		s.Balances = append(s.Balances, BalanceEntry{
			Account: account,
			Token:   token,
			Amount:  amount.String(),
		})
	})

	tmp, err := os.CreateTemp(w.Dir, "snapshot-*.tmp")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(&s); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(w.Dir, "snapshot.bin"))
}
