package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"freyr/domain/exchange"
	"freyr/domain/ledger"
)

// Load restores balances and live orders from dir/snapshot.bin into a
// fresh engine and ledger. A missing file is not an error; the caller
// starts empty and replays the whole command log.
func Load(dir string, eng *exchange.Engine, led *ledger.InMemory) (Meta, error) {
	f, err := os.Open(filepath.Join(dir, "snapshot.bin"))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, nil
		}
		return Meta{}, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Meta{}, fmt.Errorf("snapshot: decode: %w", err)
	}

	for _, b := range s.Balances {
		amount, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return Meta{}, fmt.Errorf("snapshot: balance %s/%s: %w", b.Account, b.Token, err)
		}
		led.Credit(b.Account, b.Token, amount)
	}

	for _, e := range s.Orders {
		sellAmt, err := decimal.NewFromString(e.SellAmount)
		if err != nil {
			return Meta{}, fmt.Errorf("snapshot: order %d: %w", e.ID, err)
		}
		buyAmt, err := decimal.NewFromString(e.BuyAmount)
		if err != nil {
			return Meta{}, fmt.Errorf("snapshot: order %d: %w", e.ID, err)
		}
		if err := eng.Restore(exchange.Order{
			ID:         e.ID,
			SellAmount: sellAmt,
			SellToken:  e.SellToken,
			BuyAmount:  buyAmt,
			BuyToken:   e.BuyToken,
			Owner:      e.Owner,
			Expiry:     e.Expiry,
		}); err != nil {
			return Meta{}, fmt.Errorf("snapshot: order %d: %w", e.ID, err)
		}
	}

	eng.AdvanceID(s.LastID)
	return Meta{Seq: s.Seq, EventSeq: s.EventSeq, Trading: s.Trading}, nil
}
