package snapshot

import (
	"testing"

	"github.com/shopspring/decimal"

	"freyr/domain/exchange"
	"freyr/domain/ledger"
)

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()

	led := ledger.NewInMemory()
	led.Credit("alice", "TK1", decimal.NewFromInt(100))
	led.Credit("bob", "TK2", decimal.NewFromInt(50))

	eng := exchange.New(led)
	if err := eng.SetTrading("", true); err != nil {
		t.Fatal(err)
	}
	id1, err := eng.MakeOffer("alice", decimal.NewFromInt(30), "TK1", decimal.NewFromInt(10), "TK2", 0)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := eng.MakeOffer("alice", decimal.NewFromInt(10), "TK1", decimal.NewFromInt(2), "TK2", 900)
	if err != nil {
		t.Fatal(err)
	}

	w := &Writer{Dir: dir}
	if err := w.Write(42, 9, eng, led); err != nil {
		t.Fatalf("write: %v", err)
	}

	led2 := ledger.NewInMemory()
	eng2 := exchange.New(led2)
	meta, err := Load(dir, eng2, led2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Seq != 42 || meta.EventSeq != 9 || !meta.Trading {
		t.Fatalf("meta = %+v, want seq 42 eventSeq 9 trading", meta)
	}

	if got := led2.BalanceOf("alice", "TK1"); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("alice TK1 = %s, want 60 (100 minus 40 escrowed)", got)
	}
	if got := led2.BalanceOf("bob", "TK2"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("bob TK2 = %s, want 50", got)
	}

	d1 := eng2.OrderDetails(id1)
	if !d1.SellAmount.Equal(decimal.NewFromInt(30)) || d1.Owner != "alice" {
		t.Fatalf("order %d = %+v", id1, d1)
	}
	d2 := eng2.OrderDetails(id2)
	if d2.Expiry != 900 {
		t.Fatalf("order %d expiry = %d, want 900", id2, d2.Expiry)
	}
	if eng2.FirstOffer(exchange.Pair{Sell: "TK1", Buy: "TK2"}) != id1 {
		t.Fatal("book order lost across snapshot")
	}
	if eng2.LastID() != eng.LastID() {
		t.Fatalf("LastID = %d, want %d", eng2.LastID(), eng.LastID())
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	led := ledger.NewInMemory()
	eng := exchange.New(led)

	meta, err := Load(t.TempDir(), eng, led)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta != (Meta{}) {
		t.Fatalf("meta = %+v, want zero", meta)
	}
}

func TestWriteIsAtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	led := ledger.NewInMemory()
	eng := exchange.New(led)
	w := &Writer{Dir: dir}

	if err := w.Write(1, 0, eng, led); err != nil {
		t.Fatal(err)
	}
	led.Credit("carol", "TK3", decimal.NewFromInt(7))
	if err := w.Write(2, 0, eng, led); err != nil {
		t.Fatal(err)
	}

	led2 := ledger.NewInMemory()
	eng2 := exchange.New(led2)
	meta, err := Load(dir, eng2, led2)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Seq != 2 {
		t.Fatalf("seq = %d, want latest snapshot", meta.Seq)
	}
	if got := led2.BalanceOf("carol", "TK3"); !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("carol TK3 = %s, want 7", got)
	}
}
