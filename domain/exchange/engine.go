package exchange

import (
	"fmt"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"freyr/domain/ledger"
	"freyr/domain/orderindex"
)

// Clock supplies the logical time expiries are checked against.
type Clock func() int64

// Option configures an Engine.
type Option func(*Engine)

// WithSink routes engine events to sink instead of discarding them.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the logical clock (defaults to unix seconds).
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithAdmin restricts the trading gate setter to one account. Without
// it any caller may toggle the gate, which only makes sense in tests.
func WithAdmin(account string) Option {
	return func(e *Engine) { e.admin = account }
}

// Engine owns the order records, the per-pair order indexes, the
// id→book bookkeeping, and the trading gate. All cross-references go
// through order ids so the index and the record store stay
// independently testable.
type Engine struct {
	ledger ledger.Ledger
	sink   Sink
	clock  Clock
	admin  string

	books   map[Pair]*orderindex.Index
	orders  map[uint64]*Order
	open    map[string]*btree.BTreeG[uint64]
	nextID  uint64
	trading bool
}

func New(l ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger: l,
		sink:   nopSink{},
		clock:  func() int64 { return time.Now().Unix() },
		books:  make(map[Pair]*orderindex.Index),
		orders: make(map[uint64]*Order),
		open:   make(map[string]*btree.BTreeG[uint64]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// book returns the index for one pair side, created lazily.
func (e *Engine) book(p Pair) *orderindex.Index {
	ix, ok := e.books[p]
	if !ok {
		ix = orderindex.New()
		e.books[p] = ix
	}
	return ix
}

// TradingEnabled reports the matching gate.
func (e *Engine) TradingEnabled() bool { return e.trading }

// SetTrading toggles matching. Offers made while disabled rest
// unmatched, which lets a deployer stage liquidity before opening.
func (e *Engine) SetTrading(caller string, enabled bool) error {
	if e.admin != "" && caller != e.admin {
		return ErrNotOwner
	}
	e.trading = enabled
	return nil
}

// MakeOffer validates the request, escrows the seller's funds, matches
// against the reverse book while the gate is open, and rests any
// unfilled remainder. The assigned id is returned even when the offer
// fills immediately.
func (e *Engine) MakeOffer(owner string, sellAmt decimal.Decimal, sellTok string, buyAmt decimal.Decimal, buyTok string, expiry int64) (uint64, error) {
	if err := validateOffer(owner, sellAmt, sellTok, buyAmt, buyTok, expiry); err != nil {
		return 0, err
	}
	if err := e.ledger.Debit(owner, sellTok, sellAmt); err != nil {
		return 0, err
	}

	e.nextID++
	o := &Order{
		ID:         e.nextID,
		SellAmount: sellAmt,
		SellToken:  sellTok,
		BuyAmount:  buyAmt,
		BuyToken:   buyTok,
		Owner:      owner,
		Expiry:     expiry,
	}
	e.orders[o.ID] = o
	e.trackOpen(o)

	if e.trading {
		e.match(o)
	}

	if o.BuyAmount.Sign() > 0 {
		if err := e.book(o.Pair()).Insert(o.Price(), o.ID); err != nil {
			panic(fmt.Sprintf("exchange: rest order %d: %v", o.ID, err))
		}
		e.emit(Event{Type: MadeOffer, OrderID: o.ID, Owner: o.Owner,
			SellToken: o.SellToken, BuyToken: o.BuyToken})
	}
	return o.ID, nil
}

// match walks the reverse-pair index in ascending (price, arrival)
// order and fills the incoming order against each crossing candidate.
// Expired and non-crossing candidates are skipped, never aborting the
// request.
func (e *Engine) match(taker *Order) {
	book := e.book(taker.Pair().Reverse())
	now := e.clock()

	var received, spent decimal.Decimal

	cand := book.First()
	for taker.BuyAmount.Sign() > 0 && cand != 0 {
		next := book.Next(cand)
		maker := e.orders[cand]
		if maker == nil {
			panic(fmt.Sprintf("exchange: index holds unknown order %d", cand))
		}
		if maker.Expired(now) || !crosses(maker, taker) {
			cand = next
			continue
		}

		// Fill in the maker's sell units; convert the counter amount
		// at the maker's ratio, truncating.
		fill := decimal.Min(taker.BuyAmount, maker.SellAmount)
		cost := mulDivTrunc(fill, maker.BuyAmount, maker.SellAmount)

		maker.SellAmount = maker.SellAmount.Sub(fill)
		maker.BuyAmount = maker.BuyAmount.Sub(cost)
		taker.BuyAmount = taker.BuyAmount.Sub(fill)
		taker.SellAmount = taker.SellAmount.Sub(cost)
		received = received.Add(fill)
		spent = spent.Add(cost)

		e.ledger.Credit(maker.Owner, maker.BuyToken, cost)
		e.ledger.Credit(taker.Owner, taker.BuyToken, fill)

		if maker.SellAmount.Sign() == 0 {
			if err := book.Remove(maker.ID); err != nil {
				panic(fmt.Sprintf("exchange: unindex order %d: %v", maker.ID, err))
			}
			e.closeOrder(maker)
			e.emit(Event{Type: FilledOffer, OrderID: maker.ID, Owner: maker.Owner,
				SellToken: maker.SellToken, BuyToken: maker.BuyToken,
				SellFilled: fill, BuyFilled: cost})
		} else {
			e.emit(Event{Type: PartialFillOffer, OrderID: maker.ID, Owner: maker.Owner,
				SellToken: maker.SellToken, BuyToken: maker.BuyToken,
				SellFilled: fill, BuyFilled: cost})
		}
		cand = next
	}

	if taker.BuyAmount.Sign() == 0 {
		// Truncation spends in the taker's favor; whatever escrow is
		// left over goes straight back.
		if taker.SellAmount.Sign() > 0 {
			e.ledger.Credit(taker.Owner, taker.SellToken, taker.SellAmount)
			taker.SellAmount = decimal.Decimal{}
		}
		e.closeOrder(taker)
		e.emit(Event{Type: FilledOffer, OrderID: taker.ID, Owner: taker.Owner,
			SellToken: taker.SellToken, BuyToken: taker.BuyToken,
			SellFilled: spent, BuyFilled: received})
	}
}

// crosses reports whether the maker's asking ratio is within the
// taker's limit: maker.buy/maker.sell <= taker.sell/taker.buy,
// compared multiplicatively to stay exact.
func crosses(maker, taker *Order) bool {
	return maker.BuyAmount.Mul(taker.BuyAmount).Cmp(maker.SellAmount.Mul(taker.SellAmount)) <= 0
}

// TakeOffer is a directed match: the caller buys up to amount of the
// resting order's buy-side demand at the order's own ratio.
func (e *Engine) TakeOffer(caller string, id uint64, amount decimal.Decimal) error {
	if !e.trading {
		return ErrTradingDisabled
	}
	if caller == "" || amount.Sign() <= 0 || !amount.IsInteger() {
		return ErrInvalidOrder
	}
	maker, ok := e.orders[id]
	if !ok || maker.Closed() {
		return ErrNotFound
	}
	if maker.Expired(e.clock()) {
		return ErrOrderExpired
	}

	give := decimal.Min(amount, maker.BuyAmount)
	get := mulDivTrunc(give, maker.SellAmount, maker.BuyAmount)
	if get.Sign() == 0 {
		// The take is so small it truncates to zero sell units; the
		// caller would pay and receive nothing.
		return fmt.Errorf("%w: amount below the order's unit price", ErrInvalidOrder)
	}

	if err := e.ledger.Debit(caller, maker.BuyToken, give); err != nil {
		return err
	}
	e.ledger.Credit(maker.Owner, maker.BuyToken, give)
	e.ledger.Credit(caller, maker.SellToken, get)

	maker.BuyAmount = maker.BuyAmount.Sub(give)
	maker.SellAmount = maker.SellAmount.Sub(get)

	if maker.BuyAmount.Sign() == 0 {
		if err := e.book(maker.Pair()).Remove(maker.ID); err != nil {
			panic(fmt.Sprintf("exchange: unindex order %d: %v", maker.ID, err))
		}
		e.closeOrder(maker)
		e.emit(Event{Type: FilledOffer, OrderID: maker.ID, Owner: maker.Owner,
			SellToken: maker.SellToken, BuyToken: maker.BuyToken,
			SellFilled: get, BuyFilled: give})
	} else {
		e.emit(Event{Type: PartialFillOffer, OrderID: maker.ID, Owner: maker.Owner,
			SellToken: maker.SellToken, BuyToken: maker.BuyToken,
			SellFilled: get, BuyFilled: give})
	}
	return nil
}

// CancelOffer removes a resting order and refunds its remaining
// escrow. Owner-only.
func (e *Engine) CancelOffer(caller string, id uint64) error {
	o, ok := e.orders[id]
	if !ok || o.Closed() {
		return ErrNotFound
	}
	if o.Owner != caller {
		return ErrNotOwner
	}
	if err := e.book(o.Pair()).Remove(o.ID); err != nil {
		panic(fmt.Sprintf("exchange: unindex order %d: %v", o.ID, err))
	}
	e.ledger.Credit(o.Owner, o.SellToken, o.SellAmount)
	refundSell, refundBuy := o.SellAmount, o.BuyAmount
	o.SellAmount = decimal.Decimal{}
	o.BuyAmount = decimal.Decimal{}
	e.closeOrder(o)
	e.emit(Event{Type: CanceledOffer, OrderID: o.ID, Owner: o.Owner,
		SellToken: o.SellToken, BuyToken: o.BuyToken,
		SellFilled: refundSell, BuyFilled: refundBuy})
	return nil
}

// OrderDetails returns a read-only projection of the record. Unknown
// and closed ids both project zero amounts, so callers need no
// separate existence check.
func (e *Engine) OrderDetails(id uint64) Order {
	o, ok := e.orders[id]
	if !ok {
		return Order{}
	}
	return *o
}

// FirstOffer returns the best-priced resting id for the pair, 0 if
// the book side is empty.
func (e *Engine) FirstOffer(p Pair) uint64 {
	ix, ok := e.books[p]
	if !ok {
		return 0
	}
	return ix.First()
}

// LastOffer returns the worst-priced resting id for the pair, 0 if
// the book side is empty.
func (e *Engine) LastOffer(p Pair) uint64 {
	ix, ok := e.books[p]
	if !ok {
		return 0
	}
	return ix.Last()
}

// OpenOrders lists an account's resting order ids in ascending order.
func (e *Engine) OpenOrders(owner string) []uint64 {
	tr, ok := e.open[owner]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, tr.Len())
	tr.Ascend(func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out
}

// BookLevel is one aggregated price level of a pair's book.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Orders int             `json:"orders"`
	Sell   decimal.Decimal `json:"sell"`
	Buy    decimal.Decimal `json:"buy"`
}

// Depth aggregates up to max price levels of a pair's book, best
// first. max <= 0 means the whole book.
func (e *Engine) Depth(p Pair, max int) []BookLevel {
	ix, ok := e.books[p]
	if !ok {
		return nil
	}
	var out []BookLevel
	ix.Ascend(func(price decimal.Decimal, id uint64) bool {
		o := e.orders[id]
		if o == nil {
			panic(fmt.Sprintf("exchange: index holds unknown order %d", id))
		}
		if n := len(out); n == 0 || !out[n-1].Price.Equal(price) {
			if max > 0 && len(out) == max {
				return false
			}
			out = append(out, BookLevel{Price: price})
		}
		lvl := &out[len(out)-1]
		lvl.Orders++
		lvl.Sell = lvl.Sell.Add(o.SellAmount)
		lvl.Buy = lvl.Buy.Add(o.BuyAmount)
		return true
	})
	return out
}

// Pairs lists every pair side that currently has a non-empty book.
func (e *Engine) Pairs() []Pair {
	out := make([]Pair, 0, len(e.books))
	for p, ix := range e.books {
		if ix.Len() > 0 {
			out = append(out, p)
		}
	}
	return out
}

// WalkOpen visits every live order, for snapshots.
func (e *Engine) WalkOpen(fn func(Order)) {
	for _, o := range e.orders {
		if !o.Closed() {
			fn(*o)
		}
	}
}

// LastID returns the highest order id issued so far. Ids are never
// reused.
func (e *Engine) LastID() uint64 { return e.nextID }

// AdvanceID moves the id counter forward to at least last. Closed
// orders drop out of snapshots, so restoring live orders alone can
// leave the counter behind the one the snapshot saw.
func (e *Engine) AdvanceID(last uint64) {
	if last > e.nextID {
		e.nextID = last
	}
}

// Restore re-seats a live order from a snapshot: record, index entry
// and open-set, with no ledger movement (balances are restored
// separately). The id counter advances past restored ids.
func (e *Engine) Restore(o Order) error {
	if o.ID == 0 || o.Closed() {
		return fmt.Errorf("%w: unrestorable order %d", ErrInvalidOrder, o.ID)
	}
	if _, exists := e.orders[o.ID]; exists {
		return fmt.Errorf("exchange: order %d restored twice", o.ID)
	}
	rec := o
	e.orders[rec.ID] = &rec
	e.trackOpen(&rec)
	if err := e.book(rec.Pair()).Insert(rec.Price(), rec.ID); err != nil {
		return err
	}
	if rec.ID > e.nextID {
		e.nextID = rec.ID
	}
	return nil
}

func (e *Engine) trackOpen(o *Order) {
	tr, ok := e.open[o.Owner]
	if !ok {
		tr = btree.NewG[uint64](8, func(a, b uint64) bool { return a < b })
		e.open[o.Owner] = tr
	}
	tr.ReplaceOrInsert(o.ID)
}

// closeOrder retires a record: amounts zeroed for audit, open-set
// entry dropped. The record itself stays addressable by id.
func (e *Engine) closeOrder(o *Order) {
	o.SellAmount = decimal.Decimal{}
	o.BuyAmount = decimal.Decimal{}
	if tr, ok := e.open[o.Owner]; ok {
		tr.Delete(o.ID)
	}
}

func (e *Engine) emit(ev Event) {
	ev.Time = e.clock()
	e.sink.Publish(ev)
}

func validateOffer(owner string, sellAmt decimal.Decimal, sellTok string, buyAmt decimal.Decimal, buyTok string, expiry int64) error {
	switch {
	case owner == "":
		return fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	case sellTok == "" || buyTok == "":
		return fmt.Errorf("%w: missing token", ErrInvalidOrder)
	case sellTok == buyTok:
		return fmt.Errorf("%w: sell and buy tokens must differ", ErrInvalidOrder)
	case sellAmt.Sign() <= 0 || buyAmt.Sign() <= 0:
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidOrder)
	case !sellAmt.IsInteger() || !buyAmt.IsInteger():
		return fmt.Errorf("%w: amounts must be whole base units", ErrInvalidOrder)
	case expiry < 0:
		return fmt.Errorf("%w: negative expiry", ErrInvalidOrder)
	}
	return nil
}
