package exchange

import (
	"github.com/shopspring/decimal"
)

// priceScale is the fixed-point scale for price keys:
// price = sell_amount * priceScale / buy_amount, truncated.
var priceScale = decimal.NewFromInt(1_000_000_000)

// Pair identifies one side of a book: offers selling Sell for Buy.
type Pair struct {
	Sell string
	Buy  string
}

// Reverse returns the opposite side, where the counterparties of this
// pair's offers rest.
func (p Pair) Reverse() Pair { return Pair{Sell: p.Buy, Buy: p.Sell} }

func (p Pair) String() string { return p.Sell + "/" + p.Buy }

// Order is a resting offer: SellAmount of SellToken demanded to be
// exchanged for BuyAmount of BuyToken. Amounts are remaining values,
// decremented in place by matching; a closed order has both at zero.
type Order struct {
	ID         uint64
	SellAmount decimal.Decimal
	SellToken  string
	BuyAmount  decimal.Decimal
	BuyToken   string
	Owner      string
	Expiry     int64 // logical deadline, 0 = never
}

func (o *Order) Pair() Pair { return Pair{Sell: o.SellToken, Buy: o.BuyToken} }

// Price is the book key: sell units demanded per buy unit, fixed-point
// with truncation. Stable across partial fills up to integer rounding.
func (o *Order) Price() decimal.Decimal {
	return mulDivTrunc(o.SellAmount, priceScale, o.BuyAmount)
}

// Closed reports whether the order has been fully filled or canceled.
func (o *Order) Closed() bool { return o.SellAmount.Sign() == 0 }

// Expired reports whether the order's deadline has passed at the given
// logical time.
func (o *Order) Expired(now int64) bool { return o.Expiry != 0 && o.Expiry <= now }

// mulDivTrunc computes a*b/c truncated toward zero at integer
// precision. All fill arithmetic goes through here so rounding is
// decided in exactly one place.
func mulDivTrunc(a, b, c decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}
