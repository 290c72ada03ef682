package exchange

import "github.com/shopspring/decimal"

// EventType names the externally observable outcomes of engine
// operations. External observers can reconstruct trade history from
// these without re-deriving it from balance deltas.
type EventType string

const (
	MadeOffer        EventType = "MadeOffer"
	PartialFillOffer EventType = "PartialFillOffer"
	FilledOffer      EventType = "FilledOffer"
	CanceledOffer    EventType = "CanceledOffer"
)

// Event describes one state transition of one order. For fills,
// SellFilled/BuyFilled carry the quantities settled by this event in
// the order's own sell/buy units.
type Event struct {
	Type       EventType       `json:"type"`
	OrderID    uint64          `json:"order_id"`
	Owner      string          `json:"owner"`
	SellToken  string          `json:"sell_token"`
	BuyToken   string          `json:"buy_token"`
	SellFilled decimal.Decimal `json:"sell_filled"`
	BuyFilled  decimal.Decimal `json:"buy_filled"`
	Time       int64           `json:"time"`
}

// Sink receives events synchronously, inside the request that caused
// them. Implementations must not block; durable fan-out belongs to the
// outbox.
type Sink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
