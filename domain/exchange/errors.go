package exchange

import "errors"

var (
	// ErrInvalidOrder rejects malformed offers (non-positive or
	// fractional amounts, identical or empty tokens) before any state
	// change.
	ErrInvalidOrder = errors.New("exchange: invalid order")

	// ErrNotFound is returned when an operation references an unknown
	// or already-closed order id.
	ErrNotFound = errors.New("exchange: order not found")

	// ErrNotOwner rejects a cancel attempt by anyone but the order's
	// owner, and trading-gate changes by anyone but the admin.
	ErrNotOwner = errors.New("exchange: caller does not own the order")

	// ErrOrderExpired is returned when a directed take targets an
	// order past its deadline. During matching, expired candidates are
	// skipped rather than surfaced.
	ErrOrderExpired = errors.New("exchange: order expired")

	// ErrTradingDisabled rejects directed takes while the trading gate
	// is off. Offers made while disabled simply rest unmatched.
	ErrTradingDisabled = errors.New("exchange: trading is disabled")
)
