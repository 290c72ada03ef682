// Package ledger holds per-account, per-instrument available balances.
// The matching engine consumes it through the Ledger interface: escrow
// is a debit when an offer is made, settlement and refunds are
// credits. Token transfer mechanics behind deposits and withdrawals
// belong to the host environment.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned by Debit and Withdraw when the
// account's available amount is less than requested. No partial debit
// is ever applied.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// ErrInvalidAmount rejects zero or negative deposit/withdraw amounts.
var ErrInvalidAmount = errors.New("ledger: amount must be positive")

// Ledger is the balance collaborator the engine settles against.
// Credit never fails; Debit fails with ErrInsufficientBalance and
// leaves the row untouched.
type Ledger interface {
	Debit(account, instrument string, amount decimal.Decimal) error
	Credit(account, instrument string, amount decimal.Decimal)
	BalanceOf(account, instrument string) decimal.Decimal
}

type key struct {
	account    string
	instrument string
}

// InMemory is the process-local Ledger implementation. It is not
// safe for concurrent use; the service layer serializes access.
type InMemory struct {
	balances map[key]decimal.Decimal
}

func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[key]decimal.Decimal)}
}

func (l *InMemory) BalanceOf(account, instrument string) decimal.Decimal {
	return l.balances[key{account, instrument}]
}

func (l *InMemory) Credit(account, instrument string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	k := key{account, instrument}
	l.balances[k] = l.balances[k].Add(amount)
}

func (l *InMemory) Debit(account, instrument string, amount decimal.Decimal) error {
	k := key{account, instrument}
	bal := l.balances[k]
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	rest := bal.Sub(amount)
	if rest.Sign() == 0 {
		delete(l.balances, k)
	} else {
		l.balances[k] = rest
	}
	return nil
}

// Deposit credits the account after validating the amount.
func (l *InMemory) Deposit(account, instrument string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return ErrInvalidAmount
	}
	l.Credit(account, instrument, amount)
	return nil
}

// Withdraw debits the account's available (non-escrowed) balance.
func (l *InMemory) Withdraw(account, instrument string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return ErrInvalidAmount
	}
	return l.Debit(account, instrument, amount)
}

// Walk visits every non-zero balance row, for snapshots.
func (l *InMemory) Walk(fn func(account, instrument string, amount decimal.Decimal)) {
	for k, v := range l.balances {
		fn(k.account, k.instrument, v)
	}
}
