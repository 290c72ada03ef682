package wal

import "time"

// Op identifies the state-changing command a record carries.
type Op uint8

const (
	OpDeposit Op = iota
	OpWithdraw
	OpMakeOffer
	OpTakeOffer
	OpCancelOffer
	OpSetTrading
)

func (o Op) String() string {
	switch o {
	case OpDeposit:
		return "DEPOSIT"
	case OpWithdraw:
		return "WITHDRAW"
	case OpMakeOffer:
		return "MAKE_OFFER"
	case OpTakeOffer:
		return "TAKE_OFFER"
	case OpCancelOffer:
		return "CANCEL_OFFER"
	case OpSetTrading:
		return "SET_TRADING"
	default:
		return "UNKNOWN"
	}
}

// Record is an immutable log entry. Seq is assigned by the caller and
// must increase strictly across the whole log.
type Record struct {
	Op   Op
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(op Op, seq uint64, data []byte) *Record {
	return &Record{
		Op:   op,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
