package wal

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Command is the payload of a Record: one request exactly as the
// service accepted it, before any engine state changed. Amounts travel
// as decimal strings so the log stays precision-exact.
//
// Field usage per op:
//
//	DEPOSIT/WITHDRAW  Account, Token, Amount
//	MAKE_OFFER        Account, SellAmount, SellToken, BuyAmount, BuyToken, Expiry
//	TAKE_OFFER        Account, OrderID, Amount
//	CANCEL_OFFER      Account, OrderID
//	SET_TRADING       Account, Enabled
type Command struct {
	Account    string
	OrderID    uint64
	Token      string
	Amount     string
	SellAmount string
	SellToken  string
	BuyAmount  string
	BuyToken   string
	Expiry     int64
	Enabled    bool
}

// Wire field numbers. Append-only: numbers are never reused.
const (
	fieldAccount    = 1
	fieldOrderID    = 2
	fieldToken      = 3
	fieldAmount     = 4
	fieldSellAmount = 5
	fieldSellToken  = 6
	fieldBuyAmount  = 7
	fieldBuyToken   = 8
	fieldExpiry     = 9
	fieldEnabled    = 10
)

// Marshal encodes the command in protobuf wire format. Zero-valued
// fields are omitted, matching proto3 semantics.
func (c *Command) Marshal() []byte {
	var b []byte
	b = appendString(b, fieldAccount, c.Account)
	if c.OrderID != 0 {
		b = protowire.AppendTag(b, fieldOrderID, protowire.VarintType)
		b = protowire.AppendVarint(b, c.OrderID)
	}
	b = appendString(b, fieldToken, c.Token)
	b = appendString(b, fieldAmount, c.Amount)
	b = appendString(b, fieldSellAmount, c.SellAmount)
	b = appendString(b, fieldSellToken, c.SellToken)
	b = appendString(b, fieldBuyAmount, c.BuyAmount)
	b = appendString(b, fieldBuyToken, c.BuyToken)
	if c.Expiry != 0 {
		b = protowire.AppendTag(b, fieldExpiry, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.Expiry))
	}
	if c.Enabled {
		b = protowire.AppendTag(b, fieldEnabled, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// Unmarshal decodes a command, skipping unknown fields so old binaries
// can replay logs written by newer ones.
func (c *Command) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wal: bad command tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("wal: bad command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldAccount:
				c.Account = string(v)
			case fieldToken:
				c.Token = string(v)
			case fieldAmount:
				c.Amount = string(v)
			case fieldSellAmount:
				c.SellAmount = string(v)
			case fieldSellToken:
				c.SellToken = string(v)
			case fieldBuyAmount:
				c.BuyAmount = string(v)
			case fieldBuyToken:
				c.BuyToken = string(v)
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("wal: bad command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldOrderID:
				c.OrderID = v
			case fieldExpiry:
				c.Expiry = int64(v)
			case fieldEnabled:
				c.Enabled = v != 0
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wal: bad command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
