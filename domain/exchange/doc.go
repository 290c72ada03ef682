// Package exchange implements the matching engine for a token
// exchange: order records, per-pair price-ordered books, and the
// price-time-priority matching state machine that fills incoming
// offers against resting ones under ledger escrow.
//
// The engine is a pure logic object with no internal locking. It must
// be driven by a single writer (the service layer) that serializes
// every state-mutating request, so every operation here is an atomic
// state transition: either the whole fill-and-settle sequence happens,
// or none of it does.
package exchange
