// Package orderindex implements the price-ordered ledger of resting
// order ids for one instrument-pair side. It maintains a red-black
// tree keyed by price, with a FIFO queue of order ids threaded through
// every price node, so matching walks orders in strict price-time
// priority.
//
// Nodes live in an index-based arena and reference each other by
// integer handle rather than pointer; slot 0 is the shared black
// sentinel. Rebalancing rotations are plain slot rewrites and the
// whole structure serializes trivially.
package orderindex
