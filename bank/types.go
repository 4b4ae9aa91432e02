// Package bank implements the exchange-rate ledger and the
// swap-rewards saga that converts hours/storypoints into FMJ or ICP
// ledger transfers (spec §4.5).
package bank

import "github.com/fort-major/dao/e8s"

// SwapFrom is the reward currency being spent.
type SwapFrom int

const (
	SwapFromStorypoint SwapFrom = iota
	SwapFromHour
)

// SwapInto is the ledger asset being bought.
type SwapInto int

const (
	SwapIntoICP SwapInto = iota
	SwapIntoFMJ
)

type ratePair struct {
	From SwapFrom
	Into SwapInto
}

// rateEntry is one point in an exchange rate's history, most recent
// first — mirrors the original's LinkedList<(TimestampNs, E8s)>.
type rateEntry struct {
	At   uint64
	Rate e8s.E8s
}

// ExchangeRateHistoryPoint is the public, read-only form of a rateEntry.
type ExchangeRateHistoryPoint struct {
	At   uint64
	Rate e8s.E8s
}

// ExchangeRateRow is one (from, into, history) triple as returned by
// GetExchangeRates.
type ExchangeRateRow struct {
	From    SwapFrom
	Into    SwapInto
	History []ExchangeRateHistoryPoint
}
