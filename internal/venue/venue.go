// Package venue defines the adapter surface both exchanges implement, the
// typed error taxonomy the executor branches on, and the paper-trading
// simulator that stands in for a real adapter in simulated mode.
//
// Adapters are intentionally narrow: market discovery, one-shot quote reads,
// taker order placement, fill/cancel queries, balance, and a best-bid sell
// used by the unwind path. Everything venue-specific (pagination, signing,
// schema quirks) stays behind this interface.
package venue

import (
	"context"

	"crossarb/pkg/types"
)

// SellResult reports what a SellAtBid attempt actually moved.
type SellResult struct {
	OrderID    string
	UnitsSold  int
	PriceCents float64 // limit price the sell was placed at
}

// ProceedsUSD is the cash recovered by the sell.
func (r SellResult) ProceedsUSD() float64 {
	return float64(r.UnitsSold) * r.PriceCents / 100
}

// Adapter is the capability set shared by both venues. All methods honor
// context cancellation and return errors from this package's taxonomy.
type Adapter interface {
	// Venue identifies which exchange this adapter talks to.
	Venue() types.Venue

	// ListMarkets pulls the venue's open markets and normalizes them.
	// Markets resolving outside the scan window are already filtered out.
	ListMarkets(ctx context.Context) ([]types.NormalizedMarket, error)

	// GetQuote reads the current top-of-book and ask ladders for both sides
	// of one contract. Empty sides come back as nil ask prices.
	GetQuote(ctx context.Context, m types.NormalizedMarket) (types.Quote, error)

	// PlaceTaker places an immediate-or-cancel (venue A) or fill-or-kill
	// (venue B) buy for units contracts of the given side at limitCents.
	// Returns the venue order id; fills are confirmed via GetFill.
	PlaceTaker(ctx context.Context, m types.NormalizedMarket, side types.Side, units int, limitCents float64) (string, error)

	// Cancel cancels any resting remainder of an order. Cancelling an order
	// that is already fully filled or expired is not an error.
	Cancel(ctx context.Context, orderID string) error

	// GetFill returns the number of units filled so far for an order.
	// This is the authoritative fill count; order status alone is not
	// (a cancelled order also has no remaining units).
	GetFill(ctx context.Context, orderID string) (int, error)

	// GetBalance returns the venue cash balance in USD.
	GetBalance(ctx context.Context) (float64, error)

	// SellAtBid places one taker sell of units at the current best bid
	// (floored to a whole cent, minimum 1). Retrying is the caller's job.
	SellAtBid(ctx context.Context, m types.NormalizedMarket, side types.Side, units int) (SellResult, error)
}
