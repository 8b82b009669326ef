// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the scanner — normalized market
// rows, matched pairs, per-tick quotes, detected opportunities, and execution
// results. It has no dependencies on internal packages, so it can be imported
// by any layer.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Venue identifies one of the two exchanges.
type Venue string

const (
	VenueA Venue = "A" // integer-cent CLOB, RSA-signed REST orders
	VenueB Venue = "B" // token CLOB, wallet-signed orders via proxy maker
)

// AssetClass splits markets into the two families the matcher understands.
type AssetClass string

const (
	ClassSports AssetClass = "SPORTS"
	ClassCrypto AssetClass = "CRYPTO"
)

// Subtype distinguishes whole-series contracts from single-map contracts.
// A CS2 "map 2 winner" market must never pair with a series-winner market.
type Subtype string

const (
	SubtypeMap    Subtype = "map"
	SubtypeSeries Subtype = "series"
)

// Direction is the comparison side of a crypto threshold market.
type Direction string

const (
	DirAbove Direction = "ABOVE"
	DirBelow Direction = "BELOW"
)

// Side is the binary contract side being bought or sold.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other contract side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Strategy selects which side is bought on which venue.
//
//	StrategyA: YES on venue A, NO on venue B
//	StrategyB: NO on venue A, YES on venue B
type Strategy string

const (
	StrategyA Strategy = "A"
	StrategyB Strategy = "B"
)

// VenueASide returns the contract side bought on venue A for this strategy.
func (s Strategy) VenueASide() Side {
	if s == StrategyA {
		return SideYes
	}
	return SideNo
}

// VenueBSide returns the contract side bought on venue B for this strategy.
func (s Strategy) VenueBSide() Side {
	return s.VenueASide().Opposite()
}

// Tier buckets opportunities by spread for logging and persistence.
type Tier string

const (
	TierUltraHigh Tier = "ULTRA_HIGH" // spread >= 8.0c
	TierHigh      Tier = "HIGH"       // [5.0, 8.0)
	TierMid       Tier = "MID"        // [4.0, 5.0)
	TierLow       Tier = "LOW"        // [min spread, 4.0)
)

// TierFor classifies a spread in cents. Spreads below the configured minimum
// never reach this function; anything under 4.0 is Low.
func TierFor(spreadCents float64) Tier {
	switch {
	case spreadCents >= 8.0:
		return TierUltraHigh
	case spreadCents >= 5.0:
		return TierHigh
	case spreadCents >= 4.0:
		return TierMid
	default:
		return TierLow
	}
}

// ————————————————————————————————————————————————————————————————————————
// Normalized markets and pairs
// ————————————————————————————————————————————————————————————————————————

// NormalizedMarket is one tradable binary contract on one venue, reduced to
// the fields the matcher joins on. Venue and PlatformID are jointly unique.
//
// SPORTS rows carry Sport, Team, Opponent and SportSubtype (Team and Opponent
// already normalized). CRYPTO rows carry CryptoAsset, Direction and Threshold.
// MapNumber is 0 when the contract is not tied to a specific map or game.
type NormalizedMarket struct {
	Venue      Venue
	PlatformID string
	AssetClass AssetClass

	Sport        string
	Team         string
	Opponent     string
	SportSubtype Subtype
	MapNumber    int

	CryptoAsset string
	Direction   Direction
	Threshold   decimal.Decimal

	ResolutionDT time.Time // always UTC

	// Venue-specific handles for the two contract sides. On venue A both
	// collapse to the ticker (the side is chosen at order time); on venue B
	// they are two distinct CLOB token ids.
	YesToken string
	NoToken  string

	RawTitle string // original question text, logging only
}

// Token returns the venue handle for the given contract side.
func (m NormalizedMarket) Token(side Side) string {
	if side == SideYes {
		return m.YesToken
	}
	return m.NoToken
}

// MatchedPair joins one venue-A market to one venue-B market for the same
// real-world event. Pairing is exclusive: a market appears in at most one pair.
type MatchedPair struct {
	A NormalizedMarket
	B NormalizedMarket
}

// Key identifies the pair for cooldowns, logging and persistence.
func (p MatchedPair) Key() string {
	return p.A.PlatformID + "|" + p.B.PlatformID
}

// ————————————————————————————————————————————————————————————————————————
// Quotes
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is one rung of an ask ladder: a price in cents and the number of
// units resting there.
type PriceLevel struct {
	PriceCents float64
	Size       float64
}

// Ladder is an ask ladder ordered best-first (ascending price). Venue feeds
// that arrive in other orders are canonicalized before they get here.
type Ladder []PriceLevel

// Best returns the top of the ladder, or false when the ladder is empty.
func (l Ladder) Best() (PriceLevel, bool) {
	if len(l) == 0 {
		return PriceLevel{}, false
	}
	return l[0], true
}

// Quote is a point-in-time view of both sides of one contract on one venue.
// Ask prices are nil when the side has no resting offers; nil means infinite
// cost, never zero. Depth is the size available at the best ask only.
type Quote struct {
	YesAskCents *float64
	NoAskCents  *float64
	YesDepth    float64
	NoDepth     float64
	YesLadder   Ladder
	NoLadder    Ladder
}

// Ask returns the ask price in cents for the given side, or false when the
// side is empty.
func (q Quote) Ask(side Side) (float64, bool) {
	p := q.YesAskCents
	if side == SideNo {
		p = q.NoAskCents
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Depth returns the units available at the best ask for the given side.
func (q Quote) Depth(side Side) float64 {
	if side == SideYes {
		return q.YesDepth
	}
	return q.NoDepth
}

// AskLadder returns the ask ladder for the given side.
func (q Quote) AskLadder(side Side) Ladder {
	if side == SideYes {
		return q.YesLadder
	}
	return q.NoLadder
}

// PairQuotes bundles the same-tick quotes for both legs of a matched pair.
type PairQuotes struct {
	Pair      MatchedPair
	A         Quote
	B         Quote
	FetchedAt time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Opportunities
// ————————————————————————————————————————————————————————————————————————

// Opportunity is a priced arbitrage candidate: buying VenueASide at KCost and
// VenueBSide at PCost locks SpreadCents per unit. Derived fresh every tick
// and never carried across ticks.
type Opportunity struct {
	Pair     MatchedPair
	Strategy Strategy

	KCostCents  float64 // venue-A ask for the strategy's A side
	PCostCents  float64 // venue-B ask for the strategy's B side
	SpreadCents float64 // 100 - (KCostCents + PCostCents)
	Tier        Tier

	KDepth  float64 // units at venue-A best ask
	PDepth  float64 // units at venue-B best ask
	PLadder Ladder  // venue-B ask ladder for the strategy's B side, best first

	TradeableUnits     int     // min(KDepth, PDepth)
	MaxLockedProfitUSD float64 // TradeableUnits * SpreadCents / 100
	HoursToClose       float64 // venue-A resolution minus detection time

	DetectedAt time.Time
}

// KToken returns the venue-A handle for the strategy's A-side contract.
func (o Opportunity) KToken() string { return o.Pair.A.Token(o.Strategy.VenueASide()) }

// PToken returns the venue-B token id for the strategy's B-side contract.
func (o Opportunity) PToken() string { return o.Pair.B.Token(o.Strategy.VenueBSide()) }

// String renders a compact one-line form for logs.
func (o Opportunity) String() string {
	return fmt.Sprintf("%s/%s %s spread=%.1fc k=%.0fc p=%.1fc units=%d profit=$%.2f",
		o.Pair.A.PlatformID, o.Pair.B.PlatformID, o.Strategy,
		o.SpreadCents, o.KCostCents, o.PCostCents,
		o.TradeableUnits, o.MaxLockedProfitUSD)
}

// ————————————————————————————————————————————————————————————————————————
// Execution
// ————————————————————————————————————————————————————————————————————————

// ExecStatus is the terminal state of one execution attempt.
type ExecStatus string

const (
	ExecFilled       ExecStatus = "filled"        // both legs filled
	ExecSkipped      ExecStatus = "skipped"       // no venue-A exposure taken
	ExecUnwound      ExecStatus = "unwound"       // leg 2 failed, leg 1 sold back
	ExecPartialStuck ExecStatus = "partial_stuck" // leg 2 failed AND unwind failed
	ExecError        ExecStatus = "error"         // internal failure before leg 1
)

// Skip reasons recorded on ExecutionResult.Reason.
const (
	ReasonLowBalance        = "low_balance"
	ReasonNoFill            = "no_fill"
	ReasonInsufficientUnits = "insufficient_units"
	ReasonSpreadTooTight    = "spread_too_tight"
	ReasonMarketCap         = "market_cap"
	ReasonScheduleMismatch  = "schedule_mismatch"
)

// ExecutionResult records everything one execution attempt did, for
// persistence and for the cooldown decision. Cents prices are the actual
// limit prices used (venue-B may be a blended book-walk price).
type ExecutionResult struct {
	Status ExecStatus
	Reason string

	RequestedUnits int
	KFilled        int
	PFilled        int

	KPriceCents float64
	PPriceCents float64

	KCostUSD        float64
	PCostUSD        float64
	LockedProfitUSD float64

	KOrderID string
	POrderID string

	UnwindRecoveredUSD float64

	KBalanceBefore float64
	PBalanceBefore float64
	KBalanceAfter  float64
	PBalanceAfter  float64
}

// TotalCostUSD is the combined capital deployed across both legs.
func (r ExecutionResult) TotalCostUSD() float64 { return r.KCostUSD + r.PCostUSD }

// Terminal reports whether the attempt took venue-A exposure. Skipped and
// errored attempts never placed (or never filled) leg 1.
func (r ExecutionResult) Terminal() bool {
	return r.Status == ExecFilled || r.Status == ExecUnwound || r.Status == ExecPartialStuck
}
