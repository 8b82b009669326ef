// Package api serves the read-only dashboard: a health endpoint, a JSON
// snapshot of the scanner state, and a WebSocket stream of per-tick events.
// The dashboard never accepts commands; client messages are discarded.
package api

import (
	"time"

	"crossarb/pkg/types"
)

// Event is the wrapper for everything pushed over the WebSocket.
type Event struct {
	Type      string `json:"type"` // "snapshot", "tick", "opportunity", "trade", "refresh"
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// TickEvent summarizes one fast-loop cycle.
type TickEvent struct {
	Tick          int64   `json:"tick"`
	Pairs         int     `json:"pairs"`
	Quoted        int     `json:"quoted"`
	Opportunities int     `json:"opportunities"`
	BestSpread    float64 `json:"best_spread_cents"`
	ElapsedMS     int64   `json:"elapsed_ms"`
}

// RefreshEvent summarizes one slow-loop market refresh.
type RefreshEvent struct {
	VenueAMarkets int `json:"venue_a_markets"`
	VenueBMarkets int `json:"venue_b_markets"`
	MatchedPairs  int `json:"matched_pairs"`
}

// OpportunityEvent is one priced arb candidate.
type OpportunityEvent struct {
	PairKey     string  `json:"pair_key"`
	KTicker     string  `json:"k_ticker"`
	PTokenID    string  `json:"p_token_id"`
	Strategy    string  `json:"strategy"`
	KCostCents  float64 `json:"k_cost_cents"`
	PCostCents  float64 `json:"p_cost_cents"`
	SpreadCents float64 `json:"spread_cents"`
	Tier        string  `json:"tier"`
	Units       int     `json:"tradeable_units"`
	MaxUSD      float64 `json:"max_locked_profit_usd"`
	HoursLeft   float64 `json:"hours_to_close"`
}

// NewOpportunityEvent converts a detected opportunity for the wire.
func NewOpportunityEvent(o types.Opportunity) OpportunityEvent {
	return OpportunityEvent{
		PairKey:     o.Pair.Key(),
		KTicker:     o.Pair.A.PlatformID,
		PTokenID:    o.PToken(),
		Strategy:    string(o.Strategy),
		KCostCents:  o.KCostCents,
		PCostCents:  o.PCostCents,
		SpreadCents: o.SpreadCents,
		Tier:        string(o.Tier),
		Units:       o.TradeableUnits,
		MaxUSD:      o.MaxLockedProfitUSD,
		HoursLeft:   o.HoursToClose,
	}
}

// TradeEvent is one finished execution attempt.
type TradeEvent struct {
	PairKey         string  `json:"pair_key"`
	KTicker         string  `json:"k_ticker"`
	Strategy        string  `json:"strategy"`
	Status          string  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	RequestedUnits  int     `json:"requested_units"`
	KFilled         int     `json:"k_filled"`
	PFilled         int     `json:"p_filled"`
	KPriceCents     float64 `json:"k_price_cents"`
	PPriceCents     float64 `json:"p_price_cents"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	LockedProfitUSD float64 `json:"locked_profit_usd"`
	KOrderID        string  `json:"k_order_id,omitempty"`
	POrderID        string  `json:"p_order_id,omitempty"`
}

// NewTradeEvent converts an execution result for the wire.
func NewTradeEvent(o types.Opportunity, r types.ExecutionResult) TradeEvent {
	return TradeEvent{
		PairKey:         o.Pair.Key(),
		KTicker:         o.Pair.A.PlatformID,
		Strategy:        string(o.Strategy),
		Status:          string(r.Status),
		Reason:          r.Reason,
		RequestedUnits:  r.RequestedUnits,
		KFilled:         r.KFilled,
		PFilled:         r.PFilled,
		KPriceCents:     r.KPriceCents,
		PPriceCents:     r.PPriceCents,
		TotalCostUSD:    r.TotalCostUSD(),
		LockedProfitUSD: r.LockedProfitUSD,
		KOrderID:        r.KOrderID,
		POrderID:        r.POrderID,
	}
}
