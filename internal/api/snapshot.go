package api

import (
	"time"

	"crossarb/internal/risk"
	"crossarb/internal/venue"
)

// Snapshot is the full dashboard state served at /api/snapshot and pushed
// to each WebSocket client on connect.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`

	Pairs             []PairInfo         `json:"pairs"`
	LastOpportunities []OpportunityEvent `json:"last_opportunities"`
	Risk              risk.Snapshot      `json:"risk"`

	// Wallets is set in paper mode only.
	Wallets *Wallets `json:"wallets,omitempty"`
}

// PairInfo is one matched pair in the current set.
type PairInfo struct {
	PairKey      string `json:"pair_key"`
	KTicker      string `json:"k_ticker"`
	PConditionID string `json:"p_condition_id"`
	Sport        string `json:"sport"`
	Team         string `json:"team"`
	Opponent     string `json:"opponent,omitempty"`
	ClosesAt     string `json:"closes_at,omitempty"`
}

// Wallets carries both simulated wallets in paper mode.
type Wallets struct {
	VenueA venue.WalletSnapshot `json:"venue_a"`
	VenueB venue.WalletSnapshot `json:"venue_b"`
}

// SnapshotProvider is implemented by the engine.
type SnapshotProvider interface {
	Snapshot() Snapshot
}
