// Package risk gates execution attempts: per-pair cooldowns indexed by price
// tick, per-market session unit caps, and venue halts after credential
// failures. The guard holds no positions and emits no orders; the executor
// consults it before acting and reports outcomes back.
package risk

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

// marketCapRest is how long a pair rests after hitting the session unit cap.
const marketCapRest = 30 * time.Second

// Guard tracks cooldowns, session unit totals and venue halts. All methods
// are safe for concurrent use.
type Guard struct {
	cfg       config.ExecConfig
	capCycles int64
	logger    *slog.Logger

	mu          sync.Mutex
	cycle       int64
	cooldowns   map[string]int64 // pair key -> first eligible cycle
	unitsTraded map[string]int   // venue-A market id -> units this session
	halted      map[types.Venue]string
}

// NewGuard builds a guard. pollInterval converts the fixed market-cap rest
// into a cycle count.
func NewGuard(cfg config.ExecConfig, pollInterval time.Duration, logger *slog.Logger) *Guard {
	capCycles := int64(1)
	if pollInterval > 0 {
		capCycles = int64(math.Ceil(float64(marketCapRest) / float64(pollInterval)))
	}
	return &Guard{
		cfg:         cfg,
		capCycles:   capCycles,
		logger:      logger.With("component", "risk"),
		cooldowns:   make(map[string]int64),
		unitsTraded: make(map[string]int),
		halted:      make(map[types.Venue]string),
	}
}

// BeginCycle advances the tick counter and drops expired cooldown entries.
// The engine calls it once per price tick.
func (g *Guard) BeginCycle() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cycle++
	for key, until := range g.cooldowns {
		if g.cycle >= until {
			delete(g.cooldowns, key)
		}
	}
	return g.cycle
}

// OnCooldown reports whether the pair is still resting.
func (g *Guard) OnCooldown(pairKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.cooldowns[pairKey]
	return ok && g.cycle < until
}

// RecordOutcome applies the cooldown for one finished execution attempt.
// Cooldowns are per pair, not per strategy: the base span doubles after an
// unwind or a stuck position, a no-fill uses its own span, and an order
// conflict rests six times the base.
func (g *Guard) RecordOutcome(pairKey string, result types.ExecutionResult, conflict bool) {
	cycles := int64(g.cfg.CooldownCycles)
	switch {
	case conflict:
		cycles *= 6
	case result.Status == types.ExecUnwound || result.Status == types.ExecPartialStuck:
		cycles *= 2
	case result.Status == types.ExecSkipped && result.Reason == types.ReasonNoFill:
		cycles = int64(g.cfg.NoFillCooldown)
	case result.Status == types.ExecSkipped && result.Reason == types.ReasonMarketCap:
		cycles = g.capCycles
	}

	g.mu.Lock()
	g.cooldowns[pairKey] = g.cycle + cycles
	g.mu.Unlock()

	g.logger.Debug("pair cooling down",
		"pair", pairKey, "status", string(result.Status), "cycles", cycles)
}

// RemainingUnits returns how many more units the session cap allows for a
// venue-A market.
func (g *Guard) RemainingUnits(marketID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.cfg.MaxUnitsPerMarket - g.unitsTraded[marketID]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordUnits adds filled units to a market's session total. The total
// never resets while the process runs.
func (g *Guard) RecordUnits(marketID string, units int) {
	if units <= 0 {
		return
	}
	g.mu.Lock()
	g.unitsTraded[marketID] += units
	total := g.unitsTraded[marketID]
	g.mu.Unlock()

	if total >= g.cfg.MaxUnitsPerMarket {
		g.logger.Info("market session cap reached", "market", marketID, "units", total)
	}
}

// HaltVenue stops all further executions touching the venue until restart.
// Used after credential failures; scanning continues.
func (g *Guard) HaltVenue(v types.Venue, reason string) {
	g.mu.Lock()
	_, already := g.halted[v]
	if !already {
		g.halted[v] = reason
	}
	g.mu.Unlock()

	if !already {
		g.logger.Error("venue halted for this session", "venue", string(v), "reason", reason)
	}
}

// Halted reports whether a venue is halted.
func (g *Guard) Halted(v types.Venue) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.halted[v]
	return ok
}

// Snapshot is the guard state exposed on the dashboard.
type Snapshot struct {
	Cycle        int64             `json:"cycle"`
	Cooldowns    map[string]int64  `json:"cooldowns"` // pair key -> remaining cycles
	UnitsTraded  map[string]int    `json:"units_traded"`
	HaltedVenues map[string]string `json:"halted_venues"`
}

// Snapshot copies the current guard state.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		Cycle:        g.cycle,
		Cooldowns:    make(map[string]int64, len(g.cooldowns)),
		UnitsTraded:  make(map[string]int, len(g.unitsTraded)),
		HaltedVenues: make(map[string]string, len(g.halted)),
	}
	for key, until := range g.cooldowns {
		if remaining := until - g.cycle; remaining > 0 {
			snap.Cooldowns[key] = remaining
		}
	}
	for id, units := range g.unitsTraded {
		snap.UnitsTraded[id] = units
	}
	for v, reason := range g.halted {
		snap.HaltedVenues[string(v)] = reason
	}
	return snap
}
