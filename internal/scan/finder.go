package scan

import (
	"sort"
	"time"

	"crossarb/pkg/types"
)

// spreadEpsilon absorbs float noise so an exactly-at-minimum spread
// (e.g. 48.35 + 48.35 against a 3.3 floor) still qualifies.
const spreadEpsilon = 1e-9

// Finder prices pair quotes into opportunities.
type Finder struct {
	minSpreadCents float64
}

// NewFinder builds a finder with the configured minimum spread.
func NewFinder(minSpreadCents float64) *Finder {
	return &Finder{minSpreadCents: minSpreadCents}
}

// FindAll prices every quoted pair and returns all candidates sorted by
// spread, widest first.
func (f *Finder) FindAll(quoted []types.PairQuotes, now time.Time) []types.Opportunity {
	var opps []types.Opportunity
	for _, pq := range quoted {
		opps = append(opps, f.Find(pq, now)...)
	}
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].SpreadCents > opps[j].SpreadCents
	})
	return opps
}

// Find evaluates both strategies for one pair. Both may fire in the same
// tick. A side with no resting offers never produces a candidate.
func (f *Finder) Find(pq types.PairQuotes, now time.Time) []types.Opportunity {
	var opps []types.Opportunity
	for _, strat := range []types.Strategy{types.StrategyA, types.StrategyB} {
		if opp, ok := f.evaluate(pq, strat, now); ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

func (f *Finder) evaluate(pq types.PairQuotes, strat types.Strategy, now time.Time) (types.Opportunity, bool) {
	kCost, ok := pq.A.Ask(strat.VenueASide())
	if !ok {
		return types.Opportunity{}, false
	}
	pCost, ok := pq.B.Ask(strat.VenueBSide())
	if !ok {
		return types.Opportunity{}, false
	}

	spread := 100 - (kCost + pCost)
	if spread < f.minSpreadCents-spreadEpsilon {
		return types.Opportunity{}, false
	}

	kDepth := pq.A.Depth(strat.VenueASide())
	pDepth := pq.B.Depth(strat.VenueBSide())
	units := int(kDepth)
	if int(pDepth) < units {
		units = int(pDepth)
	}
	if units < 1 {
		return types.Opportunity{}, false
	}

	return types.Opportunity{
		Pair:               pq.Pair,
		Strategy:           strat,
		KCostCents:         kCost,
		PCostCents:         pCost,
		SpreadCents:        spread,
		Tier:               types.TierFor(spread),
		KDepth:             kDepth,
		PDepth:             pDepth,
		PLadder:            pq.B.AskLadder(strat.VenueBSide()),
		TradeableUnits:     units,
		MaxLockedProfitUSD: float64(units) * spread / 100,
		HoursToClose:       pq.Pair.A.ResolutionDT.Sub(now).Hours(),
		DetectedAt:         now,
	}, true
}
