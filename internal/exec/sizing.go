// Package exec turns detected opportunities into two-leg executions: size the
// trade, buy the venue-A leg, verify the fill, hedge on venue B, and unwind
// the first leg when the hedge fails. Paper mode runs the same state machine
// against simulated venues.
package exec

import (
	"math"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

// baseUnits applies the capital cap, both best-ask depths and the per-trade
// unit ceiling.
func baseUnits(cfg config.ExecConfig, o types.Opportunity) int {
	units := int(math.Floor(cfg.MaxTradeUSD * 100 / (o.KCostCents + o.PCostCents)))
	if d := int(o.KDepth); d < units {
		units = d
	}
	if d := int(o.PDepth); d < units {
		units = d
	}
	if cfg.MaxUnitsPerMap > 0 && cfg.MaxUnitsPerMap < units {
		units = cfg.MaxUnitsPerMap
	}
	return units
}

// walkResult is the outcome of a venue-B ladder walk.
type walkResult struct {
	Units        int
	BlendedCents float64 // size-weighted average across consumed levels
	SpendUSD     float64
}

// walkLadder consumes the venue-B ask ladder best-first until the cumulative
// spend reaches minSpendUSD. Returns ok=false when the ladder runs out first.
func walkLadder(ladder types.Ladder, startUnits int, minSpendUSD float64) (walkResult, bool) {
	var (
		units     int
		spendUSD  float64
		costCents float64
	)

	take := func(level types.PriceLevel, n int) {
		units += n
		costCents += float64(n) * level.PriceCents
		spendUSD = costCents / 100
	}

	for _, level := range ladder {
		size := int(level.Size)
		if size <= 0 {
			continue
		}

		// Take the planned units from the best level first, then single
		// units at successively worse prices until the minimum is met.
		if units == 0 {
			n := startUnits
			if n > size {
				n = size
			}
			take(level, n)
			size -= n
		}
		for size > 0 && spendUSD < minSpendUSD {
			take(level, 1)
			size--
		}
		if spendUSD >= minSpendUSD {
			return walkResult{
				Units:        units,
				BlendedCents: costCents / float64(units),
				SpendUSD:     spendUSD,
			}, true
		}
	}
	return walkResult{}, false
}
