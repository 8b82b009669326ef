package exec

import (
	"math"
	"testing"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

func sizingConfig() config.ExecConfig {
	return config.ExecConfig{
		MaxTradeUSD:    25,
		MaxUnitsPerMap: 100,
	}
}

func TestBaseUnitsCapitalCap(t *testing.T) {
	t.Parallel()

	o := types.Opportunity{
		KCostCents: 48, PCostCents: 49,
		KDepth: 1000, PDepth: 1000,
	}
	// floor(25*100 / 97) = 25
	if got := baseUnits(sizingConfig(), o); got != 25 {
		t.Fatalf("units = %d, want 25", got)
	}
}

func TestBaseUnitsDepthCaps(t *testing.T) {
	t.Parallel()

	cfg := sizingConfig()
	o := types.Opportunity{
		KCostCents: 10, PCostCents: 10,
		KDepth: 12, PDepth: 40,
	}
	if got := baseUnits(cfg, o); got != 12 {
		t.Fatalf("venue-A depth cap: units = %d, want 12", got)
	}

	o.KDepth, o.PDepth = 40, 7
	if got := baseUnits(cfg, o); got != 7 {
		t.Fatalf("venue-B depth cap: units = %d, want 7", got)
	}
}

func TestBaseUnitsPerMapCeiling(t *testing.T) {
	t.Parallel()

	cfg := sizingConfig()
	cfg.MaxUnitsPerMap = 5
	o := types.Opportunity{
		KCostCents: 10, PCostCents: 10,
		KDepth: 1000, PDepth: 1000,
	}
	if got := baseUnits(cfg, o); got != 5 {
		t.Fatalf("units = %d, want 5", got)
	}
}

func TestWalkLadderBlendsWorseLevels(t *testing.T) {
	t.Parallel()

	ladder := types.Ladder{
		{PriceCents: 30, Size: 3},
		{PriceCents: 32, Size: 5},
	}
	walk, ok := walkLadder(ladder, 3, 1.00)
	if !ok {
		t.Fatal("walk should succeed")
	}
	if walk.Units != 4 {
		t.Fatalf("units = %d, want 4", walk.Units)
	}
	if math.Abs(walk.BlendedCents-30.5) > 1e-9 {
		t.Fatalf("blended = %v, want 30.5", walk.BlendedCents)
	}
	if math.Abs(walk.SpendUSD-1.22) > 1e-9 {
		t.Fatalf("spend = %v, want 1.22", walk.SpendUSD)
	}
}

func TestWalkLadderStopsWhenBestLevelSuffices(t *testing.T) {
	t.Parallel()

	ladder := types.Ladder{
		{PriceCents: 50, Size: 10},
		{PriceCents: 90, Size: 10},
	}
	walk, ok := walkLadder(ladder, 3, 1.00)
	if !ok {
		t.Fatal("walk should succeed")
	}
	if walk.Units != 3 {
		t.Fatalf("units = %d, want 3", walk.Units)
	}
	if walk.BlendedCents != 50 {
		t.Fatalf("blended = %v, want 50", walk.BlendedCents)
	}
}

func TestWalkLadderExhausted(t *testing.T) {
	t.Parallel()

	ladder := types.Ladder{{PriceCents: 30, Size: 2}}
	if _, ok := walkLadder(ladder, 2, 1.00); ok {
		t.Fatal("walk should fail when the ladder cannot reach the minimum spend")
	}
}

func TestWalkLadderEmpty(t *testing.T) {
	t.Parallel()

	if _, ok := walkLadder(nil, 5, 1.00); ok {
		t.Fatal("empty ladder should fail")
	}
}
