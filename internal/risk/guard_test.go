package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	cfg := config.ExecConfig{
		CooldownCycles:    5,
		NoFillCooldown:    3,
		MaxUnitsPerMarket: 100,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGuard(cfg, 2*time.Second, logger)
}

func advance(g *Guard, n int) {
	for i := 0; i < n; i++ {
		g.BeginCycle()
	}
}

func TestCooldownExpiresAfterBaseCycles(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	g.BeginCycle()
	g.RecordOutcome("pair-1", types.ExecutionResult{Status: types.ExecFilled}, false)

	if !g.OnCooldown("pair-1") {
		t.Fatal("pair should be cooling immediately after a fill")
	}
	advance(g, 4)
	if !g.OnCooldown("pair-1") {
		t.Fatal("pair released one cycle early")
	}
	advance(g, 1)
	if g.OnCooldown("pair-1") {
		t.Fatal("pair still cooling after the base span")
	}
}

func TestCooldownDoublesAfterUnwind(t *testing.T) {
	t.Parallel()

	for _, status := range []types.ExecStatus{types.ExecUnwound, types.ExecPartialStuck} {
		g := newTestGuard(t)
		g.BeginCycle()
		g.RecordOutcome("pair-1", types.ExecutionResult{Status: status}, false)

		advance(g, 9)
		if !g.OnCooldown("pair-1") {
			t.Fatalf("%s: released before the doubled span", status)
		}
		advance(g, 1)
		if g.OnCooldown("pair-1") {
			t.Fatalf("%s: still cooling after the doubled span", status)
		}
	}
}

func TestConflictExtendsCooldownSixfold(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	g.BeginCycle()
	g.RecordOutcome("pair-1", types.ExecutionResult{Status: types.ExecSkipped}, true)

	advance(g, 29)
	if !g.OnCooldown("pair-1") {
		t.Fatal("released before the conflict span")
	}
	advance(g, 1)
	if g.OnCooldown("pair-1") {
		t.Fatal("still cooling after the conflict span")
	}
}

func TestNoFillUsesOwnSpan(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	g.BeginCycle()
	g.RecordOutcome("pair-1", types.ExecutionResult{
		Status: types.ExecSkipped,
		Reason: types.ReasonNoFill,
	}, false)

	advance(g, 2)
	if !g.OnCooldown("pair-1") {
		t.Fatal("released before the no-fill span")
	}
	advance(g, 1)
	if g.OnCooldown("pair-1") {
		t.Fatal("still cooling after the no-fill span")
	}
}

func TestCooldownIsPerPair(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	g.BeginCycle()
	g.RecordOutcome("pair-1", types.ExecutionResult{Status: types.ExecFilled}, false)

	if g.OnCooldown("pair-2") {
		t.Fatal("unrelated pair is cooling")
	}
}

func TestSessionUnitCap(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	if got := g.RemainingUnits("MKT-1"); got != 100 {
		t.Fatalf("remaining = %d, want 100", got)
	}

	g.RecordUnits("MKT-1", 60)
	if got := g.RemainingUnits("MKT-1"); got != 40 {
		t.Fatalf("remaining = %d, want 40", got)
	}

	// The cap never resets during the session.
	g.RecordUnits("MKT-1", 60)
	if got := g.RemainingUnits("MKT-1"); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
	if got := g.RemainingUnits("MKT-2"); got != 100 {
		t.Fatalf("untouched market remaining = %d, want 100", got)
	}
}

func TestVenueHalt(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	if g.Halted(types.VenueA) {
		t.Fatal("venue halted before any failure")
	}

	g.HaltVenue(types.VenueA, "credentials rejected")
	if !g.Halted(types.VenueA) {
		t.Fatal("venue not halted")
	}
	if g.Halted(types.VenueB) {
		t.Fatal("unrelated venue halted")
	}
}

func TestSnapshotReportsRemainingCycles(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t)
	g.BeginCycle()
	g.RecordOutcome("pair-1", types.ExecutionResult{Status: types.ExecFilled}, false)
	g.RecordUnits("MKT-1", 25)
	g.HaltVenue(types.VenueB, "bad key")
	advance(g, 2)

	snap := g.Snapshot()
	if snap.Cooldowns["pair-1"] != 3 {
		t.Fatalf("remaining cycles = %d, want 3", snap.Cooldowns["pair-1"])
	}
	if snap.UnitsTraded["MKT-1"] != 25 {
		t.Fatalf("units traded = %d, want 25", snap.UnitsTraded["MKT-1"])
	}
	if snap.HaltedVenues["B"] != "bad key" {
		t.Fatalf("halted venues = %v", snap.HaltedVenues)
	}
}
