package store

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.StoreConfig{
		DBPath:     filepath.Join(dir, "test.db"),
		NDJSONPath: filepath.Join(dir, "ticks.ndjson"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(cfg, 0.0175, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedOpportunity() types.Opportunity {
	return types.Opportunity{
		Pair: types.MatchedPair{
			A: types.NormalizedMarket{
				Venue:        types.VenueA,
				PlatformID:   "KXCS-M80VOCA",
				RawTitle:     "Will M80 win?",
				ResolutionDT: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
			},
			B: types.NormalizedMarket{
				Venue:      types.VenueB,
				PlatformID: "0xcond_m80",
				RawTitle:   "M80 vs. Voca",
				YesToken:   "111",
				NoToken:    "222",
			},
		},
		Strategy:           types.StrategyA,
		KCostCents:         48,
		PCostCents:         49,
		SpreadCents:        3,
		Tier:               types.TierLow,
		KDepth:             100,
		PDepth:             100,
		TradeableUnits:     100,
		MaxLockedProfitUSD: 3,
		HoursToClose:       24,
		DetectedAt:         time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC),
	}
}

func filledResult() types.ExecutionResult {
	return types.ExecutionResult{
		Status:          types.ExecFilled,
		RequestedUnits:  25,
		KFilled:         25,
		PFilled:         25,
		KPriceCents:     48,
		PPriceCents:     49,
		KCostUSD:        12,
		PCostUSD:        12.25,
		LockedProfitUSD: 0.75,
		KOrderID:        "k-1",
		POrderID:        "p-1",
		PBalanceBefore:  100,
	}
}

func TestInsertOpportunityAndMarkExecuted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertOpportunity(ctx, storedOpportunity(), false)
	if err != nil {
		t.Fatalf("InsertOpportunity: %v", err)
	}
	if id < 1 {
		t.Fatalf("row id = %d, want >= 1", id)
	}

	var executed int
	var pToken string
	err = s.db.QueryRow(`SELECT executed, p_token_id FROM opportunities WHERE id=?`, id).Scan(&executed, &pToken)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if executed != 0 {
		t.Fatal("freshly scanned opportunity must not be marked executed")
	}
	// Strategy A buys NO on venue B.
	if pToken != "222" {
		t.Fatalf("p_token_id = %q, want the NO token", pToken)
	}

	if err := s.MarkExecuted(ctx, id); err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	if err := s.db.QueryRow(`SELECT executed FROM opportunities WHERE id=?`, id).Scan(&executed); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if executed != 1 {
		t.Fatal("executed flag should be set")
	}
}

func TestInsertTradeDerivesFeeAndNet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oppID, err := s.InsertOpportunity(ctx, storedOpportunity(), true)
	if err != nil {
		t.Fatalf("InsertOpportunity: %v", err)
	}
	if _, err := s.InsertTrade(ctx, oppID, storedOpportunity(), filledResult()); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}

	var fee, net, total float64
	err = s.db.QueryRow(`SELECT k_fee_usd, net_profit_usd, total_cost_usd FROM trades WHERE opportunity_id=?`, oppID).
		Scan(&fee, &net, &total)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// 25 units at 1.75% of face value.
	if math.Abs(fee-0.4375) > 1e-9 {
		t.Fatalf("fee = %v, want 0.4375", fee)
	}
	if math.Abs(net-0.3125) > 1e-9 {
		t.Fatalf("net = %v, want 0.3125", net)
	}
	if math.Abs(total-24.25) > 1e-9 {
		t.Fatalf("total = %v, want 24.25", total)
	}
}

func TestInsertTradeSkippedHasNoFee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := types.ExecutionResult{
		Status:         types.ExecSkipped,
		Reason:         types.ReasonNoFill,
		RequestedUnits: 25,
	}
	if _, err := s.InsertTrade(ctx, 0, storedOpportunity(), res); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}

	var fee any
	var reason string
	if err := s.db.QueryRow(`SELECT k_fee_usd, reason FROM trades`).Scan(&fee, &reason); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if fee != nil {
		t.Fatalf("fee = %v, want NULL for a skipped trade", fee)
	}
	if reason != types.ReasonNoFill {
		t.Fatalf("reason = %q, want no_fill", reason)
	}
}

func TestReportQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := storedOpportunity()
	oppID, err := s.InsertOpportunity(ctx, opp, true)
	if err != nil {
		t.Fatalf("InsertOpportunity: %v", err)
	}
	if _, err := s.InsertTrade(ctx, oppID, opp, filledResult()); err != nil {
		t.Fatalf("InsertTrade filled: %v", err)
	}
	skippedRes := types.ExecutionResult{Status: types.ExecSkipped, Reason: types.ReasonLowBalance}
	if _, err := s.InsertTrade(ctx, 0, opp, skippedRes); err != nil {
		t.Fatalf("InsertTrade skipped: %v", err)
	}

	ov, err := s.ReadOverview(ctx)
	if err != nil {
		t.Fatalf("ReadOverview: %v", err)
	}
	if ov.TotalTrades != 2 || ov.Filled != 1 || ov.Skipped != 1 {
		t.Fatalf("overview = %+v, want 2 trades, 1 filled, 1 skipped", ov)
	}
	if math.Abs(ov.GrossProfitUSD-0.75) > 1e-9 {
		t.Fatalf("gross = %v, want 0.75", ov.GrossProfitUSD)
	}
	if math.Abs(ov.NetProfitUSD-0.3125) > 1e-9 {
		t.Fatalf("net = %v, want 0.3125", ov.NetProfitUSD)
	}

	tiers, err := s.ReadTierStats(ctx)
	if err != nil {
		t.Fatalf("ReadTierStats: %v", err)
	}
	if len(tiers) != 1 || tiers[0].Tier != string(types.TierLow) || tiers[0].Trades != 1 {
		t.Fatalf("tiers = %+v, want one Low row", tiers)
	}

	reasons, err := s.ReadSkipReasons(ctx)
	if err != nil {
		t.Fatalf("ReadSkipReasons: %v", err)
	}
	if len(reasons) != 1 || reasons[0].Reason != types.ReasonLowBalance {
		t.Fatalf("reasons = %+v, want one low_balance row", reasons)
	}

	top, err := s.ReadTopTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ReadTopTrades: %v", err)
	}
	if len(top) != 1 || top[0].KTicker != "KXCS-M80VOCA" || top[0].Units != 25 {
		t.Fatalf("top = %+v, want the filled trade", top)
	}

	counts, err := s.ReadOpportunityTiers(ctx)
	if err != nil {
		t.Fatalf("ReadOpportunityTiers: %v", err)
	}
	if len(counts) != 1 || counts[0].Count != 1 {
		t.Fatalf("counts = %+v, want one Low row", counts)
	}
}

func TestQueueTickWritesNDJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{
		DBPath:     filepath.Join(dir, "test.db"),
		NDJSONPath: filepath.Join(dir, "ticks.ndjson"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(cfg, 0.0175, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	at := time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC)
	s.QueueTick(at, []types.Opportunity{storedOpportunity()})
	s.QueueTick(at, nil) // empty ticks are not written

	// Close drains the queue.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(cfg.NDJSONPath)
	if err != nil {
		t.Fatalf("open ndjson: %v", err)
	}
	defer f.Close()

	var lines []tickRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec tickRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad ndjson line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Count != 1 || lines[0].TS != "2026-02-28T18:00:00Z" {
		t.Fatalf("line = %+v", lines[0])
	}
	if lines[0].Opportunities[0].KTicker != "KXCS-M80VOCA" {
		t.Fatalf("opportunity = %+v", lines[0].Opportunities[0])
	}
}
