package exec

import (
	"context"
	"log/slog"
	"math"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/risk"
	"crossarb/internal/venue"
	"crossarb/pkg/types"
)

const (
	unwindAttempts = 3
	unwindRetryGap = 3 * time.Second
	reconcileSlack = 0.50 // USD gap before a balance reconciliation warning
	orderTimeout   = 10 * time.Second
	balanceTimeout = 5 * time.Second
)

// Gate optionally vets an opportunity before any order is placed. A gate
// that cannot reach a verdict should allow and let the caller log it.
type Gate interface {
	Allow(ctx context.Context, o types.Opportunity) (bool, string)
}

// spreadEpsilon absorbs float noise in the blended re-check so a spread
// exactly at the minimum still passes.
const spreadEpsilon = 1e-9

// Executor runs the two-leg state machine. One executor serves all pairs;
// the engine serializes executions through it.
type Executor struct {
	a, b   venue.Adapter
	guard  *risk.Guard
	gate   Gate // nil when the schedule verifier is disabled
	cfg    config.ExecConfig
	logger *slog.Logger

	minSpreadCents float64

	// test seams for the fixed delays
	settleDelay time.Duration
	unwindDelay time.Duration
	retryGap    time.Duration
}

// New builds an executor over the two venue adapters. In paper mode the
// adapters are the paper simulators; the state machine is identical.
func New(a, b venue.Adapter, guard *risk.Guard, gate Gate, cfg config.ExecConfig, minSpreadCents float64, logger *slog.Logger) *Executor {
	return &Executor{
		a:              a,
		b:              b,
		guard:          guard,
		gate:           gate,
		cfg:            cfg,
		logger:         logger.With("component", "executor"),
		minSpreadCents: minSpreadCents,
		settleDelay:    cfg.Leg1SettleDelay,
		unwindDelay:    cfg.UnwindDelay,
		retryGap:       unwindRetryGap,
	}
}

// Execute runs one opportunity to a terminal state, records the outcome with
// the risk guard, and returns the result. It never leaves a filled venue-A
// leg without either a hedge or a completed unwind sequence.
func (e *Executor) Execute(ctx context.Context, o types.Opportunity) types.ExecutionResult {
	result, conflict := e.execute(ctx, o)

	e.guard.RecordOutcome(o.Pair.Key(), result, conflict)
	if result.KFilled > 0 {
		e.guard.RecordUnits(o.Pair.A.PlatformID, result.KFilled)
	}

	e.logger.Info("execution finished",
		"pair", o.Pair.Key(), "strategy", string(o.Strategy),
		"status", string(result.Status), "reason", result.Reason,
		"requested", result.RequestedUnits, "k_filled", result.KFilled,
		"p_filled", result.PFilled, "locked_usd", result.LockedProfitUSD)
	return result
}

func (e *Executor) execute(ctx context.Context, o types.Opportunity) (types.ExecutionResult, bool) {
	units := baseUnits(e.cfg, o)
	if units < 1 {
		return skipped(types.ReasonInsufficientUnits, 0), false
	}

	// Session cap per venue-A market.
	if remaining := e.guard.RemainingUnits(o.Pair.A.PlatformID); remaining < 1 {
		return skipped(types.ReasonMarketCap, units), false
	} else if remaining < units {
		units = remaining
	}

	if e.gate != nil {
		if ok, reason := e.gate.Allow(ctx, o); !ok {
			e.logger.Info("schedule gate refused pair", "pair", o.Pair.Key(), "reason", reason)
			return skipped(types.ReasonScheduleMismatch, units), false
		}
	}

	kPrice := o.KCostCents
	pPrice := o.PCostCents

	// Venue-B per-order minimum: walk the ladder to a blended price when
	// the planned leg-2 spend is too small.
	if float64(units)*pPrice < e.cfg.PolyMinOrderUSD*100 {
		walk, ok := walkLadder(o.PLadder, units, e.cfg.PolyMinOrderUSD)
		if !ok {
			return skipped(types.ReasonInsufficientUnits, units), false
		}
		spread := 100 - (kPrice + walk.BlendedCents)
		if spread < e.minSpreadCents-spreadEpsilon {
			return skipped(types.ReasonSpreadTooTight, units), false
		}
		pPrice = walk.BlendedCents
		units = walk.Units
		if d := int(o.KDepth); d < units {
			units = d
		}
		if capUnits := int(math.Floor(e.cfg.MaxTradeUSD * 100 / (kPrice + pPrice))); capUnits < units {
			units = capUnits
		}
		if units < 1 {
			return skipped(types.ReasonInsufficientUnits, units), false
		}
	}

	result := types.ExecutionResult{
		RequestedUnits: units,
		KPriceCents:    kPrice,
		PPriceCents:    pPrice,
	}

	// Step 1: venue-B balance gate, before any exposure.
	bBalance, err := e.balance(ctx, e.b)
	if err != nil {
		e.haltOnAuth(types.VenueB, err)
		result.Status = types.ExecError
		result.Reason = errReason(err)
		return result, false
	}
	result.PBalanceBefore = bBalance
	if bBalance < e.cfg.PolyMinOrderUSD {
		result.Status = types.ExecSkipped
		result.Reason = types.ReasonLowBalance
		return result, false
	}
	if aBalance, err := e.balance(ctx, e.a); err == nil {
		result.KBalanceBefore = aBalance
	}

	// Step 2: leg 1 on venue A.
	kOrderID, err := e.placeTaker(ctx, e.a, o.Pair.A, o.Strategy.VenueASide(), units, kPrice)
	if err != nil {
		e.haltOnAuth(types.VenueA, err)
		result.Status = types.ExecError
		result.Reason = errReason(err)
		return result, venue.IsConflict(err)
	}
	result.KOrderID = kOrderID

	// Step 3: settle, then read the authoritative fill count. Shutdown
	// mid-trade still resolves the leg before returning.
	e.sleep(ctx, e.settleDelay)
	filled, err := e.fill(ctx, e.a, kOrderID)
	if err != nil {
		// The IOC may have filled even though the query failed. Assume
		// the full request and hedge it; cancelling here could leave the
		// filled contracts naked. Reconciliation flags any gap.
		e.logger.Warn("leg-1 fill check failed, assuming full fill",
			"order", kOrderID, "units", units, "error", err)
		filled = units
	}

	// Step 4: nothing filled, nothing at risk.
	if filled == 0 {
		e.cancel(ctx, e.a, kOrderID)
		result.Status = types.ExecSkipped
		result.Reason = types.ReasonNoFill
		return result, false
	}

	// Step 5: partial fill, cancel the resting remainder and hedge what we
	// actually hold.
	if filled < units {
		e.cancel(ctx, e.a, kOrderID)
		units = filled
	}
	result.KFilled = filled
	result.KCostUSD = float64(filled) * kPrice / 100

	// Step 6: leg 2 on venue B, fill-or-kill.
	pOrderID, err := e.placeTaker(ctx, e.b, o.Pair.B, o.Strategy.VenueBSide(), units, pPrice)
	if err != nil {
		e.haltOnAuth(types.VenueB, err)
		e.logger.Warn("leg-2 failed, unwinding leg 1",
			"pair", o.Pair.Key(), "units", units, "error", err)
		return e.unwind(ctx, o, units, result), venue.IsConflict(err)
	}
	result.POrderID = pOrderID

	// FOK success implies the full size; the read-back confirms it with
	// the venue's matched count.
	pFilled, err := e.fill(ctx, e.b, pOrderID)
	if err != nil || pFilled <= 0 {
		pFilled = units
	}
	result.PFilled = pFilled
	result.PCostUSD = float64(pFilled) * pPrice / 100

	spread := 100 - (kPrice + pPrice)
	result.LockedProfitUSD = float64(units) * spread / 100
	result.Status = types.ExecFilled

	e.reconcile(ctx, &result)
	return result, false
}

// unwind sells the venue-A leg back at the bid, up to three attempts. The
// pair's cooldown doubles afterwards regardless of whether the sell landed.
func (e *Executor) unwind(ctx context.Context, o types.Opportunity, units int, result types.ExecutionResult) types.ExecutionResult {
	e.sleep(ctx, e.unwindDelay)
	for attempt := 1; attempt <= unwindAttempts; attempt++ {
		sell, err := e.a.SellAtBid(ctx, o.Pair.A, o.Strategy.VenueASide(), units)
		if err == nil {
			result.Status = types.ExecUnwound
			result.UnwindRecoveredUSD = sell.ProceedsUSD()
			e.logger.Info("leg 1 unwound",
				"pair", o.Pair.Key(), "units", sell.UnitsSold, "recovered_usd", result.UnwindRecoveredUSD)
			return result
		}
		e.logger.Warn("unwind attempt failed",
			"pair", o.Pair.Key(), "attempt", attempt, "error", err)
		if attempt < unwindAttempts {
			e.sleep(ctx, e.retryGap)
		}
	}

	result.Status = types.ExecPartialStuck
	e.logger.Error("unwind exhausted, position stuck",
		"pair", o.Pair.Key(), "units", units, "market", o.Pair.A.PlatformID)
	return result
}

// reconcile compares post-trade balances against the expected deltas.
// Best-effort: read failures are logged at debug and skipped.
func (e *Executor) reconcile(ctx context.Context, result *types.ExecutionResult) {
	feeUSD := float64(result.KFilled) * e.cfg.TakerFeeRate

	if after, err := e.balance(ctx, e.a); err == nil {
		result.KBalanceAfter = after
		if result.KBalanceBefore > 0 {
			gap := math.Abs((result.KBalanceBefore - after) - (result.KCostUSD + feeUSD))
			if gap > reconcileSlack {
				e.logger.Warn("venue-A balance off after trade",
					"expected_delta", result.KCostUSD+feeUSD,
					"actual_delta", result.KBalanceBefore-after, "gap_usd", gap)
			}
		}
	} else {
		e.logger.Debug("venue-A reconcile read failed", "error", err)
	}

	if after, err := e.balance(ctx, e.b); err == nil {
		result.PBalanceAfter = after
		gap := math.Abs((result.PBalanceBefore - after) - result.PCostUSD)
		if gap > reconcileSlack {
			e.logger.Warn("venue-B balance off after trade",
				"expected_delta", result.PCostUSD,
				"actual_delta", result.PBalanceBefore-after, "gap_usd", gap)
		}
	} else {
		e.logger.Debug("venue-B reconcile read failed", "error", err)
	}
}

func (e *Executor) placeTaker(ctx context.Context, v venue.Adapter, m types.NormalizedMarket, side types.Side, units int, limitCents float64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()
	return v.PlaceTaker(callCtx, m, side, units, limitCents)
}

func (e *Executor) fill(ctx context.Context, v venue.Adapter, orderID string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()
	return v.GetFill(callCtx, orderID)
}

func (e *Executor) cancel(ctx context.Context, v venue.Adapter, orderID string) {
	callCtx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()
	if err := v.Cancel(callCtx, orderID); err != nil {
		e.logger.Warn("cancel failed", "order", orderID, "error", err)
	}
}

func (e *Executor) balance(ctx context.Context, v venue.Adapter) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, balanceTimeout)
	defer cancel()
	return v.GetBalance(callCtx)
}

func (e *Executor) haltOnAuth(v types.Venue, err error) {
	if venue.IsAuth(err) {
		e.guard.HaltVenue(v, err.Error())
	}
}

// sleep waits for d or until ctx is done; reports whether the full wait
// elapsed. In-flight trades keep resolving after cancellation, so callers
// mostly ignore the return.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func skipped(reason string, units int) types.ExecutionResult {
	return types.ExecutionResult{
		Status:         types.ExecSkipped,
		Reason:         reason,
		RequestedUnits: units,
	}
}

func errReason(err error) string {
	if venue.IsConflict(err) {
		return "conflict"
	}
	return venue.KindOf(err).String()
}
