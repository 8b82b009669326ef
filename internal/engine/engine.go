// Package engine orchestrates the scanner's two-speed loop.
//
// A slow loop refreshes the tradeable universe: it lists open markets on both
// venues, pairs them with the matcher, and swaps the active pair set. A fast
// loop polls top-of-book for every active pair, prices both strategies, and
// hands any opportunity above the spread floor to the executor. Executions run
// synchronously inside the tick so shutdown never abandons an open leg.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"crossarb/internal/api"
	"crossarb/internal/config"
	"crossarb/internal/exec"
	"crossarb/internal/match"
	"crossarb/internal/risk"
	"crossarb/internal/scan"
	"crossarb/internal/store"
	"crossarb/internal/venue"
	"crossarb/internal/venuea"
	"crossarb/internal/venueb"
	"crossarb/internal/verify"
	"crossarb/pkg/types"
)

const (
	refreshTimeout    = 2 * time.Minute
	refreshRetryDelay = 30 * time.Second
	listAttempts      = 3
	lastOppsKept      = 25
)

// pairSet is the immutable product of one refresh. The tick loop reads it
// through an atomic pointer so a refresh never blocks a scan.
type pairSet struct {
	pairs []types.MatchedPair
	at    time.Time
}

// Engine wires the venue adapters, matcher, scanner, executor and store, and
// owns every goroutine between Start and Stop.
type Engine struct {
	cfg    config.Config
	a, b   venue.Adapter
	bRaw   *venueb.Client
	paperA *venue.Paper // nil outside paper mode
	paperB *venue.Paper

	matcher  *match.Matcher
	fanout   *scan.Fanout
	finder   *scan.Finder
	guard    *risk.Guard
	executor *exec.Executor // nil in scan mode
	store    *store.Store
	dash     *api.Server // nil when the dashboard is disabled
	logger   *slog.Logger

	pairs atomic.Pointer[pairSet]

	mu        sync.Mutex
	oppsSeen  int64
	trades    int
	lockedUSD float64
	bestUSD   float64
	worstUSD  float64
	lastOpps  []api.OpportunityEvent
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components. In paper mode both adapters
// are wrapped in simulators that fill against live quotes.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	aClient, err := venuea.NewClient(cfg.VenueA, cfg.Scanner.ScanWindow, logger)
	if err != nil {
		return nil, fmt.Errorf("venue A client: %w", err)
	}
	bClient, err := venueb.NewClient(cfg.VenueB, cfg.Scanner.ScanWindow, logger)
	if err != nil {
		return nil, fmt.Errorf("venue B client: %w", err)
	}

	var (
		a, b           venue.Adapter = aClient, bClient
		paperA, paperB *venue.Paper
	)
	if cfg.Mode == config.ModePaper {
		paperA = venue.NewPaper(aClient, cfg.Paper.StartingCashUSD, cfg.Exec.TakerFeeRate)
		paperB = venue.NewPaper(bClient, cfg.Paper.StartingCashUSD, 0)
		a, b = paperA, paperB
	}

	st, err := store.Open(cfg.Store, cfg.Exec.TakerFeeRate, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	guard := risk.NewGuard(cfg.Exec, cfg.Scanner.PricePoll, logger)

	var executor *exec.Executor
	if cfg.Mode != config.ModeScan {
		var gate exec.Gate
		if cfg.Verify.Enabled {
			gate = verify.New(cfg.Verify, logger)
		}
		executor = exec.New(a, b, guard, gate, cfg.Exec, cfg.Scanner.MinSpreadCents, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:    cfg,
		a:      a,
		b:      b,
		bRaw:   bClient,
		paperA: paperA,
		paperB: paperB,
		matcher: match.NewMatcher(match.Config{
			SportsTolerance: cfg.Matcher.SportsTolerance,
			CryptoTolerance: cfg.Matcher.CryptoTolerance,
			CryptoEnabled:   cfg.Matcher.CryptoEnabled,
		}, logger),
		fanout:   scan.NewFanout(a, b, cfg.Scanner, logger),
		finder:   scan.NewFinder(cfg.Scanner.MinSpreadCents),
		guard:    guard,
		executor: executor,
		store:    st,
		logger:   logger.With("component", "engine"),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.pairs.Store(&pairSet{})

	if cfg.Dashboard.Enabled {
		e.dash = api.NewServer(cfg.Dashboard, e, logger)
	}

	return e, nil
}

// Start launches the refresh and tick loops and, when enabled, the dashboard.
// In live mode it first derives the venue-B API credentials.
func (e *Engine) Start() error {
	e.startedAt = time.Now()

	if e.cfg.Mode == config.ModeLive {
		ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
		err := e.bRaw.EnsureCredentials(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("venue B credentials: %w", err)
		}
	}

	e.logger.Info("engine starting",
		"mode", e.cfg.Mode,
		"market_refresh", e.cfg.Scanner.MarketRefresh,
		"price_poll", e.cfg.Scanner.PricePoll)

	e.wg.Add(1)
	go e.refreshLoop()

	e.wg.Add(1)
	go e.tickLoop()

	if e.dash != nil {
		go func() {
			if err := e.dash.Start(); err != nil {
				e.logger.Error("dashboard server failed", "error", err)
			}
		}()
	}

	return nil
}

// Stop cancels the loops, waits for any in-flight tick to finish, prints the
// final paper report, and closes the store.
func (e *Engine) Stop() {
	e.logger.Info("engine stopping")
	e.cancel()
	e.wg.Wait()

	if e.dash != nil {
		if err := e.dash.Stop(); err != nil {
			e.logger.Error("dashboard shutdown failed", "error", err)
		}
	}

	if e.paperA != nil {
		e.printPaperReport()
	}

	if err := e.store.Close(); err != nil {
		e.logger.Error("store close failed", "error", err)
	}

	e.mu.Lock()
	opps, trades := e.oppsSeen, e.trades
	e.mu.Unlock()
	e.logger.Info("engine stopped",
		"uptime", time.Since(e.startedAt).Round(time.Second),
		"opportunities", opps,
		"trades", trades)
}

// refreshLoop rebuilds the pair set on the slow cadence. A failed refresh is
// retried after a short delay while the previous set keeps being scanned.
func (e *Engine) refreshLoop() {
	defer e.wg.Done()

	delay := time.Duration(0) // first refresh runs immediately
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}

		if e.refresh() {
			delay = e.cfg.Scanner.MarketRefresh
		} else {
			delay = refreshRetryDelay
		}
	}
}

func (e *Engine) refresh() bool {
	ctx, cancel := context.WithTimeout(e.ctx, refreshTimeout)
	defer cancel()

	aMarkets, err := e.listMarkets(ctx, e.a)
	if err != nil {
		e.logger.Warn("venue A market listing failed", "error", err)
		return false
	}
	bMarkets, err := e.listMarkets(ctx, e.b)
	if err != nil {
		e.logger.Warn("venue B market listing failed", "error", err)
		return false
	}

	pairs, stats := e.matcher.Match(aMarkets, bMarkets)
	e.pairs.Store(&pairSet{pairs: pairs, at: time.Now()})

	e.logger.Info("market refresh",
		"venue_a_markets", len(aMarkets),
		"venue_b_markets", len(bMarkets),
		"sports_pairs", stats.SportsPairs,
		"crypto_pairs", stats.CryptoPairs,
		"candidates_checked", stats.CandidateChecks)

	e.publish(api.NewEvent("refresh", api.RefreshEvent{
		VenueAMarkets: len(aMarkets),
		VenueBMarkets: len(bMarkets),
		MatchedPairs:  stats.Pairs(),
	}))
	return true
}

// listMarkets retries a rate-limited listing a few times before giving up on
// this refresh round.
func (e *Engine) listMarkets(ctx context.Context, adapter venue.Adapter) ([]types.NormalizedMarket, error) {
	var lastErr error
	for attempt := 1; attempt <= listAttempts; attempt++ {
		markets, err := adapter.ListMarkets(ctx)
		if err == nil {
			return markets, nil
		}
		lastErr = err
		if !venue.IsRateLimit(err) || attempt == listAttempts {
			break
		}
		e.logger.Warn("market listing rate limited, backing off",
			"venue", adapter.Venue(), "attempt", attempt, "delay", refreshRetryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(refreshRetryDelay):
		}
	}
	return nil, lastErr
}

// tickLoop runs the fast scan on the poll cadence. A tick that overruns the
// interval delays the next one; overlapping ticks are never started.
func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Scanner.PricePoll)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runTick()
		}
	}
}

func (e *Engine) runTick() {
	start := time.Now()
	cycle := e.guard.BeginCycle()

	ps := e.pairs.Load()
	if len(ps.pairs) == 0 {
		return
	}

	quoted := e.fanout.Collect(e.ctx, ps.pairs)
	opps := e.finder.FindAll(quoted, start)

	var bestSpread float64
	for _, o := range opps {
		if o.SpreadCents > bestSpread {
			bestSpread = o.SpreadCents
		}
		e.handleOpportunity(o)
	}

	e.store.QueueTick(start, opps)

	elapsed := time.Since(start)
	e.mu.Lock()
	e.oppsSeen += int64(len(opps))
	totalOpps, totalTrades := e.oppsSeen, e.trades
	e.mu.Unlock()

	e.logger.Info("scan cycle",
		"tick", cycle,
		"pairs", len(ps.pairs),
		"quoted", len(quoted),
		"opportunities", len(opps),
		"best_spread_cents", bestSpread,
		"elapsed_ms", elapsed.Milliseconds(),
		"lifetime_opportunities", totalOpps,
		"trades", totalTrades)

	e.publish(api.NewEvent("tick", api.TickEvent{
		Tick:          cycle,
		Pairs:         len(ps.pairs),
		Quoted:        len(quoted),
		Opportunities: len(opps),
		BestSpread:    bestSpread,
		ElapsedMS:     elapsed.Milliseconds(),
	}))

	if elapsed > e.cfg.Scanner.PricePoll {
		e.logger.Warn("tick overran poll interval",
			"elapsed", elapsed, "poll", e.cfg.Scanner.PricePoll)
	}

	if e.paperA != nil && cycle > 0 && cycle%venue.ReportEvery == 0 {
		e.printPaperReport()
	}
}

// handleOpportunity records the opportunity and, outside scan mode, tries to
// execute it. The execution context is detached from the engine context so a
// shutdown mid-trade still completes the hedge or unwind; the executor's own
// per-call timeouts bound how long that can take.
func (e *Engine) handleOpportunity(o types.Opportunity) {
	e.logger.Info("opportunity detected", "opportunity", o.String(), "tier", o.Tier)

	evt := api.NewOpportunityEvent(o)
	e.mu.Lock()
	e.lastOpps = append([]api.OpportunityEvent{evt}, e.lastOpps...)
	if len(e.lastOpps) > lastOppsKept {
		e.lastOpps = e.lastOpps[:lastOppsKept]
	}
	e.mu.Unlock()
	e.publish(api.NewEvent("opportunity", evt))

	ctx := context.WithoutCancel(e.ctx)

	oppID, err := e.store.InsertOpportunity(ctx, o, false)
	if err != nil {
		e.logger.Warn("opportunity insert failed", "error", err)
	}

	if e.executor == nil {
		return
	}
	if e.guard.OnCooldown(o.Pair.Key()) {
		e.logger.Debug("pair on cooldown", "pair", o.Pair.Key())
		return
	}
	if e.guard.Halted(types.VenueA) || e.guard.Halted(types.VenueB) {
		return
	}

	result := e.executor.Execute(ctx, o)

	if oppID > 0 {
		if result.Status == types.ExecFilled {
			if err := e.store.MarkExecuted(ctx, oppID); err != nil {
				e.logger.Warn("mark executed failed", "error", err)
			}
		}
		if _, err := e.store.InsertTrade(ctx, oppID, o, result); err != nil {
			e.logger.Warn("trade insert failed", "error", err)
		}
	}

	e.recordResult(result)
	e.publish(api.NewEvent("trade", api.NewTradeEvent(o, result)))
}

// recordResult folds one execution into the lifetime counters. Orders were
// only placed for terminal states that filled the first leg.
func (e *Engine) recordResult(result types.ExecutionResult) {
	if result.KFilled == 0 {
		return
	}

	pnl := result.LockedProfitUSD
	if result.Status == types.ExecUnwound || result.Status == types.ExecPartialStuck {
		pnl = result.UnwindRecoveredUSD - result.KCostUSD
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades++
	e.lockedUSD += pnl
	if e.trades == 1 || pnl > e.bestUSD {
		e.bestUSD = pnl
	}
	if e.trades == 1 || pnl < e.worstUSD {
		e.worstUSD = pnl
	}
}

// Snapshot implements api.SnapshotProvider.
func (e *Engine) Snapshot() api.Snapshot {
	ps := e.pairs.Load()
	infos := make([]api.PairInfo, 0, len(ps.pairs))
	for _, p := range ps.pairs {
		info := api.PairInfo{
			PairKey:      p.Key(),
			KTicker:      p.A.PlatformID,
			PConditionID: p.B.PlatformID,
			Sport:        p.A.Sport,
			Team:         p.A.Team,
			Opponent:     p.A.Opponent,
		}
		if !p.A.ResolutionDT.IsZero() {
			info.ClosesAt = p.A.ResolutionDT.UTC().Format(time.RFC3339)
		}
		infos = append(infos, info)
	}

	e.mu.Lock()
	last := make([]api.OpportunityEvent, len(e.lastOpps))
	copy(last, e.lastOpps)
	e.mu.Unlock()

	snap := api.Snapshot{
		Timestamp:         time.Now().UTC(),
		Mode:              string(e.cfg.Mode),
		Pairs:             infos,
		LastOpportunities: last,
		Risk:              e.guard.Snapshot(),
	}
	if e.paperA != nil {
		snap.Wallets = &api.Wallets{
			VenueA: e.paperA.Wallet().Snapshot(),
			VenueB: e.paperB.Wallet().Snapshot(),
		}
	}
	return snap
}

func (e *Engine) publish(evt api.Event) {
	if e.dash != nil {
		e.dash.Publish(evt)
	}
}

func (e *Engine) printPaperReport() {
	e.mu.Lock()
	trades, locked, best, worst := e.trades, e.lockedUSD, e.bestUSD, e.worstUSD
	e.mu.Unlock()

	fmt.Println(venue.FormatReport(
		e.paperA.Wallet().Snapshot(),
		e.paperB.Wallet().Snapshot(),
		trades, locked, best, worst, e.startedAt))
}
