package venue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crossarb/pkg/types"
)

// WalletSnapshot is a copy of a paper wallet's state for reporting.
type WalletSnapshot struct {
	Venue        types.Venue
	StartingCash float64
	Cash         float64
	DeployedUSD  float64 // cost basis of open positions
	FeesUSD      float64
	Fills        int
}

// NetChangeUSD is cash plus deployed capital relative to the starting pot.
// Deployed positions are carried at cost, so this understates locked profit.
func (w WalletSnapshot) NetChangeUSD() float64 {
	return w.Cash + w.DeployedUSD - w.StartingCash
}

// Wallet is the virtual cash account behind one paper adapter.
type Wallet struct {
	mu           sync.Mutex
	venue        types.Venue
	startingCash float64
	cash         float64
	deployed     float64
	fees         float64
	fills        int
}

// NewWallet creates a paper wallet with the given starting cash.
func NewWallet(v types.Venue, startingCash float64) *Wallet {
	return &Wallet{venue: v, startingCash: startingCash, cash: startingCash}
}

// buy debits costUSD plus feeUSD and moves the cost into deployed basis.
// Returns false when cash cannot cover it.
func (w *Wallet) buy(costUSD, feeUSD float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := costUSD + feeUSD
	if total > w.cash {
		return false
	}
	w.cash -= total
	w.deployed += costUSD
	w.fees += feeUSD
	w.fills++
	return true
}

// sell credits proceeds and releases cost basis.
func (w *Wallet) sell(proceedsUSD, basisUSD float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cash += proceedsUSD
	w.deployed -= basisUSD
	if w.deployed < 0 {
		w.deployed = 0
	}
	w.fills++
}

// maxAffordableUnits returns how many units of price limitCents fit in cash,
// fee included.
func (w *Wallet) maxAffordableUnits(limitCents, feeRate float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	perUnit := limitCents/100 + feeRate
	if perUnit <= 0 {
		return 0
	}
	return int(math.Floor(w.cash / perUnit))
}

// Balance returns available cash in USD.
func (w *Wallet) Balance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cash
}

// Snapshot copies the wallet state.
func (w *Wallet) Snapshot() WalletSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WalletSnapshot{
		Venue:        w.venue,
		StartingCash: w.startingCash,
		Cash:         w.cash,
		DeployedUSD:  w.deployed,
		FeesUSD:      w.fees,
		Fills:        w.fills,
	}
}

// paperOrder is one simulated order, kept so GetFill answers like a venue.
type paperOrder struct {
	market     types.NormalizedMarket
	side       types.Side
	sell       bool
	units      int
	filled     int
	limitCents float64
	placedAt   time.Time
}

// Paper wraps a real adapter and simulates its trading surface. Reads
// (ListMarkets, GetQuote) pass through to the underlying venue so paper runs
// see real books; order placement, fills, cancels and balances run against a
// virtual wallet instead.
//
// Fill model: buys fill immediately and completely at the limit price
// (the executor always submits at the observed best ask). Venue-A orders are
// IOC and partial-fill down to whatever cash allows; venue-B orders are FOK
// and reject outright when cash cannot cover the full size. The venue-A
// taker fee is charged on buys.
type Paper struct {
	real    Adapter
	wallet  *Wallet
	feeRate float64 // venue-A taker fee, fraction of face value per unit

	mu     sync.Mutex
	orders map[string]*paperOrder
}

// NewPaper creates a paper adapter over the given real adapter. feeRate is
// only applied on venue-A buys; pass 0 for venue B.
func NewPaper(real Adapter, startingCash, feeRate float64) *Paper {
	return &Paper{
		real:    real,
		wallet:  NewWallet(real.Venue(), startingCash),
		feeRate: feeRate,
		orders:  make(map[string]*paperOrder),
	}
}

// Wallet exposes the virtual wallet for reporting.
func (p *Paper) Wallet() *Wallet { return p.wallet }

func (p *Paper) Venue() types.Venue { return p.real.Venue() }

func (p *Paper) ListMarkets(ctx context.Context) ([]types.NormalizedMarket, error) {
	return p.real.ListMarkets(ctx)
}

func (p *Paper) GetQuote(ctx context.Context, m types.NormalizedMarket) (types.Quote, error) {
	return p.real.GetQuote(ctx, m)
}

func (p *Paper) PlaceTaker(ctx context.Context, m types.NormalizedMarket, side types.Side, units int, limitCents float64) (string, error) {
	if units < 1 {
		return "", Errf(p.Venue(), "place_taker", KindValidation, "units must be >= 1, got %d", units)
	}
	if limitCents < 1 || limitCents > 99 {
		return "", Errf(p.Venue(), "place_taker", KindValidation, "limit %.2fc outside [1,99]", limitCents)
	}

	fill := units
	if p.Venue() == types.VenueA {
		// IOC: fill what cash allows, leave the rest unfilled.
		if afford := p.wallet.maxAffordableUnits(limitCents, p.feeRate); afford < fill {
			fill = afford
		}
	} else if p.wallet.maxAffordableUnits(limitCents, 0) < units {
		return "", Errf(p.Venue(), "place_taker", KindOrderRejected, "FOK size %d exceeds paper balance", units)
	}

	if fill > 0 {
		cost := float64(fill) * limitCents / 100
		fee := 0.0
		if p.Venue() == types.VenueA {
			fee = float64(fill) * p.feeRate
		}
		if !p.wallet.buy(cost, fee) {
			fill = 0
		}
	}

	id := paperOrderID(p.Venue())
	p.mu.Lock()
	p.orders[id] = &paperOrder{market: m, side: side, units: units, filled: fill, limitCents: limitCents, placedAt: time.Now()}
	p.mu.Unlock()
	return id, nil
}

func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return Errf(p.Venue(), "cancel", KindProtocol, "unknown paper order %s", orderID)
	}
	return nil
}

func (p *Paper) GetFill(ctx context.Context, orderID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return 0, Errf(p.Venue(), "get_fill", KindProtocol, "unknown paper order %s", orderID)
	}
	return o.filled, nil
}

func (p *Paper) GetBalance(ctx context.Context) (float64, error) {
	return p.wallet.Balance(), nil
}

// SellAtBid reads the real book for the current bid, then simulates a full
// sell at that price. With no bid visible the sell is rejected, mirroring an
// empty live book.
func (p *Paper) SellAtBid(ctx context.Context, m types.NormalizedMarket, side types.Side, units int) (SellResult, error) {
	q, err := p.real.GetQuote(ctx, m)
	if err != nil {
		return SellResult{}, err
	}
	bid, ok := impliedBid(q, side)
	if !ok {
		return SellResult{}, Errf(p.Venue(), "sell_at_bid", KindInsufficientLiquidity, "no bid for %s %s", m.PlatformID, side)
	}
	price := math.Max(1, math.Floor(bid))
	proceeds := float64(units) * price / 100
	p.wallet.sell(proceeds, p.buyBasisUSD(m, side, units, price))

	id := paperOrderID(p.Venue())
	p.mu.Lock()
	p.orders[id] = &paperOrder{market: m, side: side, sell: true, units: units, filled: units, limitCents: price, placedAt: time.Now()}
	p.mu.Unlock()
	return SellResult{OrderID: id, UnitsSold: units, PriceCents: price}, nil
}

// buyBasisUSD finds the most recent buy of the same contract side and prices
// the sold units at its limit, so the wallet releases what was deployed. With
// no matching buy on record it falls back to the sale value.
func (p *Paper) buyBasisUSD(m types.NormalizedMarket, side types.Side, units int, sellCents float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var latest *paperOrder
	for _, o := range p.orders {
		if o.sell || o.market.PlatformID != m.PlatformID || o.side != side {
			continue
		}
		if latest == nil || o.placedAt.After(latest.placedAt) {
			latest = o
		}
	}
	if latest == nil {
		return float64(units) * sellCents / 100
	}
	return float64(units) * latest.limitCents / 100
}

// impliedBid derives a bid for side from the opposite side's ask: in a
// binary book, bid(YES) = 100 - ask(NO). Quotes only carry ask data, so this
// is the best available estimate for the simulator.
func impliedBid(q types.Quote, side types.Side) (float64, bool) {
	opp, ok := q.Ask(side.Opposite())
	if !ok {
		return 0, false
	}
	bid := 100 - opp
	if bid < 1 {
		return 0, false
	}
	return bid, true
}

func paperOrderID(v types.Venue) string {
	return fmt.Sprintf("PAPER-%s-%s", v, strings.Split(uuid.NewString(), "-")[0])
}

var _ Adapter = (*Paper)(nil)

// ReportEvery is how many ticks pass between paper wallet reports.
const ReportEvery = 100

// FormatReport renders the periodic paper-trading summary for both wallets.
func FormatReport(a, b WalletSnapshot, trades int, lockedUSD, bestUSD, worstUSD float64, since time.Time) string {
	totalStart := a.StartingCash + b.StartingCash
	totalNow := a.Cash + a.DeployedUSD + b.Cash + b.DeployedUSD
	deployed := a.DeployedUSD + b.DeployedUSD
	roi := 0.0
	if deployed > 0 {
		roi = lockedUSD / deployed * 100
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "paper wallet report (running %s)\n", time.Since(since).Round(time.Second))
	fmt.Fprintf(&sb, "  venue A: cash=$%.2f deployed=$%.2f fees=$%.2f\n", a.Cash, a.DeployedUSD, a.FeesUSD)
	fmt.Fprintf(&sb, "  venue B: cash=$%.2f deployed=$%.2f\n", b.Cash, b.DeployedUSD)
	fmt.Fprintf(&sb, "  trades=%d locked_profit=$%.2f net=$%.2f deployed_roi=%.2f%%\n",
		trades, lockedUSD, totalNow-totalStart+lockedUSD, roi)
	if trades > 0 {
		fmt.Fprintf(&sb, "  best_trade=$%.2f worst_trade=$%.2f", bestUSD, worstUSD)
	}
	return sb.String()
}
