package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Overview aggregates the trades table for the report command.
type Overview struct {
	TotalTrades     int
	Filled          int
	Skipped         int
	Unwound         int
	PartialStuck    int
	Errors          int
	GrossProfitUSD  float64
	NetProfitUSD    float64
	FeesUSD         float64
	CapitalDeployed float64
	FirstTrade      string
	LastTrade       string
}

// TierStat is one by-tier row, filled trades only.
type TierStat struct {
	Tier       string
	Trades     int
	AvgSpread  float64
	GrossUSD   float64
	NetUSD     float64
	CapitalUSD float64
}

// ReasonCount tallies skip reasons.
type ReasonCount struct {
	Reason string
	Count  int
}

// TopTrade is one row of the best-trades listing.
type TopTrade struct {
	KTicker  string
	KSide    string
	PSide    string
	Units    int
	GrossUSD float64
	NetUSD   float64
	TradedAt string
}

// TierCount tallies detected opportunities per tier.
type TierCount struct {
	Tier  string
	Count int
}

// ReadOverview computes the run totals.
func (s *Store) ReadOverview(ctx context.Context) (Overview, error) {
	var (
		ov            Overview
		first, last   sql.NullString
		gross, net    sql.NullFloat64
		fees, capital sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		SUM(CASE WHEN status='filled'        THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='skipped'       THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='unwound'       THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='partial_stuck' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='error'         THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='filled' THEN locked_profit_usd ELSE 0 END),
		SUM(CASE WHEN status='filled' THEN net_profit_usd    ELSE 0 END),
		SUM(CASE WHEN status='filled' THEN k_fee_usd         ELSE 0 END),
		SUM(CASE WHEN status='filled' THEN total_cost_usd    ELSE 0 END),
		MIN(traded_at), MAX(traded_at)
	FROM trades`).Scan(
		&ov.TotalTrades, &ov.Filled, &ov.Skipped, &ov.Unwound,
		&ov.PartialStuck, &ov.Errors, &gross, &net, &fees, &capital,
		&first, &last,
	)
	if err != nil {
		return Overview{}, fmt.Errorf("overview query: %w", err)
	}
	ov.GrossProfitUSD = gross.Float64
	ov.NetProfitUSD = net.Float64
	ov.FeesUSD = fees.Float64
	ov.CapitalDeployed = capital.Float64
	ov.FirstTrade = first.String
	ov.LastTrade = last.String
	return ov, nil
}

// ReadTierStats breaks filled trades down by the detected tier.
func (s *Store) ReadTierStats(ctx context.Context) ([]TierStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		COALESCE(o.tier, '?'),
		COUNT(*),
		AVG(o.spread_cents),
		SUM(t.locked_profit_usd),
		SUM(t.net_profit_usd),
		SUM(t.total_cost_usd)
	FROM trades t
	JOIN opportunities o ON t.opportunity_id = o.id
	WHERE t.status = 'filled'
	GROUP BY o.tier
	ORDER BY SUM(t.net_profit_usd) DESC`)
	if err != nil {
		return nil, fmt.Errorf("tier query: %w", err)
	}
	defer rows.Close()

	var stats []TierStat
	for rows.Next() {
		var st TierStat
		if err := rows.Scan(&st.Tier, &st.Trades, &st.AvgSpread, &st.GrossUSD, &st.NetUSD, &st.CapitalUSD); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ReadSkipReasons tallies why trades were skipped, most common first.
func (s *Store) ReadSkipReasons(ctx context.Context) ([]ReasonCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(reason, ''), COUNT(*)
	FROM trades WHERE status = 'skipped'
	GROUP BY reason ORDER BY COUNT(*) DESC LIMIT 20`)
	if err != nil {
		return nil, fmt.Errorf("skip reasons query: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ReadTopTrades lists filled trades by locked profit, best first.
func (s *Store) ReadTopTrades(ctx context.Context, limit int) ([]TopTrade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		k_ticker, k_side, p_side, requested_units,
		locked_profit_usd, net_profit_usd, traded_at
	FROM trades WHERE status = 'filled'
	ORDER BY locked_profit_usd DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top trades query: %w", err)
	}
	defer rows.Close()

	var out []TopTrade
	for rows.Next() {
		var t TopTrade
		if err := rows.Scan(&t.KTicker, &t.KSide, &t.PSide, &t.Units, &t.GrossUSD, &t.NetUSD, &t.TradedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReadOpportunityTiers counts every detected opportunity per tier.
func (s *Store) ReadOpportunityTiers(ctx context.Context) ([]TierCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(tier, '?'), COUNT(*)
	FROM opportunities GROUP BY tier ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("opportunity tiers query: %w", err)
	}
	defer rows.Close()

	var out []TierCount
	for rows.Next() {
		var tc TierCount
		if err := rows.Scan(&tc.Tier, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
