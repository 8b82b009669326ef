// Package store persists scan and execution history: two append-only SQLite
// tables (opportunities, trades) for reporting, plus an NDJSON stream with
// one line per tick that produced at least one opportunity.
//
// SQL writes are synchronous; the trade row needs the opportunity row id.
// The NDJSON stream goes through a bounded queue with a single writer
// goroutine so a slow disk never stalls a tick.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

const tickQueueSize = 64

// Store owns the SQLite handle and the NDJSON file.
type Store struct {
	db      *sql.DB
	feeRate float64 // venue-A taker fee, fraction of face value
	logger  *slog.Logger

	ndjson *os.File
	ticks  chan tickRecord
	done   chan struct{}
	wg     sync.WaitGroup
}

// Open opens (or creates) the database and the NDJSON file and ensures the
// schema exists. takerFeeRate is used to derive net profit on trade rows.
func Open(cfg config.StoreConfig, takerFeeRate float64, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{
		db:      db,
		feeRate: takerFeeRate,
		logger:  logger.With("component", "store"),
		ticks:   make(chan tickRecord, tickQueueSize),
		done:    make(chan struct{}),
	}

	if cfg.NDJSONPath != "" {
		f, err := os.OpenFile(cfg.NDJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open ndjson: %w", err)
		}
		s.ndjson = f
		s.wg.Add(1)
		go s.writeTicks()
	}

	s.logger.Info("store opened", "db", cfg.DBPath, "ndjson", cfg.NDJSONPath)
	return s, nil
}

// Close drains the tick queue and closes both files.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	if s.ndjson != nil {
		s.ndjson.Close()
	}
	return s.db.Close()
}

const schema = `CREATE TABLE IF NOT EXISTS opportunities (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	scanned_at            TEXT    NOT NULL,
	k_ticker              TEXT    NOT NULL,
	p_token_id            TEXT    NOT NULL,
	k_title               TEXT,
	p_title               TEXT,
	strategy              TEXT,
	k_side                TEXT,
	p_side                TEXT,
	k_cost_cents          REAL,
	p_cost_cents          REAL,
	spread_cents          REAL,
	tier                  TEXT,
	k_depth               REAL,
	p_depth               REAL,
	tradeable_units       INTEGER,
	max_locked_profit_usd REAL,
	hours_to_close        REAL,
	k_close_time          TEXT,
	p_close_time          TEXT,
	executed              INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	opportunity_id    INTEGER REFERENCES opportunities(id),
	traded_at         TEXT    NOT NULL,
	k_ticker          TEXT    NOT NULL,
	p_token_id        TEXT    NOT NULL,
	k_side            TEXT,
	p_side            TEXT,
	requested_units   INTEGER,
	k_filled          INTEGER,
	p_filled          INTEGER,
	k_price_cents     REAL,
	p_price_cents     REAL,
	k_cost_usd        REAL,
	p_cost_usd        REAL,
	total_cost_usd    REAL,
	locked_profit_usd REAL,
	k_fee_usd         REAL,
	net_profit_usd    REAL,
	k_order_id        TEXT,
	p_order_id        TEXT,
	status            TEXT,
	reason            TEXT,
	k_balance_before  REAL,
	p_balance_before  REAL
);

CREATE INDEX IF NOT EXISTS idx_opp_scanned_at   ON opportunities(scanned_at);
CREATE INDEX IF NOT EXISTS idx_opp_k_ticker     ON opportunities(k_ticker);
CREATE INDEX IF NOT EXISTS idx_opp_tier         ON opportunities(tier);
CREATE INDEX IF NOT EXISTS idx_trades_traded_at ON trades(traded_at);
CREATE INDEX IF NOT EXISTS idx_trades_status    ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_k_ticker  ON trades(k_ticker);`

// InsertOpportunity logs one detected opportunity and returns its row id.
func (s *Store) InsertOpportunity(ctx context.Context, o types.Opportunity, executed bool) (int64, error) {
	executedInt := 0
	if executed {
		executedInt = 1
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO opportunities (
		scanned_at, k_ticker, p_token_id, k_title, p_title,
		strategy, k_side, p_side,
		k_cost_cents, p_cost_cents, spread_cents, tier,
		k_depth, p_depth, tradeable_units, max_locked_profit_usd,
		hours_to_close, k_close_time, p_close_time, executed
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.DetectedAt.UTC().Format(time.RFC3339),
		o.Pair.A.PlatformID,
		o.PToken(),
		o.Pair.A.RawTitle,
		o.Pair.B.RawTitle,
		string(o.Strategy),
		string(o.Strategy.VenueASide()),
		string(o.Strategy.VenueBSide()),
		o.KCostCents, o.PCostCents, o.SpreadCents, string(o.Tier),
		o.KDepth, o.PDepth, o.TradeableUnits, o.MaxLockedProfitUSD,
		o.HoursToClose,
		closeTime(o.Pair.A), closeTime(o.Pair.B),
		executedInt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert opportunity: %w", err)
	}
	return res.LastInsertId()
}

// MarkExecuted flips the executed flag after a trade is attempted.
func (s *Store) MarkExecuted(ctx context.Context, oppID int64) error {
	if oppID <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE opportunities SET executed=1 WHERE id=?`, oppID)
	return err
}

// InsertTrade logs one execution attempt. oppID may be 0 when the
// opportunity row failed to insert; the trade is still recorded.
func (s *Store) InsertTrade(ctx context.Context, oppID int64, o types.Opportunity, r types.ExecutionResult) (int64, error) {
	var oppRef any
	if oppID > 0 {
		oppRef = oppID
	}

	var feeUSD, netUSD any
	if r.Status == types.ExecFilled {
		fee := round4(float64(r.KFilled) * s.feeRate)
		feeUSD = fee
		netUSD = round4(r.LockedProfitUSD - fee)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO trades (
		opportunity_id, traded_at, k_ticker, p_token_id, k_side, p_side,
		requested_units, k_filled, p_filled,
		k_price_cents, p_price_cents,
		k_cost_usd, p_cost_usd, total_cost_usd,
		locked_profit_usd, k_fee_usd, net_profit_usd,
		k_order_id, p_order_id, status, reason,
		k_balance_before, p_balance_before
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		oppRef,
		time.Now().UTC().Format(time.RFC3339),
		o.Pair.A.PlatformID,
		o.PToken(),
		string(o.Strategy.VenueASide()),
		string(o.Strategy.VenueBSide()),
		r.RequestedUnits, r.KFilled, r.PFilled,
		r.KPriceCents, r.PPriceCents,
		r.KCostUSD, r.PCostUSD, r.TotalCostUSD(),
		r.LockedProfitUSD, feeUSD, netUSD,
		r.KOrderID, r.POrderID,
		string(r.Status), r.Reason,
		r.KBalanceBefore, r.PBalanceBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

func closeTime(m types.NormalizedMarket) any {
	if m.ResolutionDT.IsZero() {
		return nil
	}
	return m.ResolutionDT.UTC().Format(time.RFC3339)
}

// round4 keeps USD ledger columns at four decimal places without float
// rounding drift.
func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}

// tickRecord is one NDJSON line.
type tickRecord struct {
	TS            string      `json:"ts"`
	Count         int         `json:"count"`
	Opportunities []oppRecord `json:"opportunities"`
}

type oppRecord struct {
	KTicker     string  `json:"k_ticker"`
	PTokenID    string  `json:"p_token_id"`
	Strategy    string  `json:"strategy"`
	KCostCents  float64 `json:"k_cost_cents"`
	PCostCents  float64 `json:"p_cost_cents"`
	SpreadCents float64 `json:"spread_cents"`
	Tier        string  `json:"tier"`
	Units       int     `json:"tradeable_units"`
	MaxUSD      float64 `json:"max_locked_profit_usd"`
}

// QueueTick enqueues one NDJSON line for the tick. Never blocks: when the
// queue is full the line is dropped with a warning.
func (s *Store) QueueTick(at time.Time, opps []types.Opportunity) {
	if s.ndjson == nil || len(opps) == 0 {
		return
	}
	rec := tickRecord{
		TS:            at.UTC().Format(time.RFC3339),
		Count:         len(opps),
		Opportunities: make([]oppRecord, 0, len(opps)),
	}
	for _, o := range opps {
		rec.Opportunities = append(rec.Opportunities, oppRecord{
			KTicker:     o.Pair.A.PlatformID,
			PTokenID:    o.PToken(),
			Strategy:    string(o.Strategy),
			KCostCents:  o.KCostCents,
			PCostCents:  o.PCostCents,
			SpreadCents: o.SpreadCents,
			Tier:        string(o.Tier),
			Units:       o.TradeableUnits,
			MaxUSD:      o.MaxLockedProfitUSD,
		})
	}
	select {
	case s.ticks <- rec:
	default:
		s.logger.Warn("ndjson queue full, tick dropped", "opportunities", len(opps))
	}
}

func (s *Store) writeTicks() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.ticks:
			s.writeLine(rec)
		case <-s.done:
			for {
				select {
				case rec := <-s.ticks:
					s.writeLine(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) writeLine(rec tickRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("ndjson marshal failed", "error", err)
		return
	}
	if _, err := s.ndjson.Write(append(data, '\n')); err != nil {
		s.logger.Warn("ndjson write failed", "error", err)
	}
}
