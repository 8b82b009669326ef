// Package venuea implements the venue.Adapter for the integer-cent CLOB
// reached over REST. Market reads are unauthenticated; portfolio endpoints
// carry an RSA-PSS signature over timestamp + method + signed path.
//
// Prices on this venue are whole cents in [1, 99]. The orderbook endpoint
// lists resting bids per contract side, so the ask for one side is derived
// from the best bid of the opposite side.
package venuea

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"crossarb/internal/config"
	"crossarb/internal/venue"
	"crossarb/pkg/types"
)

const (
	pageLimit      = 1000
	interPageDelay = 60 * time.Millisecond
)

// Client talks to venue A. It implements venue.Adapter.
type Client struct {
	http       *resty.Client
	signer     *Signer
	limits     venue.Limits
	prefix     string // signed-path prefix, e.g. /trade-api/v2
	scanWindow time.Duration
	logger     *slog.Logger
}

// NewClient builds a venue-A adapter. A client without credentials still
// serves market reads; order and balance calls fail with an auth error.
func NewClient(cfg config.VenueAConfig, scanWindow time.Duration, logger *slog.Logger) (*Client, error) {
	signer, err := NewSigner(cfg.APIKey, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("venue a signer: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:       httpClient,
		signer:     signer,
		limits:     venue.NewLimits(cfg.ReadPerSec, cfg.WritePerSec),
		prefix:     cfg.APIPrefix,
		scanWindow: scanWindow,
		logger:     logger.With("venue", "A"),
	}, nil
}

// Venue identifies this adapter.
func (c *Client) Venue() types.Venue { return types.VenueA }

// ListMarkets paginates the open-market list via cursor, normalizes every
// row, and keeps markets resolving inside the scan window.
func (c *Client) ListMarkets(ctx context.Context) ([]types.NormalizedMarket, error) {
	const op = "list_markets"

	var raw []marketRow
	cursor := ""
	for {
		if err := c.limits.Read.Wait(ctx); err != nil {
			return nil, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
		}

		var page struct {
			Markets []marketRow `json:"markets"`
			Cursor  string      `json:"cursor"`
		}
		req := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"status": "open",
				"limit":  strconv.Itoa(pageLimit),
			}).
			SetResult(&page)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}

		resp, err := req.Get("/markets")
		if err != nil {
			return nil, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
		}
		if !resp.IsSuccess() {
			return nil, venue.FromReadStatus(types.VenueA, op, resp.StatusCode(), resp.String())
		}

		raw = append(raw, page.Markets...)
		cursor = page.Cursor
		if cursor == "" || len(page.Markets) < pageLimit {
			break
		}

		// Brief pause between pages to stay under the read rate limit.
		select {
		case <-ctx.Done():
			return nil, venue.Wrap(types.VenueA, op, venue.KindTransport, ctx.Err())
		case <-time.After(interPageDelay):
		}
	}

	var normalized []types.NormalizedMarket
	for _, row := range raw {
		m, ok := normalizeMarket(row)
		if !ok {
			continue
		}
		normalized = append(normalized, m)
	}

	now := time.Now().UTC()
	cutoff := now.Add(c.scanWindow)
	var filtered []types.NormalizedMarket
	for _, m := range normalized {
		if m.ResolutionDT.After(now) && !m.ResolutionDT.After(cutoff) {
			filtered = append(filtered, m)
		}
	}

	c.logger.Info("market list fetched",
		"raw", len(raw), "normalized", len(normalized), "in_window", len(filtered))
	return filtered, nil
}

// GetQuote merges the market summary with the orderbook. Summary asks are
// preferred when present; the orderbook is authoritative when they are null
// and is the only source of depth and ladders.
func (c *Client) GetQuote(ctx context.Context, m types.NormalizedMarket) (types.Quote, error) {
	sum, err := c.summary(ctx, m.PlatformID)
	if err != nil {
		return types.Quote{}, err
	}
	yesBids, noBids, err := c.orderbook(ctx, m.PlatformID)
	if err != nil {
		return types.Quote{}, err
	}

	q := quoteFromBook(yesBids, noBids)
	if sum.YesAsk != nil {
		q.YesAskCents = sum.YesAsk
	}
	if sum.NoAsk != nil {
		q.NoAskCents = sum.NoAsk
	}
	return q, nil
}

// PlaceTaker places a limit buy at limitCents. The venue has no explicit
// immediate-or-cancel flag; the caller verifies the fill and cancels any
// resting remainder.
func (c *Client) PlaceTaker(ctx context.Context, m types.NormalizedMarket, side types.Side, units int, limitCents float64) (string, error) {
	return c.placeOrder(ctx, m.PlatformID, side, "buy", units, int(math.Floor(limitCents)))
}

// Cancel cancels the resting remainder of an order. An order the venue no
// longer knows about counts as cancelled.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	const op = "cancel"
	if !c.signer.Enabled() {
		return venue.Errf(types.VenueA, op, venue.KindAuth, "no credentials configured")
	}
	if err := c.limits.Write.Wait(ctx); err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}

	path := "/portfolio/orders/" + orderID
	headers, err := c.signer.Headers(http.MethodDelete, c.prefix+path)
	if err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindAuth, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Delete(path)
	if err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}
	if resp.IsSuccess() || resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return venue.FromOrderStatus(types.VenueA, op, resp.StatusCode(), resp.String())
}

// GetFill returns the filled unit count for an order. Fill count is the
// authoritative measure; a cancelled order also has zero remaining.
func (c *Client) GetFill(ctx context.Context, orderID string) (int, error) {
	const op = "get_fill"
	var result struct {
		Order struct {
			FillCount int `json:"fill_count"`
		} `json:"order"`
	}
	if err := c.getSigned(ctx, op, "/portfolio/orders/"+orderID, &result); err != nil {
		return 0, err
	}
	return result.Order.FillCount, nil
}

// GetBalance returns the account cash balance in USD. The venue reports
// integer cents.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	const op = "get_balance"
	var result struct {
		Balance float64 `json:"balance"`
	}
	if err := c.getSigned(ctx, op, "/portfolio/balance", &result); err != nil {
		return 0, err
	}
	return result.Balance / 100, nil
}

// SellAtBid sells units at the current best bid for the side, floored to a
// whole cent with a floor of 1. One attempt; the caller retries.
func (c *Client) SellAtBid(ctx context.Context, m types.NormalizedMarket, side types.Side, units int) (venue.SellResult, error) {
	sum, err := c.summary(ctx, m.PlatformID)
	if err != nil {
		return venue.SellResult{}, err
	}
	bid := sum.YesBid
	if side == types.SideNo {
		bid = sum.NoBid
	}
	if bid == nil {
		return venue.SellResult{}, venue.Errf(types.VenueA, "sell_at_bid", venue.KindInsufficientLiquidity,
			"no bid for %s %s", m.PlatformID, side)
	}

	price := int(math.Floor(*bid))
	if price < 1 {
		price = 1
	}

	orderID, err := c.placeOrder(ctx, m.PlatformID, side, "sell", units, price)
	if err != nil {
		return venue.SellResult{}, err
	}
	return venue.SellResult{OrderID: orderID, UnitsSold: units, PriceCents: float64(price)}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Internals
// ————————————————————————————————————————————————————————————————————————

type orderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Type          string `json:"type"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

func (c *Client) placeOrder(ctx context.Context, ticker string, side types.Side, action string, count, priceCents int) (string, error) {
	const op = "place_order"
	if !c.signer.Enabled() {
		return "", venue.Errf(types.VenueA, op, venue.KindAuth, "no credentials configured")
	}
	if count < 1 {
		return "", venue.Errf(types.VenueA, op, venue.KindValidation, "count must be >= 1, got %d", count)
	}
	if priceCents < 1 || priceCents > 99 {
		return "", venue.Errf(types.VenueA, op, venue.KindValidation, "price must be 1-99 cents, got %d", priceCents)
	}

	body := orderRequest{
		Ticker: ticker,
		// The idempotency key also makes transport-level retries safe.
		ClientOrderID: uuid.NewString(),
		Type:          "limit",
		Action:        action,
		Side:          "no",
		Count:         count,
	}
	if side == types.SideYes {
		body.Side = "yes"
		body.YesPrice = priceCents
	} else {
		body.NoPrice = priceCents
	}

	if err := c.limits.Write.Wait(ctx); err != nil {
		return "", venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}

	const path = "/portfolio/orders"
	headers, err := c.signer.Headers(http.MethodPost, c.prefix+path)
	if err != nil {
		return "", venue.Wrap(types.VenueA, op, venue.KindAuth, err)
	}

	var result struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&result).
		Post(path)
	if err != nil {
		return "", venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return "", venue.FromOrderStatus(types.VenueA, op, resp.StatusCode(), resp.String())
	}
	if result.Order.OrderID == "" {
		return "", venue.Errf(types.VenueA, op, venue.KindProtocol, "order accepted without an order_id")
	}

	c.logger.Info("order placed",
		"ticker", ticker, "action", action, "side", string(side), "count", count,
		"price_cents", priceCents, "order_id", result.Order.OrderID)
	return result.Order.OrderID, nil
}

func (c *Client) getSigned(ctx context.Context, op, path string, result any) error {
	if !c.signer.Enabled() {
		return venue.Errf(types.VenueA, op, venue.KindAuth, "no credentials configured")
	}
	if err := c.limits.Read.Wait(ctx); err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}

	headers, err := c.signer.Headers(http.MethodGet, c.prefix+path)
	if err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindAuth, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(result).
		Get(path)
	if err != nil {
		return venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return venue.FromReadStatus(types.VenueA, op, resp.StatusCode(), resp.String())
	}
	return nil
}

type summaryPrices struct {
	YesAsk *float64
	NoAsk  *float64
	YesBid *float64
	NoBid  *float64
}

func (c *Client) summary(ctx context.Context, ticker string) (summaryPrices, error) {
	const op = "get_quote"
	if err := c.limits.Read.Wait(ctx); err != nil {
		return summaryPrices{}, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}

	var result struct {
		Market struct {
			YesAsk *float64 `json:"yes_ask"`
			NoAsk  *float64 `json:"no_ask"`
			YesBid *float64 `json:"yes_bid"`
			NoBid  *float64 `json:"no_bid"`
		} `json:"market"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + ticker)
	if err != nil {
		return summaryPrices{}, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return summaryPrices{}, venue.FromReadStatus(types.VenueA, op, resp.StatusCode(), resp.String())
	}

	return summaryPrices{
		YesAsk: validCents(result.Market.YesAsk),
		NoAsk:  validCents(result.Market.NoAsk),
		YesBid: validCents(result.Market.YesBid),
		NoBid:  validCents(result.Market.NoBid),
	}, nil
}

// orderbook returns the resting bid levels per side, ascending by price as
// the venue serves them (best bid = last element).
func (c *Client) orderbook(ctx context.Context, ticker string) (yesBids, noBids [][]float64, err error) {
	const op = "get_quote"
	if err := c.limits.Read.Wait(ctx); err != nil {
		return nil, nil, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}

	var result struct {
		Orderbook struct {
			Yes [][]float64 `json:"yes"`
			No  [][]float64 `json:"no"`
		} `json:"orderbook"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + ticker + "/orderbook")
	if err != nil {
		return nil, nil, venue.Wrap(types.VenueA, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return nil, nil, venue.FromReadStatus(types.VenueA, op, resp.StatusCode(), resp.String())
	}
	return result.Orderbook.Yes, result.Orderbook.No, nil
}

// quoteFromBook derives both ask sides from the opposite side's bids: a
// resting NO bid at p is a YES offer at 100-p. Ladders come out best-first.
func quoteFromBook(yesBids, noBids [][]float64) types.Quote {
	var q types.Quote
	q.YesAskCents, q.YesDepth, q.YesLadder = askFromOppositeBids(noBids)
	q.NoAskCents, q.NoDepth, q.NoLadder = askFromOppositeBids(yesBids)
	return q
}

func askFromOppositeBids(bids [][]float64) (*float64, float64, types.Ladder) {
	ladder := make(types.Ladder, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		level := bids[i]
		if len(level) < 2 {
			continue
		}
		price, size := level[0], level[1]
		if price <= 0 || price >= 100 || size <= 0 {
			continue
		}
		ladder = append(ladder, types.PriceLevel{PriceCents: 100 - price, Size: size})
	}
	best, ok := ladder.Best()
	if !ok {
		return nil, 0, nil
	}
	ask := best.PriceCents
	return &ask, best.Size, ladder
}

// validCents rejects prices outside (0, 100); a zero ask means an empty
// book side, never a free contract.
func validCents(p *float64) *float64 {
	if p == nil || *p <= 0 || *p >= 100 {
		return nil
	}
	return p
}
