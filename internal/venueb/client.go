// Package venueb implements the venue.Adapter for the token CLOB. Market
// discovery goes through the metadata (Gamma) API, quotes and orders through
// the CLOB API. Orders are EIP-712 wallet-signed and submitted fill-or-kill;
// API credentials for the order endpoints are derived from the wallet key.
package venueb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"crossarb/internal/config"
	"crossarb/internal/venue"
	"crossarb/pkg/types"
)

const gammaPageLimit = 500

// Client talks to venue B. It implements venue.Adapter.
type Client struct {
	gamma      *resty.Client
	clob       *resty.Client
	auth       *Auth
	limits     venue.Limits
	scanWindow time.Duration
	logger     *slog.Logger

	// negRisk remembers, per CLOB token id, whether the token trades on the
	// neg-risk exchange contract. Populated during ListMarkets and read at
	// order-signing time.
	mu      sync.RWMutex
	negRisk map[string]bool
}

// NewClient builds a venue-B adapter. Without a wallet key the client still
// serves market and quote reads; order and balance calls fail with an auth
// error.
func NewClient(cfg config.VenueBConfig, scanWindow time.Duration, logger *slog.Logger) (*Client, error) {
	var auth *Auth
	if cfg.PrivateKey != "" {
		var err error
		auth, err = NewAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("venue b auth: %w", err)
		}
		if cfg.APIKey != "" {
			auth.SetCredentials(Credentials{
				ApiKey:     cfg.APIKey,
				Secret:     cfg.APISecret,
				Passphrase: cfg.APIPassphrase,
			})
		}
	}

	newHTTP := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
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
			SetHeader("Accept", "application/json")
	}

	return &Client{
		gamma:      newHTTP(cfg.GammaBaseURL),
		clob:       newHTTP(cfg.CLOBBaseURL),
		auth:       auth,
		limits:     venue.NewLimits(cfg.ReadPerSec, cfg.WritePerSec),
		scanWindow: scanWindow,
		logger:     logger.With("venue", "B"),
		negRisk:    make(map[string]bool),
	}, nil
}

// Venue identifies this adapter.
func (c *Client) Venue() types.Venue { return types.VenueB }

// EnsureCredentials derives the L2 API key triplet from the wallet key when
// none was configured. Safe to call repeatedly.
func (c *Client) EnsureCredentials(ctx context.Context) error {
	const op = "derive_credentials"
	if c.auth == nil {
		return venue.Errf(types.VenueB, op, venue.KindAuth, "no wallet key configured")
	}
	if c.auth.HasL2Credentials() {
		return nil
	}

	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	var creds Credentials
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&creds).
		Get("/auth/derive-api-key")
	if err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return venue.FromReadStatus(types.VenueB, op, resp.StatusCode(), resp.String())
	}
	if creds.ApiKey == "" || creds.Secret == "" || creds.Passphrase == "" {
		return venue.Errf(types.VenueB, op, venue.KindProtocol, "derive-api-key returned incomplete credentials")
	}

	c.auth.SetCredentials(creds)
	c.logger.Info("api credentials derived", "address", c.auth.Address().Hex())
	return nil
}

// ListMarkets paginates the metadata API by offset, expands team-outcome
// markets into per-team rows, and keeps markets resolving inside the scan
// window.
func (c *Client) ListMarkets(ctx context.Context) ([]types.NormalizedMarket, error) {
	const op = "list_markets"

	var raw []gammaRow
	for offset := 0; ; offset += gammaPageLimit {
		if err := c.limits.Read.Wait(ctx); err != nil {
			return nil, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
		}

		var page []gammaRow
		resp, err := c.gamma.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"active": "true",
				"closed": "false",
				"limit":  strconv.Itoa(gammaPageLimit),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
		}
		if !resp.IsSuccess() {
			return nil, venue.FromReadStatus(types.VenueB, op, resp.StatusCode(), resp.String())
		}

		raw = append(raw, page...)
		if len(page) < gammaPageLimit {
			break
		}
	}

	var normalized []types.NormalizedMarket
	for _, row := range raw {
		rows := normalizeGamma(row)
		if len(rows) == 0 {
			continue
		}
		c.rememberNegRisk(row)
		normalized = append(normalized, rows...)
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

func (c *Client) rememberNegRisk(row gammaRow) {
	ids := parseStringArray(row.ClobTokenIds)
	c.mu.Lock()
	for _, id := range ids {
		if id != "" {
			c.negRisk[id] = row.NegRisk
		}
	}
	c.mu.Unlock()
}

func (c *Client) tokenNegRisk(tokenID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.negRisk[tokenID]
}

// GetQuote reads the order book for both token ids of a contract.
func (c *Client) GetQuote(ctx context.Context, m types.NormalizedMarket) (types.Quote, error) {
	var q types.Quote
	yes, err := c.book(ctx, m.YesToken)
	if err != nil {
		return types.Quote{}, err
	}
	no, err := c.book(ctx, m.NoToken)
	if err != nil {
		return types.Quote{}, err
	}

	q.YesAskCents, q.YesDepth, q.YesLadder = yes.askSide()
	q.NoAskCents, q.NoDepth, q.NoLadder = no.askSide()
	return q, nil
}

// PlaceTaker signs and submits a fill-or-kill buy at limitCents.
func (c *Client) PlaceTaker(ctx context.Context, m types.NormalizedMarket, side types.Side, units int, limitCents float64) (string, error) {
	tokenID := m.Token(side)
	price := decimal.NewFromFloat(limitCents).Div(decimal.NewFromInt(100)).Round(2)
	return c.placeOrder(ctx, tokenID, sideBuy, units, price)
}

// Cancel removes an order. The venue rejects cancels for orders it no longer
// tracks; those count as done.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	const op = "cancel"
	if err := c.requireL2(op); err != nil {
		return err
	}
	if err := c.limits.Write.Wait(ctx); err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}

	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindValidation, err)
	}
	headers, err := c.auth.L2Headers(http.MethodDelete, "/order", string(body))
	if err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(string(body)).
		Delete("/order")
	if err != nil {
		return venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if resp.IsSuccess() || resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return venue.FromOrderStatus(types.VenueB, op, resp.StatusCode(), resp.String())
}

// GetFill returns the matched size of an order. Sizes come back as decimal
// strings; the scanner only ever trades whole units.
func (c *Client) GetFill(ctx context.Context, orderID string) (int, error) {
	const op = "get_fill"
	if err := c.requireL2(op); err != nil {
		return 0, err
	}
	if err := c.limits.Read.Wait(ctx); err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}

	path := "/data/order/" + orderID
	headers, err := c.auth.L2Headers(http.MethodGet, path, "")
	if err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	var result struct {
		SizeMatched string `json:"size_matched"`
	}
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get(path)
	if err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return 0, venue.FromReadStatus(types.VenueB, op, resp.StatusCode(), resp.String())
	}

	if result.SizeMatched == "" {
		return 0, nil
	}
	matched, err := strconv.ParseFloat(result.SizeMatched, 64)
	if err != nil {
		return 0, venue.Errf(types.VenueB, op, venue.KindProtocol, "bad size_matched %q", result.SizeMatched)
	}
	return int(matched), nil
}

// GetBalance returns the collateral balance in USD. The venue reports raw
// 6-decimal collateral units.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	const op = "get_balance"
	if err := c.requireL2(op); err != nil {
		return 0, err
	}
	if err := c.limits.Read.Wait(ctx); err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}

	const path = "/balance-allowance"
	headers, err := c.auth.L2Headers(http.MethodGet, path, "")
	if err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	var result struct {
		Balance string `json:"balance"`
	}
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParams(map[string]string{
			"asset_type":     "COLLATERAL",
			"signature_type": strconv.Itoa(c.auth.SignatureType()),
		}).
		SetResult(&result).
		Get(path)
	if err != nil {
		return 0, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return 0, venue.FromReadStatus(types.VenueB, op, resp.StatusCode(), resp.String())
	}

	raw, err := strconv.ParseFloat(result.Balance, 64)
	if err != nil {
		return 0, venue.Errf(types.VenueB, op, venue.KindProtocol, "bad balance %q", result.Balance)
	}
	return raw / 1e6, nil
}

// SellAtBid sells units fill-or-kill at the current best bid.
func (c *Client) SellAtBid(ctx context.Context, m types.NormalizedMarket, side types.Side, units int) (venue.SellResult, error) {
	const op = "sell_at_bid"
	tokenID := m.Token(side)
	book, err := c.book(ctx, tokenID)
	if err != nil {
		return venue.SellResult{}, err
	}
	bid, ok := book.bestBid()
	if !ok {
		return venue.SellResult{}, venue.Errf(types.VenueB, op, venue.KindInsufficientLiquidity,
			"no bid for token %s", tokenID)
	}

	orderID, err := c.placeOrder(ctx, tokenID, sideSell, units, bid)
	if err != nil {
		return venue.SellResult{}, err
	}
	priceCents, _ := bid.Mul(decimal.NewFromInt(100)).Float64()
	return venue.SellResult{OrderID: orderID, UnitsSold: units, PriceCents: priceCents}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Order placement
// ————————————————————————————————————————————————————————————————————————

const (
	sideBuy  = 0
	sideSell = 1
)

// orderPayload is the wire form of a signed order. Amounts are decimal
// strings of 6-decimal collateral units; the salt travels as a bare number.
type orderPayload struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type orderSubmission struct {
	Order     orderPayload `json:"order"`
	Owner     string       `json:"owner"`
	OrderType string       `json:"orderType"`
}

func (c *Client) placeOrder(ctx context.Context, tokenID string, side int, units int, price decimal.Decimal) (string, error) {
	const op = "place_order"
	if err := c.requireL2(op); err != nil {
		return "", err
	}
	if units < 1 {
		return "", venue.Errf(types.VenueB, op, venue.KindValidation, "units must be >= 1, got %d", units)
	}
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return "", venue.Errf(types.VenueB, op, venue.KindValidation, "price must be in (0, 1), got %s", price)
	}

	tokenInt, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", venue.Errf(types.VenueB, op, venue.KindValidation, "bad token id %q", tokenID)
	}
	salt, err := newSalt()
	if err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	makerAmt, takerAmt := orderAmounts(side, units, price)
	data := orderData{
		Salt:        salt,
		TokenID:     tokenInt,
		MakerAmount: makerAmt,
		TakerAmount: takerAmt,
		Side:        side,
		NegRisk:     c.tokenNegRisk(tokenID),
	}
	signature, err := c.auth.SignOrder(data)
	if err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	sideName := "BUY"
	if side == sideSell {
		sideName = "SELL"
	}
	submission := orderSubmission{
		Order: orderPayload{
			Salt:          json.Number(salt.String()),
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         zeroAddress.Hex(),
			TokenID:       tokenID,
			MakerAmount:   makerAmt.String(),
			TakerAmount:   takerAmt.String(),
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    "0",
			Side:          sideName,
			SignatureType: c.auth.SignatureType(),
			Signature:     signature,
		},
		Owner:     c.auth.APIKey(),
		OrderType: "FOK",
	}

	body, err := json.Marshal(submission)
	if err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindValidation, err)
	}

	if err := c.limits.Write.Wait(ctx); err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	headers, err := c.auth.L2Headers(http.MethodPost, "/order", string(body))
	if err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindAuth, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
		OrderID  string `json:"orderID"`
	}
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(string(body)).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return "", venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return "", venue.FromOrderStatus(types.VenueB, op, resp.StatusCode(), resp.String())
	}
	if !result.Success || result.OrderID == "" {
		return "", venue.Errf(types.VenueB, op, venue.KindOrderRejected, "order rejected: %s", result.ErrorMsg)
	}

	c.logger.Info("order placed",
		"token_id", tokenID, "side", sideName, "units", units,
		"price", price.String(), "order_id", result.OrderID)
	return result.OrderID, nil
}

// orderAmounts converts units and a dollar price into the 6-decimal
// on-chain amounts. A buy gives collateral for tokens; a sell the reverse.
// Sizes round to 2 decimals, costs to 4, both toward zero.
func orderAmounts(side int, units int, price decimal.Decimal) (maker, taker *big.Int) {
	size := decimal.NewFromInt(int64(units)).RoundDown(2)
	cost := size.Mul(price).RoundDown(4)

	sizeRaw := size.Shift(6).BigInt()
	costRaw := cost.Shift(6).BigInt()
	if side == sideBuy {
		return costRaw, sizeRaw
	}
	return sizeRaw, costRaw
}

func (c *Client) requireL2(op string) error {
	if c.auth == nil || !c.auth.HasL2Credentials() {
		return venue.Errf(types.VenueB, op, venue.KindAuth, "no api credentials configured")
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookSnapshot is one /book response. The venue serves asks descending and
// bids ascending, best level last on both sides.
type bookSnapshot struct {
	Asks []bookLevel `json:"asks"`
	Bids []bookLevel `json:"bids"`
}

func (c *Client) book(ctx context.Context, tokenID string) (bookSnapshot, error) {
	const op = "get_quote"
	if err := c.limits.Read.Wait(ctx); err != nil {
		return bookSnapshot{}, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}

	var snap bookSnapshot
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&snap).
		Get("/book")
	if err != nil {
		return bookSnapshot{}, venue.Wrap(types.VenueB, op, venue.KindTransport, err)
	}
	if !resp.IsSuccess() {
		return bookSnapshot{}, venue.FromReadStatus(types.VenueB, op, resp.StatusCode(), resp.String())
	}
	return snap, nil
}

// askSide reduces the ask levels to cents: best price, the summed size
// resting at that exact price, and an aggregated best-first ladder.
func (s bookSnapshot) askSide() (*float64, float64, types.Ladder) {
	if len(s.Asks) == 0 {
		return nil, 0, nil
	}

	bestRaw := s.Asks[len(s.Asks)-1].Price
	bestPrice, err := strconv.ParseFloat(bestRaw, 64)
	if err != nil || bestPrice <= 0 || bestPrice >= 1 {
		return nil, 0, nil
	}

	// Depth counts every level quoted at exactly the best price string.
	depth := 0.0
	byPrice := make(map[float64]float64)
	for _, lvl := range s.Asks {
		price, perr := strconv.ParseFloat(lvl.Price, 64)
		size, serr := strconv.ParseFloat(lvl.Size, 64)
		if perr != nil || serr != nil || price <= 0 || price >= 1 || size <= 0 {
			continue
		}
		if lvl.Price == bestRaw {
			depth += size
		}
		byPrice[price*100] += size
	}
	if depth == 0 {
		return nil, 0, nil
	}

	ladder := make(types.Ladder, 0, len(byPrice))
	for cents, size := range byPrice {
		ladder = append(ladder, types.PriceLevel{PriceCents: cents, Size: size})
	}
	sort.Slice(ladder, func(i, j int) bool { return ladder[i].PriceCents < ladder[j].PriceCents })

	ask := bestPrice * 100
	return &ask, depth, ladder
}

// bestBid returns the top resting bid as a dollar price.
func (s bookSnapshot) bestBid() (decimal.Decimal, bool) {
	for i := len(s.Bids) - 1; i >= 0; i-- {
		price, err := decimal.NewFromString(s.Bids[i].Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			continue
		}
		return price, true
	}
	return decimal.Decimal{}, false
}
