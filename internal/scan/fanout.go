// Package scan turns the matched pair set into priced opportunities each
// tick: a bounded worker pool fans out quote reads to both venues, and the
// finder applies the spread math to every complete pair.
package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/venue"
	"crossarb/pkg/types"
)

// Fanout reads both venues' quotes for a pair set with bounded concurrency.
type Fanout struct {
	a, b    venue.Adapter
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// NewFanout builds a quote fan-out over the two venue adapters.
func NewFanout(a, b venue.Adapter, cfg config.ScannerConfig, logger *slog.Logger) *Fanout {
	return &Fanout{
		a:       a,
		b:       b,
		workers: cfg.FetchWorkers,
		timeout: cfg.QuoteTimeout,
		logger:  logger.With("component", "fanout"),
	}
}

// Collect fetches both legs' quotes for every pair. Pairs whose quotes fail
// on either venue are dropped for this tick; failures are non-fatal and
// logged at debug. Results keep no particular order.
func (f *Fanout) Collect(ctx context.Context, pairs []types.MatchedPair) []types.PairQuotes {
	jobs := make(chan types.MatchedPair)
	results := make(chan types.PairQuotes, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range jobs {
				if pq, ok := f.quotePair(ctx, pair); ok {
					results <- pq
				}
			}
		}()
	}

	for _, pair := range pairs {
		select {
		case jobs <- pair:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	quoted := make([]types.PairQuotes, 0, len(results))
	for pq := range results {
		quoted = append(quoted, pq)
	}
	return quoted
}

func (f *Fanout) quotePair(ctx context.Context, pair types.MatchedPair) (types.PairQuotes, bool) {
	aQuote, ok := f.quoteOne(ctx, f.a, pair.A)
	if !ok {
		return types.PairQuotes{}, false
	}
	bQuote, ok := f.quoteOne(ctx, f.b, pair.B)
	if !ok {
		return types.PairQuotes{}, false
	}
	return types.PairQuotes{
		Pair:      pair,
		A:         aQuote,
		B:         bQuote,
		FetchedAt: time.Now().UTC(),
	}, true
}

func (f *Fanout) quoteOne(ctx context.Context, adapter venue.Adapter, m types.NormalizedMarket) (types.Quote, bool) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	q, err := adapter.GetQuote(callCtx, m)
	if err != nil {
		f.logger.Debug("quote failed",
			"venue", string(adapter.Venue()), "market", m.PlatformID, "error", err)
		return types.Quote{}, false
	}
	return q, true
}
