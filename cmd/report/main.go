// Report prints a profitability summary from the scanner's SQLite log:
// run totals, a per-tier breakdown, skip reasons, and the best trades.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"log/slog"

	"crossarb/internal/config"
	"crossarb/internal/store"
)

func main() {
	var (
		dbPath = flag.String("db", "crossarb.db", "path to the scanner database")
		top    = flag.Int("top", 10, "how many top trades to list")
	)
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "no database at %s — run the scanner first\n", *dbPath)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(config.StoreConfig{DBPath: *dbPath}, 0, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if err := run(ctx, st, *top); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, st *store.Store, top int) error {
	ov, err := st.ReadOverview(ctx)
	if err != nil {
		return err
	}

	fmt.Println("============================================================")
	fmt.Println(" CROSSARB TRADE REPORT")
	fmt.Println("============================================================")
	if ov.TotalTrades == 0 {
		fmt.Println("no trades recorded yet")
	} else {
		fmt.Printf("period            %s — %s\n", ov.FirstTrade, ov.LastTrade)
		fmt.Printf("attempts          %d  (filled %d, skipped %d, unwound %d, stuck %d, errors %d)\n",
			ov.TotalTrades, ov.Filled, ov.Skipped, ov.Unwound, ov.PartialStuck, ov.Errors)
		fmt.Printf("capital deployed  $%.2f\n", ov.CapitalDeployed)
		fmt.Printf("gross locked      $%.4f\n", ov.GrossProfitUSD)
		fmt.Printf("fees              $%.4f\n", ov.FeesUSD)
		fmt.Printf("net locked        $%.4f\n", ov.NetProfitUSD)
		if ov.CapitalDeployed > 0 {
			fmt.Printf("return on capital %.2f%%\n", 100*ov.NetProfitUSD/ov.CapitalDeployed)
		}
	}

	tiers, err := st.ReadTierStats(ctx)
	if err != nil {
		return err
	}
	if len(tiers) > 0 {
		fmt.Println("\n--- by tier (filled only) ---")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "tier\ttrades\tavg spread\tgross\tnet\tcapital")
		for _, t := range tiers {
			fmt.Fprintf(w, "%s\t%d\t%.1fc\t$%.4f\t$%.4f\t$%.2f\n",
				t.Tier, t.Trades, t.AvgSpread, t.GrossUSD, t.NetUSD, t.CapitalUSD)
		}
		w.Flush()
	}

	reasons, err := st.ReadSkipReasons(ctx)
	if err != nil {
		return err
	}
	if len(reasons) > 0 {
		fmt.Println("\n--- skip reasons ---")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, r := range reasons {
			reason := r.Reason
			if reason == "" {
				reason = "(none)"
			}
			fmt.Fprintf(w, "%s\t%d\n", reason, r.Count)
		}
		w.Flush()
	}

	trades, err := st.ReadTopTrades(ctx, top)
	if err != nil {
		return err
	}
	if len(trades) > 0 {
		fmt.Printf("\n--- top %d trades ---\n", len(trades))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ticker\tsides\tunits\tgross\tnet\tat")
		for _, t := range trades {
			fmt.Fprintf(w, "%s\t%s/%s\t%d\t$%.4f\t$%.4f\t%s\n",
				t.KTicker, t.KSide, t.PSide, t.Units, t.GrossUSD, t.NetUSD, t.TradedAt)
		}
		w.Flush()
	}

	opps, err := st.ReadOpportunityTiers(ctx)
	if err != nil {
		return err
	}
	if len(opps) > 0 {
		fmt.Println("\n--- opportunities seen ---")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, tc := range opps {
			fmt.Fprintf(w, "%s\t%d\n", tc.Tier, tc.Count)
		}
		w.Flush()
	}

	fmt.Println("============================================================")
	return nil
}
