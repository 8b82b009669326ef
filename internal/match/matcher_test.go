package match

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/pkg/types"
)

var matchBase = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestMatcher(cryptoEnabled bool) *Matcher {
	cfg := Config{CryptoEnabled: cryptoEnabled}
	return NewMatcher(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func aSports(id, sport, team, opp string, subtype types.Subtype, mapNum int, dt time.Time) types.NormalizedMarket {
	return types.NormalizedMarket{
		Venue: types.VenueA, PlatformID: id, AssetClass: types.ClassSports,
		Sport: sport, Team: team, Opponent: opp, SportSubtype: subtype, MapNumber: mapNum,
		ResolutionDT: dt, YesToken: id, NoToken: id,
	}
}

func bSports(id, sport, team, opp string, subtype types.Subtype, mapNum int, dt time.Time) types.NormalizedMarket {
	return types.NormalizedMarket{
		Venue: types.VenueB, PlatformID: id, AssetClass: types.ClassSports,
		Sport: sport, Team: team, Opponent: opp, SportSubtype: subtype, MapNumber: mapNum,
		ResolutionDT: dt, YesToken: id + "-yes", NoToken: id + "-no",
	}
}

func aCrypto(id, asset string, dir types.Direction, threshold string, dt time.Time) types.NormalizedMarket {
	return types.NormalizedMarket{
		Venue: types.VenueA, PlatformID: id, AssetClass: types.ClassCrypto,
		CryptoAsset: asset, Direction: dir, Threshold: decimal.RequireFromString(threshold),
		ResolutionDT: dt, YesToken: id, NoToken: id,
	}
}

func bCrypto(id, asset string, dir types.Direction, threshold string, dt time.Time) types.NormalizedMarket {
	return types.NormalizedMarket{
		Venue: types.VenueB, PlatformID: id, AssetClass: types.ClassCrypto,
		CryptoAsset: asset, Direction: dir, Threshold: decimal.RequireFromString(threshold),
		ResolutionDT: dt, YesToken: id + "-yes", NoToken: id + "-no",
	}
}

func TestMatchSportsHappyPath(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "CS2", "navi", "faze", types.SubtypeMap, 2, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "CS2", "navi", "faze", types.SubtypeMap, 2, matchBase.Add(90*time.Minute))}

	pairs, stats := m.Match(as, bs)
	if len(pairs) != 1 {
		t.Fatalf("Match() pairs = %d, want 1", len(pairs))
	}
	if pairs[0].A.PlatformID != "KX-1" || pairs[0].B.PlatformID != "0x1" {
		t.Errorf("paired %s|%s, want KX-1|0x1", pairs[0].A.PlatformID, pairs[0].B.PlatformID)
	}
	if stats.SportsPairs != 1 {
		t.Errorf("stats.SportsPairs = %d, want 1", stats.SportsPairs)
	}
}

func TestMatchRejectsOpponentMismatch(t *testing.T) {
	t.Parallel()

	// Same team, same date, same subtype, different opponent: two different
	// series, never a pair.
	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "LOL", "drx", "t1", types.SubtypeSeries, 0, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "LOL", "drx", "geng", types.SubtypeSeries, 0, matchBase)}

	pairs, stats := m.Match(as, bs)
	if len(pairs) != 0 {
		t.Fatalf("Match() pairs = %d, want 0", len(pairs))
	}
	if stats.RejectOpponent != 1 {
		t.Errorf("stats.RejectOpponent = %d, want 1", stats.RejectOpponent)
	}
}

func TestMatchRejectsMapNumberMismatch(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "CS2", "navi", "faze", types.SubtypeMap, 2, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "CS2", "navi", "faze", types.SubtypeMap, 3, matchBase)}

	pairs, stats := m.Match(as, bs)
	if len(pairs) != 0 {
		t.Fatalf("map 2 paired with game 3: pairs = %d, want 0", len(pairs))
	}
	if stats.RejectMapNumber != 1 {
		t.Errorf("stats.RejectMapNumber = %d, want 1", stats.RejectMapNumber)
	}
}

func TestMatchMapNumberNotRequiredWhenAbsent(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "CS2", "navi", "faze", types.SubtypeMap, 2, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "CS2", "navi", "faze", types.SubtypeMap, 0, matchBase)}

	pairs, _ := m.Match(as, bs)
	if len(pairs) != 1 {
		t.Fatalf("absent map number must not disqualify: pairs = %d, want 1", len(pairs))
	}
}

func TestMatchDateTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		gap      time.Duration
		wantPair bool
	}{
		{"same instant", 0, true},
		{"inside tolerance", 3*time.Hour + 59*time.Minute, true},
		{"exactly at tolerance", 4 * time.Hour, true},
		{"past tolerance", 4*time.Hour + time.Minute, false},
		{"negative gap inside", -3 * time.Hour, true},
		{"negative gap outside", -5 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newTestMatcher(false)
			as := []types.NormalizedMarket{aSports("KX-1", "CS2", "navi", "faze", types.SubtypeSeries, 0, matchBase)}
			bs := []types.NormalizedMarket{bSports("0x1", "CS2", "navi", "faze", types.SubtypeSeries, 0, matchBase.Add(tt.gap))}

			pairs, _ := m.Match(as, bs)
			if got := len(pairs) == 1; got != tt.wantPair {
				t.Errorf("gap %v paired = %v, want %v", tt.gap, got, tt.wantPair)
			}
		})
	}
}

func TestMatchSubtypeSeparatesMapAndSeries(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "CS2", "navi", "faze", types.SubtypeMap, 0, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "CS2", "navi", "faze", types.SubtypeSeries, 0, matchBase)}

	if pairs, _ := m.Match(as, bs); len(pairs) != 0 {
		t.Fatalf("map market paired with series market: pairs = %d, want 0", len(pairs))
	}
}

func TestMatchSportSeparates(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "CS2", "liquid", "faze", types.SubtypeSeries, 0, matchBase)}
	bs := []types.NormalizedMarket{bSports("0x1", "DOTA2", "liquid", "faze", types.SubtypeSeries, 0, matchBase)}

	if pairs, _ := m.Match(as, bs); len(pairs) != 0 {
		t.Fatalf("CS2 paired with DOTA2: pairs = %d, want 0", len(pairs))
	}
}

func TestMatchExclusivity(t *testing.T) {
	t.Parallel()

	// One venue-A market, two venue-B candidates: only the first B market
	// pairs, the second finds the A side consumed.
	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aSports("KX-1", "NBA", "lakers", "celtics", types.SubtypeSeries, 0, matchBase)}
	bs := []types.NormalizedMarket{
		bSports("0x1", "NBA", "lakers", "celtics", types.SubtypeSeries, 0, matchBase),
		bSports("0x2", "NBA", "lakers", "celtics", types.SubtypeSeries, 0, matchBase.Add(time.Hour)),
	}

	pairs, _ := m.Match(as, bs)
	if len(pairs) != 1 {
		t.Fatalf("Match() pairs = %d, want 1 (exclusive)", len(pairs))
	}
	if pairs[0].B.PlatformID != "0x1" {
		t.Errorf("paired B = %s, want 0x1 (first candidate wins)", pairs[0].B.PlatformID)
	}

	// No market id may appear in more than one pair.
	seen := map[string]int{}
	for _, p := range pairs {
		seen[p.A.PlatformID]++
		seen[p.B.PlatformID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("market %s appears in %d pairs", id, n)
		}
	}
}

func TestMatchCryptoDisabledByDefault(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(false)
	as := []types.NormalizedMarket{aCrypto("KX-BTC", "BTC", types.DirAbove, "75750", matchBase)}
	bs := []types.NormalizedMarket{bCrypto("0xBTC", "BTC", types.DirAbove, "75750", matchBase)}

	if pairs, _ := m.Match(as, bs); len(pairs) != 0 {
		t.Fatalf("crypto matched with flag off: pairs = %d, want 0", len(pairs))
	}
}

func TestMatchCryptoEnabled(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(true)
	as := []types.NormalizedMarket{aCrypto("KX-BTC", "BTC", types.DirAbove, "75750", matchBase)}
	bs := []types.NormalizedMarket{bCrypto("0xBTC", "BTC", types.DirAbove, "75750.00", matchBase.Add(30*time.Minute))}

	pairs, stats := m.Match(as, bs)
	if len(pairs) != 1 {
		t.Fatalf("Match() pairs = %d, want 1", len(pairs))
	}
	if stats.CryptoPairs != 1 {
		t.Errorf("stats.CryptoPairs = %d, want 1", stats.CryptoPairs)
	}
}

func TestMatchCryptoCriteria(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		b        types.NormalizedMarket
		wantPair bool
	}{
		{"exact threshold required", bCrypto("0x1", "BTC", types.DirAbove, "75751", matchBase), false},
		{"direction separates", bCrypto("0x2", "BTC", types.DirBelow, "75750", matchBase), false},
		{"asset separates", bCrypto("0x3", "ETH", types.DirAbove, "75750", matchBase), false},
		{"tight date tolerance", bCrypto("0x4", "BTC", types.DirAbove, "75750", matchBase.Add(61*time.Minute)), false},
		{"all criteria hold", bCrypto("0x5", "BTC", types.DirAbove, "75750", matchBase.Add(59*time.Minute)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newTestMatcher(true)
			as := []types.NormalizedMarket{aCrypto("KX-BTC", "BTC", types.DirAbove, "75750", matchBase)}

			pairs, _ := m.Match(as, []types.NormalizedMarket{tt.b})
			if got := len(pairs) == 1; got != tt.wantPair {
				t.Errorf("paired = %v, want %v", got, tt.wantPair)
			}
		})
	}
}
