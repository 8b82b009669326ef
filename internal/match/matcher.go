package match

import (
	"log/slog"
	"time"

	"crossarb/pkg/types"
)

// Tolerances and defaults for the cross-venue join.
//
// Sports tolerance is wide because the venues disagree on what a market's
// close time means: one lists scheduled start, the other expected end, and a
// BO5 series can run four hours. Crypto markets close on the hour, so the
// tolerance is tight.
const (
	DefaultSportsTolerance = 4 * time.Hour
	DefaultCryptoTolerance = 1 * time.Hour
)

// Config tunes the matcher.
type Config struct {
	SportsTolerance time.Duration
	CryptoTolerance time.Duration
	CryptoEnabled   bool // crypto pairing is off unless explicitly enabled
}

// Stats counts what one Match call did, for the refresh log line.
type Stats struct {
	SportsPairs     int
	CryptoPairs     int
	CandidateChecks int
	RejectOpponent  int
	RejectDateGap   int
	RejectMapNumber int
	RejectThreshold int
	UnmatchedVenueB int // venue-B rows with no candidate bucket at all
}

// Pairs is the total emitted.
func (s Stats) Pairs() int { return s.SportsPairs + s.CryptoPairs }

// Matcher joins normalized markets from the two venues into exclusive pairs.
type Matcher struct {
	cfg    Config
	logger *slog.Logger
}

// NewMatcher applies tolerance defaults and returns a Matcher.
func NewMatcher(cfg Config, logger *slog.Logger) *Matcher {
	if cfg.SportsTolerance == 0 {
		cfg.SportsTolerance = DefaultSportsTolerance
	}
	if cfg.CryptoTolerance == 0 {
		cfg.CryptoTolerance = DefaultCryptoTolerance
	}
	return &Matcher{cfg: cfg, logger: logger}
}

type sportsKey struct {
	sport   string
	team    string
	subtype types.Subtype
}

type cryptoKey struct {
	asset     string
	direction types.Direction
}

// Match pairs venue-A markets with venue-B markets. Pairing is exclusive:
// once a market is consumed it cannot appear in another pair. Candidates are
// probed in input order and the first one passing every criterion wins.
func (m *Matcher) Match(aMarkets, bMarkets []types.NormalizedMarket) ([]types.MatchedPair, Stats) {
	var (
		pairs []types.MatchedPair
		stats Stats
	)

	sportsBuckets := make(map[sportsKey][]int)
	cryptoBuckets := make(map[cryptoKey][]int)
	for i, a := range aMarkets {
		if a.Venue != types.VenueA {
			continue
		}
		switch a.AssetClass {
		case types.ClassSports:
			k := sportsKey{a.Sport, a.Team, a.SportSubtype}
			sportsBuckets[k] = append(sportsBuckets[k], i)
		case types.ClassCrypto:
			k := cryptoKey{a.CryptoAsset, a.Direction}
			cryptoBuckets[k] = append(cryptoBuckets[k], i)
		}
	}

	consumed := make(map[int]bool, len(aMarkets))

	for _, b := range bMarkets {
		if b.Venue != types.VenueB {
			continue
		}
		var (
			a  *types.NormalizedMarket
			ai int
		)
		switch b.AssetClass {
		case types.ClassSports:
			a, ai = m.findSports(aMarkets, sportsBuckets, consumed, b, &stats)
		case types.ClassCrypto:
			if !m.cfg.CryptoEnabled {
				continue
			}
			a, ai = m.findCrypto(aMarkets, cryptoBuckets, consumed, b, &stats)
		}
		if a == nil {
			continue
		}

		consumed[ai] = true
		pairs = append(pairs, types.MatchedPair{A: *a, B: b})
		if b.AssetClass == types.ClassSports {
			stats.SportsPairs++
		} else {
			stats.CryptoPairs++
		}
		m.logger.Debug("matched pair",
			"a", a.PlatformID, "b", b.PlatformID,
			"class", b.AssetClass, "sport", b.Sport,
			"team", b.Team, "opponent", b.Opponent)
	}

	return pairs, stats
}

func (m *Matcher) findSports(aMarkets []types.NormalizedMarket, buckets map[sportsKey][]int, consumed map[int]bool, b types.NormalizedMarket, stats *Stats) (*types.NormalizedMarket, int) {
	key := sportsKey{b.Sport, b.Team, b.SportSubtype}
	bucket := buckets[key]
	if len(bucket) == 0 {
		stats.UnmatchedVenueB++
		return nil, 0
	}
	for _, i := range bucket {
		if consumed[i] {
			continue
		}
		a := aMarkets[i]
		stats.CandidateChecks++

		if a.Opponent != b.Opponent {
			stats.RejectOpponent++
			continue
		}
		if absDuration(a.ResolutionDT.Sub(b.ResolutionDT)) > m.cfg.SportsTolerance {
			stats.RejectDateGap++
			continue
		}
		// Map numbers only disqualify when both venues state one.
		if a.MapNumber != 0 && b.MapNumber != 0 && a.MapNumber != b.MapNumber {
			stats.RejectMapNumber++
			continue
		}
		return &aMarkets[i], i
	}
	return nil, 0
}

func (m *Matcher) findCrypto(aMarkets []types.NormalizedMarket, buckets map[cryptoKey][]int, consumed map[int]bool, b types.NormalizedMarket, stats *Stats) (*types.NormalizedMarket, int) {
	key := cryptoKey{b.CryptoAsset, b.Direction}
	bucket := buckets[key]
	if len(bucket) == 0 {
		stats.UnmatchedVenueB++
		return nil, 0
	}
	for _, i := range bucket {
		if consumed[i] {
			continue
		}
		a := aMarkets[i]
		stats.CandidateChecks++

		if absDuration(a.ResolutionDT.Sub(b.ResolutionDT)) > m.cfg.CryptoTolerance {
			stats.RejectDateGap++
			continue
		}
		if !a.Threshold.Equal(b.Threshold) {
			stats.RejectThreshold++
			continue
		}
		return &aMarkets[i], i
	}
	return nil, 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
