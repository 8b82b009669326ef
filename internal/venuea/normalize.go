package venuea

import (
	"regexp"
	"strings"
	"time"

	"crossarb/internal/match"
	"crossarb/pkg/types"
)

// Series-ticker prefix → sport code. Ordered longest-prefix-first so
// KXCS2MAP resolves before KXCS2.
var sportSeries = []struct {
	prefix string
	sport  string
}{
	{"KXVALORANTMAP", "VALORANT"},
	{"KXROCKETLEAGUE", "RL"},
	{"KXDOTA2GAME", "DOTA2"},
	{"KXVALORANT", "VALORANT"},
	{"KXCS2GAME", "CS2"},
	{"KXDOTA2MAP", "DOTA2"},
	{"KXLOLGAME", "LOL"},
	{"KXVALGAME", "VALORANT"},
	{"KXCS2MAP", "CS2"},
	{"KXLOLMAP", "LOL"},
	{"KXLOLWIN", "LOL"},
	{"KXNBAWIN", "NBA"},
	{"KXMLBWIN", "MLB"},
	{"KXNHLWIN", "NHL"},
	{"KXNFLWIN", "NFL"},
	{"KXSOCCER", "SOCCER"},
	{"KXLALIGA", "SOCCER"},
	{"KXSERIEA", "SOCCER"},
	{"KXDOTA2", "DOTA2"},
	{"KXBUND", "SOCCER"},
	{"KXCS2", "CS2"},
	{"KXLOL", "LOL"},
	{"KXNBA", "NBA"},
	{"KXMLB", "MLB"},
	{"KXNHL", "NHL"},
	{"KXNFL", "NFL"},
	{"KXUCL", "SOCCER"},
	{"KXEPL", "SOCCER"},
	{"KXMLS", "SOCCER"},
	{"KXRL", "RL"},
}

// Prefixes whose contracts settle a single map or game, not the whole series.
var mapSeriesPrefixes = []string{
	"KXCS2MAP", "KXLOLMAP", "KXVALORANTMAP", "KXDOTA2MAP",
}

var (
	// "the M80 vs. Voca CS2 match" — team names may contain spaces.
	bothTeamsRe = regexp.MustCompile(`(?i)the\s+(.+?)\s+vs\.?\s+(.+?)\s+(?:cs2|nba|nfl|nhl|mlb|lol|valorant|dota|rocket\s*league|soccer|game|match|series)`)
	// "the X vs. Y" at end of question, fallback form.
	bothTeamsTailRe = regexp.MustCompile(`(?i)the\s+(.+?)\s+vs\.?\s+(.+?)(?:\s*\?|$)`)
	// "Will <TEAM> win ..." fallback when yes_sub_title is missing.
	winnerRe = regexp.MustCompile(`(?i)^Will\s+(.+?)\s+win\s+`)
)

// sportFor returns the sport code for a market, checking series_ticker first
// and falling back to the market ticker itself.
func sportFor(seriesTicker, ticker string) (string, bool) {
	for _, s := range []string{strings.ToUpper(seriesTicker), strings.ToUpper(ticker)} {
		if s == "" {
			continue
		}
		for _, e := range sportSeries {
			if strings.HasPrefix(s, e.prefix) {
				return e.sport, true
			}
		}
	}
	return "", false
}

func subtypeFor(seriesTicker string) types.Subtype {
	s := strings.ToUpper(seriesTicker)
	for _, prefix := range mapSeriesPrefixes {
		if strings.HasPrefix(s, prefix) {
			return types.SubtypeMap
		}
	}
	return types.SubtypeSeries
}

// marketRow is the subset of the venue's market object we read.
type marketRow struct {
	Ticker                 string `json:"ticker"`
	Title                  string `json:"title"`
	Subtitle               string `json:"subtitle"`
	YesSubTitle            string `json:"yes_sub_title"`
	EventTicker            string `json:"event_ticker"`
	SeriesTicker           string `json:"series_ticker"`
	ExpectedExpirationTime string `json:"expected_expiration_time"`
}

// normalizeMarket converts one raw market row. Returns false for rows that
// are unparseable or belong to neither supported asset class.
func normalizeMarket(row marketRow) (types.NormalizedMarket, bool) {
	ticker := strings.TrimSpace(row.Ticker)
	title := strings.TrimSpace(row.Title)
	if ticker == "" || title == "" {
		return types.NormalizedMarket{}, false
	}

	resolutionDT, ok := parseExpiry(row.ExpectedExpirationTime)
	if !ok {
		return types.NormalizedMarket{}, false
	}

	// Sports first: the series-ticker prefix check is cheap and decisive.
	if sport, ok := sportFor(row.SeriesTicker, ticker); ok {
		return normalizeSports(row, ticker, title, resolutionDT, sport)
	}
	return normalizeCrypto(row, ticker, title, resolutionDT)
}

func normalizeSports(row marketRow, ticker, title string, resolutionDT time.Time, sport string) (types.NormalizedMarket, bool) {
	teamRaw := strings.TrimSpace(row.YesSubTitle)
	if teamRaw == "" {
		if m := winnerRe.FindStringSubmatch(title); m != nil {
			teamRaw = strings.TrimSpace(m[1])
		}
	}
	if teamRaw == "" {
		return types.NormalizedMarket{}, false
	}

	teamA, teamB, ok := extractBothTeams(title)
	if !ok {
		// Opponent is required for matching.
		return types.NormalizedMarket{}, false
	}

	team := match.NormalizeTeamName(teamRaw)
	var opponentRaw string
	switch team {
	case match.NormalizeTeamName(teamA):
		opponentRaw = teamB
	case match.NormalizeTeamName(teamB):
		opponentRaw = teamA
	default:
		// Our team matched neither side cleanly. Pick whichever side does
		// not contain our team's name.
		if strings.Contains(strings.ToLower(teamA), strings.ToLower(teamRaw)) {
			opponentRaw = teamB
		} else {
			opponentRaw = teamA
		}
	}

	mapNum := 0
	if n, ok := match.ExtractMapNumber(title); ok {
		mapNum = n
	}

	return types.NormalizedMarket{
		Venue:        types.VenueA,
		PlatformID:   ticker,
		AssetClass:   types.ClassSports,
		Sport:        sport,
		Team:         team,
		Opponent:     match.NormalizeTeamName(opponentRaw),
		SportSubtype: subtypeFor(row.SeriesTicker),
		MapNumber:    mapNum,
		ResolutionDT: resolutionDT,
		YesToken:     ticker,
		NoToken:      ticker,
		RawTitle:     title,
	}, true
}

func normalizeCrypto(row marketRow, ticker, title string, resolutionDT time.Time) (types.NormalizedMarket, bool) {
	// Direction and threshold usually live in the subtitle ("$75,750 or
	// above"); parse over the concatenated question text.
	text := strings.TrimSpace(title + " " + row.Subtitle + " " + row.YesSubTitle)

	asset, ok := match.ExtractAsset(text)
	if !ok {
		return types.NormalizedMarket{}, false
	}
	direction, ok := match.ParseDirection(text)
	if !ok {
		return types.NormalizedMarket{}, false
	}
	threshold, ok := match.ParseDollarAmount(text)
	if !ok {
		return types.NormalizedMarket{}, false
	}

	return types.NormalizedMarket{
		Venue:        types.VenueA,
		PlatformID:   ticker,
		AssetClass:   types.ClassCrypto,
		CryptoAsset:  asset,
		Direction:    direction,
		Threshold:    threshold,
		ResolutionDT: resolutionDT,
		YesToken:     ticker,
		NoToken:      ticker,
		RawTitle:     title,
	}, true
}

func extractBothTeams(title string) (string, string, bool) {
	for _, re := range []*regexp.Regexp{bothTeamsRe, bothTeamsTailRe} {
		if m := re.FindStringSubmatch(title); m != nil {
			a := strings.TrimSpace(m[1])
			b := strings.TrimSpace(m[2])
			if a != "" && b != "" {
				return a, b, true
			}
		}
	}
	return "", "", false
}

// parseExpiry accepts the venue's ISO 8601 expiration timestamps, with or
// without a zone designator. Naive timestamps are treated as UTC.
func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
