package venueb

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"crossarb/internal/match"
	"crossarb/pkg/types"
)

// Sport keyword → code, applied to question text, category, and series slug.
// Checked longest-keyword-first so "counter-strike" wins over "cs2".
var sportKeywords = []struct {
	keyword string
	code    string
}{
	{"counter-strike", "CS2"},
	{"counter strike", "CS2"},
	{"cs2", "CS2"},
	{"league of legends", "LOL"},
	{"lol", "LOL"},
	{"rocket league", "RL"},
	{"valorant", "VALORANT"},
	{"dota", "DOTA2"},
	{"nba", "NBA"},
	{"wnba", "WNBA"},
	{"nfl", "NFL"},
	{"nhl", "NHL"},
	{"mlb", "MLB"},
	{"basketball", "NBA"},
	{"hockey", "NHL"},
	{"baseball", "MLB"},
	{"ncaa basketball", "NCAAB"},
	{"college basketball", "NCAAB"},
	{"march madness", "NCAAB"},
	{"ncaab", "NCAAB"},
	{"ncaa football", "NCAAF"},
	{"college football", "NCAAF"},
	{"ncaaf", "NCAAF"},
	{"ncaa", "NCAAB"},
	{"soccer", "SOCCER"},
	{"football", "SOCCER"},
	{"premier league", "SOCCER"},
	{"champions league", "SOCCER"},
	{"mls", "SOCCER"},
	{"la liga", "SOCCER"},
	{"bundesliga", "SOCCER"},
	{"serie a", "SOCCER"},
	{"ligue 1", "SOCCER"},
}

func init() {
	sort.SliceStable(sportKeywords, func(i, j int) bool {
		return len(sportKeywords[i].keyword) > len(sportKeywords[j].keyword)
	})
}

var (
	// "Will <TEAM> win ..." single-team binary questions.
	singleWinnerRe = regexp.MustCompile(`(?i)^will\s+(.+?)\s+win\b`)
	// "<A> vs. <B>" anywhere in the question, used to recover the opponent.
	versusRe = regexp.MustCompile(`(?i)\bthe\s+(.+?)\s+vs\.?\s+(.+?)(?:\s+(?:game|match|series)|\s*\?|$)`)
)

type gammaSeries struct {
	Slug string `json:"slug"`
}

type gammaEvent struct {
	Slug       string        `json:"slug"`
	Ticker     string        `json:"ticker"`
	SeriesSlug string        `json:"seriesSlug"`
	Series     []gammaSeries `json:"series"`
}

// gammaRow is the subset of a Gamma market object the normalizer reads.
// outcomes and clobTokenIds arrive as stringified JSON arrays.
type gammaRow struct {
	ConditionID      string       `json:"conditionId"`
	Question         string       `json:"question"`
	EndDate          string       `json:"endDate"`
	EndDateIso       string       `json:"endDateIso"`
	Outcomes         string       `json:"outcomes"`
	ClobTokenIds     string       `json:"clobTokenIds"`
	SportsMarketType string       `json:"sportsMarketType"`
	Category         string       `json:"category"`
	Active           bool         `json:"active"`
	Closed           bool         `json:"closed"`
	NegRisk          bool         `json:"negRisk"`
	Events           []gammaEvent `json:"events"`
}

func (r gammaRow) seriesSlug() string {
	if len(r.Events) == 0 {
		return ""
	}
	ev := r.Events[0]
	if ev.SeriesSlug != "" {
		return ev.SeriesSlug
	}
	if len(ev.Series) > 0 && ev.Series[0].Slug != "" {
		return ev.Series[0].Slug
	}
	return ev.Ticker
}

// normalizeGamma converts one Gamma row into zero or more normalized
// markets. Team-outcome sports rows expand into one row per team.
func normalizeGamma(row gammaRow) []types.NormalizedMarket {
	if row.Closed || !row.Active {
		return nil
	}

	conditionID := strings.TrimSpace(row.ConditionID)
	question := strings.TrimSpace(row.Question)
	if conditionID == "" || question == "" {
		return nil
	}

	endDate := row.EndDate
	if endDate == "" {
		endDate = row.EndDateIso
	}
	resolutionDT, ok := parseEndDate(endDate)
	if !ok {
		return nil
	}

	outcomes := parseStringArray(row.Outcomes)
	tokenIDs := parseStringArray(row.ClobTokenIds)
	if len(outcomes) != 2 || len(tokenIDs) < 2 {
		return nil
	}

	sportsType := strings.ToLower(strings.TrimSpace(row.SportsMarketType))
	if sportsType == "moneyline" || sportsType == "child_moneyline" {
		return normalizeSportsRow(row, conditionID, question, resolutionDT, outcomes, tokenIDs, sportsType)
	}

	// Non-YES/NO outcomes with a detectable sport are moneylines the venue
	// did not tag.
	if !isYesNo(outcomes) {
		if _, ok := detectSport(row, question); ok {
			return normalizeSportsRow(row, conditionID, question, resolutionDT, outcomes, tokenIDs, "moneyline")
		}
		return nil
	}

	// YES/NO question that still names a winner is a single-team sports
	// market; otherwise try crypto.
	if _, ok := detectSport(row, question); ok {
		return normalizeYesNoSports(row, conditionID, question, resolutionDT, outcomes, tokenIDs)
	}
	if m, ok := normalizeCryptoRow(conditionID, question, resolutionDT, outcomes, tokenIDs); ok {
		return []types.NormalizedMarket{m}
	}
	return nil
}

// normalizeSportsRow expands a team-outcome market into one normalized row
// per team: the team's win token is that row's YES side and the opponent's
// win token its NO side.
func normalizeSportsRow(row gammaRow, conditionID, question string, resolutionDT time.Time, outcomes, tokenIDs []string, sportsType string) []types.NormalizedMarket {
	if isYesNo(outcomes) {
		return normalizeYesNoSports(row, conditionID, question, resolutionDT, outcomes, tokenIDs)
	}

	sport, ok := detectSport(row, question)
	if !ok {
		sport = "SPORTS"
	}

	subtype := types.SubtypeSeries
	if sportsType == "child_moneyline" {
		subtype = types.SubtypeMap
	}
	mapNum := 0
	if n, ok := match.ExtractMapNumber(question); ok {
		mapNum = n
	}

	var results []types.NormalizedMarket
	for i, teamRaw := range outcomes {
		teamRaw = strings.TrimSpace(teamRaw)
		lower := strings.ToLower(teamRaw)
		if teamRaw == "" || lower == "draw" || lower == "tie" || lower == "no contest" {
			continue
		}

		oppIdx := 1 - i
		team := match.NormalizeTeamName(teamRaw)
		opponent := match.NormalizeTeamName(outcomes[oppIdx])
		if team == "" || tokenIDs[i] == "" || tokenIDs[oppIdx] == "" {
			continue
		}

		results = append(results, types.NormalizedMarket{
			Venue:        types.VenueB,
			PlatformID:   conditionID + "_" + team,
			AssetClass:   types.ClassSports,
			Sport:        sport,
			Team:         team,
			Opponent:     opponent,
			SportSubtype: subtype,
			MapNumber:    mapNum,
			ResolutionDT: resolutionDT,
			YesToken:     tokenIDs[i],
			NoToken:      tokenIDs[oppIdx],
			RawTitle:     question,
		})
	}
	return results
}

// normalizeYesNoSports handles single-team binary questions like "Will
// Austin FC win the Austin FC vs. LA Galaxy match?". Draw and tie markets
// have no venue-A counterpart and are skipped.
func normalizeYesNoSports(row gammaRow, conditionID, question string, resolutionDT time.Time, outcomes, tokenIDs []string) []types.NormalizedMarket {
	qLower := strings.ToLower(question)
	for _, kw := range []string{"draw", "tie", "end in a"} {
		if strings.Contains(qLower, kw) {
			return nil
		}
	}

	m := singleWinnerRe.FindStringSubmatch(question)
	if m == nil {
		return nil
	}
	team := match.NormalizeTeamName(m[1])
	if team == "" {
		return nil
	}

	sport, ok := detectSport(row, question)
	if !ok {
		sport = "SPORTS"
	}

	// Opponent is only known when the question carries a "vs" clause; the
	// matcher demands it, so rows without one never pair.
	opponent := ""
	if vs := versusRe.FindStringSubmatch(question); vs != nil {
		a := match.NormalizeTeamName(vs[1])
		b := match.NormalizeTeamName(vs[2])
		switch team {
		case a:
			opponent = b
		case b:
			opponent = a
		}
	}

	yesID, noID := yesNoTokenIDs(outcomes, tokenIDs)
	if yesID == "" || noID == "" {
		return nil
	}

	return []types.NormalizedMarket{{
		Venue:        types.VenueB,
		PlatformID:   conditionID + "_" + team,
		AssetClass:   types.ClassSports,
		Sport:        sport,
		Team:         team,
		Opponent:     opponent,
		SportSubtype: types.SubtypeSeries,
		ResolutionDT: resolutionDT,
		YesToken:     yesID,
		NoToken:      noID,
		RawTitle:     question,
	}}
}

func normalizeCryptoRow(conditionID, question string, resolutionDT time.Time, outcomes, tokenIDs []string) (types.NormalizedMarket, bool) {
	asset, ok := match.ExtractAsset(question)
	if !ok {
		return types.NormalizedMarket{}, false
	}
	direction, ok := match.ParseDirection(question)
	if !ok {
		return types.NormalizedMarket{}, false
	}
	threshold, ok := match.ParseDollarAmount(question)
	if !ok {
		return types.NormalizedMarket{}, false
	}

	yesID, noID := yesNoTokenIDs(outcomes, tokenIDs)
	if yesID == "" || noID == "" {
		return types.NormalizedMarket{}, false
	}

	return types.NormalizedMarket{
		Venue:        types.VenueB,
		PlatformID:   conditionID,
		AssetClass:   types.ClassCrypto,
		CryptoAsset:  asset,
		Direction:    direction,
		Threshold:    threshold,
		ResolutionDT: resolutionDT,
		YesToken:     yesID,
		NoToken:      noID,
		RawTitle:     question,
	}, true
}

// detectSport cascades question text → category → series slug.
func detectSport(row gammaRow, question string) (string, bool) {
	if code, ok := sportFromText(question); ok {
		return code, true
	}
	if code, ok := sportFromText(row.Category); ok {
		return code, true
	}
	slug := strings.ReplaceAll(row.seriesSlug(), "-", " ")
	return sportFromText(slug)
}

func sportFromText(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, e := range sportKeywords {
		if strings.Contains(t, e.keyword) {
			return e.code, true
		}
	}
	return "", false
}

func isYesNo(outcomes []string) bool {
	if len(outcomes) != 2 {
		return false
	}
	set := map[string]bool{
		strings.ToLower(outcomes[0]): true,
		strings.ToLower(outcomes[1]): true,
	}
	return set["yes"] && set["no"]
}

// yesNoTokenIDs maps outcome labels to their token ids, defaulting to
// positional order when the labels are unrecognized.
func yesNoTokenIDs(outcomes, tokenIDs []string) (yesID, noID string) {
	yesID, noID = tokenIDs[0], tokenIDs[1]
	for i, o := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		switch strings.ToLower(o) {
		case "yes", "true", "1":
			yesID = tokenIDs[i]
		case "no", "false", "0":
			noID = tokenIDs[i]
		}
	}
	return yesID, noID
}

// parseStringArray decodes a stringified JSON array ("[\"Yes\",\"No\"]").
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseEndDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
