package venueb

import (
	"testing"
	"time"

	"crossarb/pkg/types"
)

func moneylineRow() gammaRow {
	return gammaRow{
		ConditionID:      "0xcond1",
		Question:         "M80 vs. Voca (CS2 Major)",
		EndDate:          time.Now().UTC().Add(12 * time.Hour).Format(time.RFC3339),
		Outcomes:         `["M80","Voca"]`,
		ClobTokenIds:     `["111","222"]`,
		SportsMarketType: "moneyline",
		Active:           true,
	}
}

func TestNormalizeMoneylineExpandsPerTeam(t *testing.T) {
	t.Parallel()

	rows := normalizeGamma(moneylineRow())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.PlatformID != "0xcond1_m80" {
		t.Fatalf("platform id = %s", first.PlatformID)
	}
	if first.Team != "m80" || first.Opponent != "voca" {
		t.Fatalf("team/opponent = %s/%s", first.Team, first.Opponent)
	}
	if first.Sport != "CS2" {
		t.Fatalf("sport = %s, want CS2", first.Sport)
	}
	if first.SportSubtype != types.SubtypeSeries {
		t.Fatalf("subtype = %s", first.SportSubtype)
	}
	if first.YesToken != "111" || first.NoToken != "222" {
		t.Fatalf("tokens = %s/%s", first.YesToken, first.NoToken)
	}

	second := rows[1]
	if second.Team != "voca" || second.Opponent != "m80" {
		t.Fatalf("second team/opponent = %s/%s", second.Team, second.Opponent)
	}
	// The mirror row trades the opposite token pair.
	if second.YesToken != "222" || second.NoToken != "111" {
		t.Fatalf("second tokens = %s/%s", second.YesToken, second.NoToken)
	}
}

func TestNormalizeChildMoneylineIsMapSubtype(t *testing.T) {
	t.Parallel()

	row := moneylineRow()
	row.Question = "M80 vs. Voca Map 2 Winner"
	row.SportsMarketType = "child_moneyline"

	rows := normalizeGamma(row)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].SportSubtype != types.SubtypeMap {
		t.Fatalf("subtype = %s, want map", rows[0].SportSubtype)
	}
	if rows[0].MapNumber != 2 {
		t.Fatalf("map number = %d, want 2", rows[0].MapNumber)
	}
}

func TestNormalizeSkipsDrawOutcome(t *testing.T) {
	t.Parallel()

	row := moneylineRow()
	row.Question = "Arsenal vs. Draw in the Premier League?"
	row.Outcomes = `["Arsenal","Draw"]`

	rows := normalizeGamma(row)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Team != "arsenal" {
		t.Fatalf("team = %s", rows[0].Team)
	}
}

func TestNormalizeYesNoSportsMarket(t *testing.T) {
	t.Parallel()

	row := gammaRow{
		ConditionID:  "0xcond2",
		Question:     "Will Austin FC win the Austin FC vs. LA Galaxy match?",
		EndDate:      time.Now().UTC().Add(6 * time.Hour).Format(time.RFC3339),
		Outcomes:     `["Yes","No"]`,
		ClobTokenIds: `["901","902"]`,
		Category:     "Soccer",
		Active:       true,
	}

	rows := normalizeGamma(row)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	m := rows[0]
	if m.Team != "austin" {
		t.Fatalf("team = %s, want austin", m.Team)
	}
	if m.Opponent != "lagalaxy" {
		t.Fatalf("opponent = %s, want lagalaxy", m.Opponent)
	}
	if m.Sport != "SOCCER" {
		t.Fatalf("sport = %s, want SOCCER", m.Sport)
	}
	if m.YesToken != "901" || m.NoToken != "902" {
		t.Fatalf("tokens = %s/%s", m.YesToken, m.NoToken)
	}
}

func TestNormalizeSkipsDrawQuestions(t *testing.T) {
	t.Parallel()

	row := gammaRow{
		ConditionID:  "0xcond3",
		Question:     "Will the Arsenal vs. Chelsea match end in a draw?",
		EndDate:      time.Now().UTC().Add(6 * time.Hour).Format(time.RFC3339),
		Outcomes:     `["Yes","No"]`,
		ClobTokenIds: `["1","2"]`,
		Category:     "Soccer",
		Active:       true,
	}
	if rows := normalizeGamma(row); rows != nil {
		t.Fatalf("draw market normalized: %+v", rows)
	}
}

func TestNormalizeCryptoMarket(t *testing.T) {
	t.Parallel()

	row := gammaRow{
		ConditionID:  "0xcond4",
		Question:     "Will Bitcoin be above $90,000 on August 30?",
		EndDate:      "2026-08-30T12:00:00Z",
		Outcomes:     `["Yes","No"]`,
		ClobTokenIds: `["31","32"]`,
		Active:       true,
	}

	rows := normalizeGamma(row)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	m := rows[0]
	if m.AssetClass != types.ClassCrypto {
		t.Fatalf("class = %s", m.AssetClass)
	}
	if m.CryptoAsset != "BTC" {
		t.Fatalf("asset = %s", m.CryptoAsset)
	}
	if m.Direction != types.DirAbove {
		t.Fatalf("direction = %s", m.Direction)
	}
	if m.Threshold.IntPart() != 90000 {
		t.Fatalf("threshold = %s", m.Threshold)
	}
	if m.PlatformID != "0xcond4" {
		t.Fatalf("platform id = %s", m.PlatformID)
	}
}

func TestNormalizeOutcomeLabelsPickTokens(t *testing.T) {
	t.Parallel()

	row := gammaRow{
		ConditionID:  "0xcond5",
		Question:     "Will Ethereum be below $3,400 on September 1?",
		EndDate:      "2026-09-01T12:00:00Z",
		Outcomes:     `["No","Yes"]`,
		ClobTokenIds: `["41","42"]`,
		Active:       true,
	}

	rows := normalizeGamma(row)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].YesToken != "42" || rows[0].NoToken != "41" {
		t.Fatalf("tokens = %s/%s, want 42/41", rows[0].YesToken, rows[0].NoToken)
	}
}

func TestNormalizeRejectsUnusableRows(t *testing.T) {
	t.Parallel()

	base := moneylineRow()

	cases := map[string]func(r *gammaRow){
		"closed":           func(r *gammaRow) { r.Closed = true },
		"inactive":         func(r *gammaRow) { r.Active = false },
		"no condition id":  func(r *gammaRow) { r.ConditionID = " " },
		"no end date":      func(r *gammaRow) { r.EndDate = "" },
		"bad end date":     func(r *gammaRow) { r.EndDate = "soon" },
		"three outcomes":   func(r *gammaRow) { r.Outcomes = `["A","B","Draw"]` },
		"malformed tokens": func(r *gammaRow) { r.ClobTokenIds = `not json` },
		"single token":     func(r *gammaRow) { r.ClobTokenIds = `["1"]` },
		"no sport no asset": func(r *gammaRow) {
			r.Question = "Will it rain tomorrow?"
			r.Outcomes = `["Yes","No"]`
			r.SportsMarketType = ""
		},
	}
	for name, mutate := range cases {
		row := base
		mutate(&row)
		if rows := normalizeGamma(row); rows != nil {
			t.Errorf("%s: normalized to %+v", name, rows)
		}
	}
}

func TestDetectSportCascade(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		row  gammaRow
		want string
		ok   bool
	}{
		{
			name: "question text",
			row:  gammaRow{Question: "Sentinels vs. Fnatic Valorant Champions"},
			want: "VALORANT", ok: true,
		},
		{
			name: "category fallback",
			row:  gammaRow{Question: "Lakers vs. Celtics", Category: "NBA"},
			want: "NBA", ok: true,
		},
		{
			name: "series slug fallback",
			row: gammaRow{
				Question: "Hurricanes vs. Panthers",
				Events:   []gammaEvent{{SeriesSlug: "nhl-playoffs"}},
			},
			want: "NHL", ok: true,
		},
		{
			name: "series list when slug missing",
			row: gammaRow{
				Question: "Dortmund vs. Leipzig",
				Events:   []gammaEvent{{Series: []gammaSeries{{Slug: "bundesliga"}}}},
			},
			want: "SOCCER", ok: true,
		},
		{
			name: "no signal",
			row:  gammaRow{Question: "Which film wins best picture?"},
			ok:   false,
		},
	}

	for _, tc := range cases {
		got, ok := detectSport(tc.row, tc.row.Question)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("%s: got (%s, %v), want (%s, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUntaggedTeamOutcomesTreatedAsMoneyline(t *testing.T) {
	t.Parallel()

	row := moneylineRow()
	row.SportsMarketType = ""
	rows := normalizeGamma(row)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].AssetClass != types.ClassSports {
		t.Fatalf("class = %s", rows[0].AssetClass)
	}
}

func TestParseEndDateFormats(t *testing.T) {
	t.Parallel()

	got, ok := parseEndDate("2026-09-01T15:30:00")
	if !ok {
		t.Fatal("naive timestamp rejected")
	}
	want := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	if _, ok := parseEndDate(""); ok {
		t.Fatal("empty end date accepted")
	}
}
