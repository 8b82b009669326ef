// Package verify gates CS2 executions on a public match-schedule page.
// Liquipedia allows bots with a descriptive User-Agent and a modest request
// rate; the page and per-pair verdicts are cached for the configured TTL so
// the tick loop makes at most one fetch per window.
package verify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"crossarb/internal/config"
	"crossarb/pkg/types"
)

const (
	matchesPath    = "/counterstrike/Matches"
	fuzzyThreshold = 0.72
	userAgent      = "crossarb/1.0 (market research; respects rate limits)"
)

// Verdict is the outcome of one schedule check.
type Verdict int

const (
	// VerdictUnknown means the page was unavailable or the sport is not
	// covered. The trade is allowed with a warning.
	VerdictUnknown Verdict = iota
	// VerdictConfirmed means both teams appear in the upcoming matches.
	VerdictConfirmed
	// VerdictMismatch means at least one team is missing from the schedule.
	VerdictMismatch
)

func (v Verdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

type pairEntry struct {
	verdict Verdict
	at      time.Time
}

// Verifier checks opportunity team pairs against the schedule page. It
// implements the executor's gate interface.
type Verifier struct {
	client *resty.Client
	cfg    config.VerifyConfig
	logger *slog.Logger

	mu        sync.Mutex
	teams     map[string]struct{}
	fetchedAt time.Time
	pairs     map[string]pairEntry

	now func() time.Time
}

// New builds a verifier against cfg.BaseURL.
func New(cfg config.VerifyConfig, logger *slog.Logger) *Verifier {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(8*time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	return &Verifier{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "verify"),
		pairs:  make(map[string]pairEntry),
		now:    time.Now,
	}
}

// Allow reports whether the opportunity may be executed. Only CS2 pairs are
// checked; everything else passes. An unavailable schedule page allows the
// trade with a warning, a confirmed mismatch skips it.
func (v *Verifier) Allow(ctx context.Context, o types.Opportunity) (bool, string) {
	m := o.Pair.A
	if !strings.EqualFold(m.Sport, "CS2") || m.Team == "" || m.Opponent == "" {
		return true, ""
	}

	verdict := v.check(ctx, m.Team, m.Opponent)
	switch verdict {
	case VerdictConfirmed:
		return true, ""
	case VerdictMismatch:
		if v.cfg.SkipUnverified {
			return false, "teams not in upcoming schedule"
		}
		v.logger.Warn("schedule mismatch, executing anyway",
			"team", m.Team, "opponent", m.Opponent)
		return true, ""
	default:
		v.logger.Warn("schedule unavailable, allowing unverified",
			"team", m.Team, "opponent", m.Opponent)
		return true, ""
	}
}

// check resolves the verdict for one team pair, consulting caches first.
func (v *Verifier) check(ctx context.Context, team, opponent string) Verdict {
	key := strings.ToLower(team) + "|" + strings.ToLower(opponent)
	now := v.now()

	v.mu.Lock()
	if entry, ok := v.pairs[key]; ok && now.Sub(entry.at) < v.cfg.CacheTTL {
		v.mu.Unlock()
		return entry.verdict
	}
	v.mu.Unlock()

	teams := v.teamSet(ctx, now)

	var verdict Verdict
	if teams == nil {
		verdict = VerdictUnknown
	} else if fuzzyFind(team, teams) && fuzzyFind(opponent, teams) {
		verdict = VerdictConfirmed
	} else {
		verdict = VerdictMismatch
	}

	// Unknown verdicts are cached too: a down page should not trigger a
	// fetch attempt on every tick.
	v.mu.Lock()
	v.pairs[key] = pairEntry{verdict: verdict, at: now}
	v.mu.Unlock()
	return verdict
}

// teamSet returns the cached upcoming-team set, refreshing it when stale.
// nil means the page is unavailable.
func (v *Verifier) teamSet(ctx context.Context, now time.Time) map[string]struct{} {
	v.mu.Lock()
	if v.teams != nil && now.Sub(v.fetchedAt) < v.cfg.CacheTTL {
		teams := v.teams
		v.mu.Unlock()
		return teams
	}
	v.mu.Unlock()

	teams := v.fetch(ctx)
	if teams != nil {
		v.mu.Lock()
		v.teams = teams
		v.fetchedAt = now
		v.mu.Unlock()
	}
	return teams
}

func (v *Verifier) fetch(ctx context.Context) map[string]struct{} {
	resp, err := v.client.R().SetContext(ctx).Get(matchesPath)
	if err != nil {
		v.logger.Warn("schedule fetch failed", "error", err)
		return nil
	}
	if resp.StatusCode() != 200 {
		v.logger.Warn("schedule page returned error", "status", resp.StatusCode())
		return nil
	}

	teams := extractTeams(resp.String())
	if len(teams) == 0 {
		v.logger.Warn("schedule page parsed but no team names found")
		return nil
	}
	v.logger.Info("schedule refreshed", "teams", len(teams))
	return teams
}

// extractTeams pulls team display names out of the match listing markup.
// Names live in the first span under .team-left/.team-right cells and in
// .matchTeamName/.team-template-text elements. The scan works on the token
// stream rather than a parsed tree: a tree-building parse relocates table
// cells that appear outside a full table context and their class attributes
// are lost with them.
func extractTeams(page string) map[string]struct{} {
	teams := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		switch strings.ToUpper(name) {
		case "", "TBD", "TBA":
			return
		}
		teams[name] = struct{}{}
	}

	z := html.NewTokenizer(strings.NewReader(page))
	var (
		text      strings.Builder
		depth     int  // nesting inside the element being read
		reading   bool // inside a name-bearing element
		awaitSpan bool // saw a team cell, name is in its first span
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return teams
		case html.StartTagToken:
			tok := z.Token()
			classes := tokenClasses(tok)
			switch {
			case reading:
				depth++
			case hasClass(classes, "matchTeamName") || hasClass(classes, "team-template-text"):
				reading = true
				depth = 1
				text.Reset()
			case hasClass(classes, "team-left") || hasClass(classes, "team-right"):
				awaitSpan = true
			case awaitSpan && tok.Data == "span":
				reading = true
				depth = 1
				text.Reset()
				awaitSpan = false
			}
		case html.EndTagToken:
			tok := z.Token()
			if reading {
				depth--
				if depth == 0 {
					add(text.String())
					reading = false
				}
			} else if awaitSpan && tok.Data == "td" {
				// Team cell closed without a span; nothing to read.
				awaitSpan = false
			}
		case html.TextToken:
			if reading {
				text.Write(z.Text())
			}
		}
	}
}

func tokenClasses(tok html.Token) []string {
	for _, attr := range tok.Attr {
		if attr.Key == "class" {
			return strings.Fields(attr.Val)
		}
	}
	return nil
}

func hasClass(classes []string, want string) bool {
	for _, c := range classes {
		if c == want {
			return true
		}
	}
	return false
}

// fuzzyFind reports whether name matches any scheduled team, either as a
// substring in one direction or the other (short aliases) or above the
// similarity threshold.
func fuzzyFind(name string, teams map[string]struct{}) bool {
	nameL := strings.ToLower(strings.TrimSpace(name))
	if nameL == "" {
		return false
	}
	for t := range teams {
		tL := strings.ToLower(t)
		if strings.Contains(tL, nameL) || strings.Contains(nameL, tL) {
			return true
		}
		if similarity(nameL, tL) >= fuzzyThreshold {
			return true
		}
	}
	return false
}

// similarity is 2*M/T where M is the total length of the matching blocks
// (longest common substring, recursively on both remainders) and T the
// combined length.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	m := matchingChars(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonBlock(a, b string) (ai, bi, size int) {
	// lengths[j] tracks the common suffix length ending at b[j-1] for the
	// previous a row.
	lengths := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		prev := 0
		for j := 0; j < len(b); j++ {
			cur := lengths[j+1]
			if a[i] == b[j] {
				lengths[j+1] = prev + 1
				if lengths[j+1] > size {
					size = lengths[j+1]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				lengths[j+1] = 0
			}
			prev = cur
		}
	}
	return ai, bi, size
}
