package match

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"crossarb/pkg/types"
)

// cryptoAssets maps title keywords to canonical symbols. Longer keywords are
// redundant with their symbol but kept so either spelling classifies.
var cryptoAssets = []struct {
	keyword string
	symbol  string
}{
	{"bitcoin", "BTC"},
	{"btc", "BTC"},
	{"ethereum", "ETH"},
	{"eth", "ETH"},
	{"solana", "SOL"},
	{"sol", "SOL"},
	{"dogecoin", "DOGE"},
	{"doge", "DOGE"},
	{"cardano", "ADA"},
	{"ada", "ADA"},
	// Bare "link" is too generic for question text; only the full name
	// classifies as LINK.
	{"chainlink", "LINK"},
	{"litecoin", "LTC"},
	{"ltc", "LTC"},
	{"avalanche", "AVAX"},
	{"avax", "AVAX"},
	{"xrp", "XRP"},
	{"shiba", "SHIB"},
	{"shib", "SHIB"},
}

var assetRe = func() *regexp.Regexp {
	kws := make([]string, len(cryptoAssets))
	for i, a := range cryptoAssets {
		kws[i] = a.keyword
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(kws, "|") + `)\b`)
}()

// ExtractAsset finds the first crypto asset keyword in text and returns its
// canonical symbol.
func ExtractAsset(text string) (string, bool) {
	m := assetRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	kw := strings.ToLower(m[1])
	for _, a := range cryptoAssets {
		if a.keyword == kw {
			return a.symbol, true
		}
	}
	return "", false
}

var (
	aboveRe = regexp.MustCompile(`(?i)\b(above|over|exceeds?|higher|more|greater|reach(es)?|hits?|surpass)\b|\bat least\b|≥|>=`)
	belowRe = regexp.MustCompile(`(?i)\b(below|under|less|lower|beneath|falls?|drops?)\b|\bat most\b|≤|<=`)
)

// ParseDirection classifies threshold wording. Returns false when the text
// names neither side; such markets are skipped rather than guessed.
func ParseDirection(text string) (types.Direction, bool) {
	switch {
	case aboveRe.MatchString(text):
		return types.DirAbove, true
	case belowRe.MatchString(text):
		return types.DirBelow, true
	default:
		return "", false
	}
}

// dollarRe captures "$75,750", "$0.45", "$110k" and similar forms.
var dollarRe = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)\s*([kKmMbB])?`)

// ParseDollarAmount extracts the first dollar amount from text as an exact
// decimal, applying k/m/b suffix multipliers. Decimals keep threshold
// comparison exact: "$75,750" and "$75750.00" must match.
func ParseDollarAmount(text string) (decimal.Decimal, bool) {
	m := dollarRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		d = d.Mul(decimal.NewFromInt(1_000))
	case "m":
		d = d.Mul(decimal.NewFromInt(1_000_000))
	case "b":
		d = d.Mul(decimal.NewFromInt(1_000_000_000))
	}
	return d, true
}
