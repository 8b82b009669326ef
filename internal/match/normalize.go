// Package match turns normalized market rows from both venues into exclusive
// matched pairs, and owns the text normalization both venue normalizers share
// (team names, map numbers, crypto thresholds).
package match

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// teamStopwords are org-name filler tokens that differ between venue
// listings of the same team ("FaZe" vs "FaZe Esports").
var teamStopwords = map[string]bool{
	"team":    true,
	"esports": true,
	"gaming":  true,
	"fc":      true,
	"sc":      true,
	"the":     true,
}

// trailingNumber strips roster suffixes like "cloud9 2" -> "cloud9".
var trailingNumber = regexp.MustCompile(`\s+\d+$`)

// deaccent decomposes characters and drops combining marks, so "Dünya"
// and "Dunya" normalize to the same key.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTeamName reduces a venue's team spelling to a join key:
// lowercase, accents folded, ASCII punctuation stripped, filler tokens
// dropped, trailing roster numbers removed, remaining tokens concatenated
// without separators. The function is idempotent, so keys can be
// re-normalized safely.
func NormalizeTeamName(name string) string {
	if folded, _, err := transform.String(deaccent, name); err == nil {
		name = folded
	}
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if r < 128 && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			return -1
		}
		return r
	}, name)

	tokens := strings.Fields(name)
	kept := tokens[:0:len(tokens)]
	for _, tok := range tokens {
		if !teamStopwords[tok] {
			kept = append(kept, tok)
		}
	}
	// All tokens were filler: the "name" IS the filler words (something
	// like "the team"); keep the original tokens rather than erasing the
	// identity.
	if len(kept) == 0 {
		kept = tokens
	}

	joined := trailingNumber.ReplaceAllString(strings.Join(kept, " "), "")
	return strings.ReplaceAll(joined, " ", "")
}

// mapNumberRe matches "map 2" / "Game 3" but not "2.5 maps" or "over 3 maps":
// the word must be exactly map/game and the number must follow it.
var mapNumberRe = regexp.MustCompile(`(?i)\b(?:map|game)\s+(\d+)`)

// ExtractMapNumber pulls a map or game number out of free text. Returns
// (0, false) when the text does not pin the contract to a specific map.
func ExtractMapNumber(text string) (int, bool) {
	m := mapNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
