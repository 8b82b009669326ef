package match

import (
	"testing"

	"github.com/shopspring/decimal"

	"crossarb/pkg/types"
)

func TestExtractAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"Bitcoin price at 3pm EDT?", "BTC", true},
		{"Will BTC close higher today?", "BTC", true},
		{"Ethereum above $3,000?", "ETH", true},
		{"ETH price", "ETH", true},
		{"Solana all time high", "SOL", true},
		{"XRP to $5?", "XRP", true},
		{"Dogecoin up or down", "DOGE", true},
		{"solid quarter for tech", "", false},
		{"weakest link eliminated", "", false},
		{"NBA finals winner", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractAsset(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ExtractAsset(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		want   types.Direction
		wantOK bool
	}{
		{"$75,750 or above", types.DirAbove, true},
		{"price above $100k", types.DirAbove, true},
		{"$3000 or more", types.DirAbove, true},
		{"at least $5", types.DirAbove, true},
		{">=$110,000", types.DirAbove, true},
		{"Will BTC close over $100k", types.DirAbove, true},
		{"exceed $5,000", types.DirAbove, true},
		{"exceeds $5,000", types.DirAbove, true},
		{"higher than $2.50", types.DirAbove, true},
		{"greater than $1m", types.DirAbove, true},
		{"reach $150,000", types.DirAbove, true},
		{"hits $75k", types.DirAbove, true},
		{"surpass $200", types.DirAbove, true},
		{"$75,750 or below", types.DirBelow, true},
		{"under $90k", types.DirBelow, true},
		{"$45 or less", types.DirBelow, true},
		{"lower than $40", types.DirBelow, true},
		{"drops beneath $30k", types.DirBelow, true},
		{"fall to $25,000", types.DirBelow, true},
		{"falls under $1", types.DirBelow, true},
		{"price at 3pm", "", false},
		{"moreover a market", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDirection(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseDirection(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDollarAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"$75,750 or above", "75750", true},
		{"$ 3,000", "3000", true},
		{"$110k or above", "110000", true},
		{"$1.5m market cap", "1500000", true},
		{"$2B valuation", "2000000000", true},
		{"$0.45", "0.45", true},
		{"no numbers here", "", false},
		{"75750 without sign", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDollarAmount(tt.text)
		if ok != tt.wantOK {
			t.Errorf("ParseDollarAmount(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		want, err := decimal.NewFromString(tt.want)
		if err != nil {
			t.Fatalf("bad want %q: %v", tt.want, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseDollarAmount(%q) = %s, want %s", tt.text, got, want)
		}
	}
}

func TestParseDollarAmountExactEquality(t *testing.T) {
	t.Parallel()

	a, _ := ParseDollarAmount("$75,750")
	b, _ := ParseDollarAmount("$75750.00")
	if !a.Equal(b) {
		t.Errorf("75,750 and 75750.00 parsed unequal: %s vs %s", a, b)
	}
}
