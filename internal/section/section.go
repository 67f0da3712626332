package section

import (
	"fmt"
	"strings"
)

// Kind identifies what sort of data section a configuration block drives.
type Kind int

const (
	KindUnknown Kind = iota
	KindCMC
	KindCoinGecko
	KindAltRank
	KindGalaxyScore
	KindVolatility
)

// Bases is the closed set of quote currencies index and price rows may use.
var Bases = map[string]bool{
	"BNB": true,
	"BTC": true,
	"ETH": true,
	"USD": true,
}

// WildcardBase marks observations that apply to every base holding the coin.
const WildcardBase = "*"

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{"cmc_", KindCMC},
	{"cg_", KindCoinGecko},
	{"altrank_", KindAltRank},
	{"galaxyscore", KindGalaxyScore},
	{"volatility_", KindVolatility},
}

// Classify maps a section name to its kind by prefix. Names matching no
// known prefix classify as KindUnknown and are left alone by the collector.
func Classify(name string) Kind {
	lower := strings.ToLower(name)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.kind
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindCMC:
		return "cmc"
	case KindCoinGecko:
		return "coingecko"
	case KindAltRank:
		return "altrank"
	case KindGalaxyScore:
		return "galaxyscore"
	case KindVolatility:
		return "volatility"
	default:
		return "unknown"
	}
}

// IsIndex reports whether the kind is one of the two index feeds.
func (k Kind) IsIndex() bool {
	return k == KindCMC || k == KindCoinGecko
}

// ParseIndexProvider resolves the index-provider setting to a kind.
func ParseIndexProvider(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cmc", "coinmarketcap":
		return KindCMC, nil
	case "cg", "coingecko":
		return KindCoinGecko, nil
	default:
		return KindUnknown, fmt.Errorf("index-provider must be cmc or coingecko, got %q", value)
	}
}

// CanAddPairs reports whether sections of this kind may introduce new
// (base, coin) rows under the elected index provider. All other sections
// silently skip coins not already present.
func (k Kind) CanAddPairs(provider Kind) bool {
	return k.IsIndex() && k == provider
}

// WritesIndexRank reports whether sections of this kind own the canonical
// coinmarketcap rank column under the elected index provider.
func (k Kind) WritesIndexRank(provider Kind) bool {
	return k.IsIndex() && k == provider
}
