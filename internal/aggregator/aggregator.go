// Package aggregator merges volatility samples that share a coin symbol
// across several upstream lists into one averaged record per coin.
package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"

	"marketcollector/internal/fetcher"
)

// VolatilityField is the averaged column written to prices.volatility_24h.
const VolatilityField = "volatility"

// Flat maps coin symbol to its averaged numeric fields for one round.
type Flat map[string]map[string]float64

// Flatten groups raw samples by coin and averages every numeric field
// arithmetically across the group. Single-element groups pass through
// unchanged. Sums accumulate in decimals so repeated float addition does not
// drift the mean.
func Flatten(samples []fetcher.Observation) Flat {
	sums := make(map[string]map[string]decimal.Decimal)
	counts := make(map[string]map[string]int64)

	for _, sample := range samples {
		if sample.Kind != fetcher.VolatilitySample {
			continue
		}
		coin := sample.Coin
		if sums[coin] == nil {
			sums[coin] = make(map[string]decimal.Decimal)
			counts[coin] = make(map[string]int64)
		}
		for field, value := range sample.Fields {
			sums[coin][field] = sums[coin][field].Add(decimal.NewFromFloat(value))
			counts[coin][field]++
		}
	}

	flat := make(Flat, len(sums))
	for coin, fields := range sums {
		averaged := make(map[string]float64, len(fields))
		for field, sum := range fields {
			mean := sum.Div(decimal.NewFromInt(counts[coin][field]))
			averaged[field], _ = mean.Float64()
		}
		flat[coin] = averaged
	}
	return flat
}

// Volatility returns the averaged volatility column for a coin, or zero
// when the coin or the column is absent.
func (f Flat) Volatility(coin string) float64 {
	fields, ok := f[coin]
	if !ok {
		return 0
	}
	return fields[VolatilityField]
}

// FellOff lists coins present in the previous round but absent from the
// current one, sorted for deterministic processing. Their volatility must be
// reset so a coin that dropped from every source list stops reading as
// volatile on stale data.
func FellOff(previous, current Flat) []string {
	dropped := make([]string, 0)
	for coin := range previous {
		if _, ok := current[coin]; !ok {
			dropped = append(dropped, coin)
		}
	}
	sort.Strings(dropped)
	return dropped
}
