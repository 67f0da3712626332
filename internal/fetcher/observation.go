package fetcher

import (
	"context"

	"marketcollector/internal/config"
)

// ObservationKind tags the variant of an observation.
type ObservationKind int

const (
	// IndexSnapshot carries an index rank plus percent price changes.
	IndexSnapshot ObservationKind = iota
	// RankingUpdate carries altrank/galaxyscore for a coin across all bases.
	RankingUpdate
	// VolatilitySample carries raw numeric fields from one volatility list row.
	VolatilitySample
)

// Observation is a normalized record produced by an adapter, not yet
// written to the store. Only the fields its kind reads are populated.
type Observation struct {
	Base string
	Coin string
	Kind ObservationKind

	// IndexSnapshot. Changes is keyed by prices column name and carries
	// exactly the horizons the provider observed, so committing never
	// clobbers columns another provider owns.
	RankIndex int
	Changes   map[string]float64

	// RankingUpdate.
	AltRank     float64
	GalaxyScore float64

	// VolatilitySample, raw numeric columns keyed by upstream field name.
	Fields map[string]float64
}

// Adapter turns one upstream response into a normalized observation batch.
// Failures are reported as *UpstreamError so the engine can pick a back-off.
type Adapter interface {
	Fetch(ctx context.Context, sec config.Section) ([]Observation, error)
}
