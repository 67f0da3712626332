package storage

import "errors"

var (
	// ErrPairExists indicates AddPair hit an already present (base, coin).
	ErrPairExists = errors.New("storage: pair already exists")
	// ErrNotFound indicates a lookup matched no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnknownColumn indicates an update named a column outside the schema.
	ErrUnknownColumn = errors.New("storage: unknown column")
	// ErrUnknownTable indicates an operation named an unowned table.
	ErrUnknownTable = errors.New("storage: unknown table")
)

// Pair is the identity row for an asset-denomination combination.
type Pair struct {
	Base        string
	Coin        string
	LastUpdated int64
}

// Ranking is the 1:1 ranking row of a pair. Zero values mean "no current
// data"; lower coinmarketcap and altrank are better, higher galaxyscore is
// better.
type Ranking struct {
	Base          string
	Coin          string
	CoinMarketCap int64
	AltRank       float64
	GalaxyScore   float64
}

// Price is the 1:1 price-change row of a pair.
type Price struct {
	Base          string
	Coin          string
	Change1h      float64
	Change24h     float64
	Change7d      float64
	Change14d     float64
	Change30d     float64
	Change200d    float64
	Change1y      float64
	Volatility24h float64
}
