package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"marketcollector/internal/config"
)

// VolatilityOptions parameterise the volatility list adapter.
type VolatilityOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Volatility fetches one or more upstream market lists and normalizes each
// row to a raw sample; samples for the same coin across lists are merged by
// the aggregator afterwards.
type Volatility struct {
	opts    VolatilityOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewVolatility constructs a volatility list adapter.
func NewVolatility(opts VolatilityOptions, logger zerolog.Logger) *Volatility {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.marketlists.io"
	}
	return &Volatility{
		opts:    opts,
		logger:  logger.With().Str("component", "volatility_adapter").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
	}
}

// Fetch retrieves every configured list. Rows are keyed by a symbol column;
// every numeric field is collected so the aggregator can average them. All
// volatility pairs are denominated in USD.
func (v *Volatility) Fetch(ctx context.Context, sec config.Section) ([]Observation, error) {
	observations := make([]Observation, 0, 64)
	for _, list := range sec.Lists {
		rows, err := v.fetchList(ctx, strings.TrimSpace(list))
		if err != nil {
			return nil, err
		}
		observations = append(observations, rows...)
	}

	v.logger.Debug().Str("section", sec.Name).
		Int("lists", len(sec.Lists)).
		Int("observations", len(observations)).
		Msg("volatility lists fetched")
	return observations, nil
}

func (v *Volatility) fetchList(ctx context.Context, list string) ([]Observation, error) {
	endpoint := v.baseURL + "/v1/lists/" + list
	body, err := getJSON(ctx, v.client, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("volatility list %s: %w", list, err)
	}

	rows := body
	if data := body.Get("data"); data.Exists() {
		rows = data
	}
	if !rows.IsArray() {
		return nil, schemaMismatch("volatility", "rows")
	}

	observations := make([]Observation, 0, 32)
	for _, row := range rows.Array() {
		symbol := row.Get("symbol")
		if !symbol.Exists() {
			return nil, schemaMismatch("volatility", "symbol")
		}

		fields := numericFields(row)
		if len(fields) == 0 {
			continue
		}
		observations = append(observations, Observation{
			Base:   "USD",
			Coin:   strings.ToUpper(symbol.String()),
			Kind:   VolatilitySample,
			Fields: fields,
		})
	}
	return observations, nil
}

// numericFields extracts every numeric column of a list row, including
// numbers the upstream serialises as strings. Text columns are dropped.
func numericFields(row gjson.Result) map[string]float64 {
	fields := make(map[string]float64)
	row.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Number:
			fields[key.String()] = value.Float()
		case gjson.String:
			if parsed, err := strconv.ParseFloat(value.String(), 64); err == nil {
				fields[key.String()] = parsed
			}
		}
		return true
	})
	delete(fields, "symbol")
	return fields
}

var _ Adapter = (*Volatility)(nil)
