package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"marketcollector/internal/config"
	"marketcollector/internal/section"
)

const lunarCoinsPath = "/v2/assets/coins"

// LunarOptions parameterise the LunarCrush ranking adapter, shared by the
// altrank and galaxyscore section kinds (either feed carries both values).
type LunarOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Lunar fetches altrank/galaxyscore rankings from LunarCrush.
type Lunar struct {
	opts    LunarOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewLunar constructs a LunarCrush adapter.
func NewLunar(opts LunarOptions, logger zerolog.Logger) *Lunar {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://lunarcrush.com"
	}
	return &Lunar{
		opts:    opts,
		logger:  logger.With().Str("component", "lunarcrush_adapter").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
	}
}

// Fetch retrieves ranked coins and normalizes them to ranking updates keyed
// by coin symbol only; the wildcard base means "every existing pair whose
// coin matches, across all bases".
func (l *Lunar) Fetch(ctx context.Context, sec config.Section) ([]Observation, error) {
	limit := sec.FetchLimit
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("key", sec.APIKey)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := l.baseURL + lunarCoinsPath + "?" + params.Encode()
	body, err := getJSON(ctx, l.client, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("lunarcrush coins: %w", err)
	}

	data := body.Get("data")
	if !data.Exists() || !data.IsArray() {
		return nil, schemaMismatch("lunarcrush", "data")
	}

	observations := make([]Observation, 0, limit)
	for _, row := range data.Array() {
		symbol := row.Get("s")
		if !symbol.Exists() {
			return nil, schemaMismatch("lunarcrush", "s")
		}
		observations = append(observations, Observation{
			Base:        section.WildcardBase,
			Coin:        strings.ToUpper(symbol.String()),
			Kind:        RankingUpdate,
			AltRank:     row.Get("acr").Float(),
			GalaxyScore: row.Get("gs").Float(),
		})
	}

	l.logger.Debug().Str("section", sec.Name).Int("observations", len(observations)).Msg("lunarcrush rankings fetched")
	return observations, nil
}

var _ Adapter = (*Lunar)(nil)
