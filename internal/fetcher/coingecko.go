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
	"github.com/tidwall/gjson"

	"marketcollector/internal/config"
	"marketcollector/internal/section"
)

const (
	cgMarketsPath = "/api/v3/coins/markets"
	// CoinGecko paginates markets in fixed pages of 250 rows.
	cgPageSize = 250
)

// CoinGeckoOptions parameterise the CoinGecko adapter.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	PageDelay time.Duration
}

// CoinGecko fetches ranked market pages from CoinGecko.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko adapter.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = 2 * time.Second
	}
	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_adapter").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
	}
}

// Fetch requests only the pages covering [start-number, end-number], pausing
// between pages to respect upstream rate limits. Rows without a
// market_cap_rank, or ranked outside the window, are dropped.
func (c *CoinGecko) Fetch(ctx context.Context, sec config.Section) ([]Observation, error) {
	base := strings.ToUpper(sec.Base)
	if !section.Bases[base] {
		return nil, permanentf("coingecko section %s: unsupported base %q", sec.Name, sec.Base)
	}

	firstPage := (sec.StartNumber-1)/cgPageSize + 1
	lastPage := (sec.EndNumber-1)/cgPageSize + 1

	observations := make([]Observation, 0, sec.EndNumber-sec.StartNumber+1)
	for page := firstPage; page <= lastPage; page++ {
		if page > firstPage {
			if err := pause(ctx, c.opts.PageDelay); err != nil {
				return nil, fmt.Errorf("coingecko page delay: %w", err)
			}
		}

		rows, err := c.fetchPage(ctx, base, page)
		if err != nil {
			return nil, err
		}
		for _, obs := range rows {
			if obs.RankIndex < sec.StartNumber || obs.RankIndex > sec.EndNumber {
				continue
			}
			if obs.Coin == base {
				continue
			}
			observations = append(observations, obs)
		}
	}

	c.logger.Debug().Str("section", sec.Name).
		Int("pages", lastPage-firstPage+1).
		Int("observations", len(observations)).
		Msg("coingecko markets fetched")
	return observations, nil
}

func (c *CoinGecko) fetchPage(ctx context.Context, base string, page int) ([]Observation, error) {
	params := url.Values{}
	params.Set("vs_currency", strings.ToLower(base))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(cgPageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("price_change_percentage", "1h,24h,7d,14d,30d,200d,1y")

	endpoint := c.baseURL + cgMarketsPath + "?" + params.Encode()
	headers := map[string]string{}
	if c.opts.APIKey != "" {
		headers["x-cg-pro-api-key"] = c.opts.APIKey
	}

	body, err := getJSON(ctx, c.client, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("coingecko markets page %d: %w", page, err)
	}
	if !body.IsArray() {
		return nil, schemaMismatch("coingecko", "markets array")
	}

	observations := make([]Observation, 0, cgPageSize)
	for _, row := range body.Array() {
		symbol := row.Get("symbol")
		if !symbol.Exists() {
			return nil, schemaMismatch("coingecko", "symbol")
		}
		rank := row.Get("market_cap_rank")
		if !rank.Exists() || rank.Type == gjson.Null {
			continue
		}

		// Absent change columns read as 0.0 through gjson's zero values.
		observations = append(observations, Observation{
			Base:      base,
			Coin:      strings.ToUpper(symbol.String()),
			Kind:      IndexSnapshot,
			RankIndex: int(rank.Int()),
			Changes: map[string]float64{
				"change_1h":   row.Get("price_change_percentage_1h_in_currency").Float(),
				"change_24h":  row.Get("price_change_percentage_24h_in_currency").Float(),
				"change_7d":   row.Get("price_change_percentage_7d_in_currency").Float(),
				"change_14d":  row.Get("price_change_percentage_14d_in_currency").Float(),
				"change_30d":  row.Get("price_change_percentage_30d_in_currency").Float(),
				"change_200d": row.Get("price_change_percentage_200d_in_currency").Float(),
				"change_1y":   row.Get("price_change_percentage_1y_in_currency").Float(),
			},
		})
	}
	return observations, nil
}

var _ Adapter = (*CoinGecko)(nil)
