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

const cmcListingsPath = "/v1/cryptocurrency/listings/latest"

// CMCOptions parameterise the CoinMarketCap adapter.
type CMCOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CMC fetches index listings from CoinMarketCap.
type CMC struct {
	opts    CMCOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCMC constructs a CoinMarketCap adapter.
func NewCMC(opts CMCOptions, logger zerolog.Logger) *CMC {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://pro-api.coinmarketcap.com"
	}
	return &CMC{
		opts:    opts,
		logger:  logger.With().Str("component", "cmc_adapter").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
	}
}

// Fetch retrieves one listings window and normalizes it to index snapshots.
// The coin equal to the section base is skipped so no self-pair is stored.
func (c *CMC) Fetch(ctx context.Context, sec config.Section) ([]Observation, error) {
	base := strings.ToUpper(sec.Base)
	if !section.Bases[base] {
		return nil, permanentf("cmc section %s: unsupported base %q", sec.Name, sec.Base)
	}

	limit := sec.EndNumber - sec.StartNumber + 1
	params := url.Values{}
	params.Set("start", strconv.Itoa(sec.StartNumber))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("convert", base)

	endpoint := c.baseURL + cmcListingsPath + "?" + params.Encode()
	headers := map[string]string{"X-CMC_PRO_API_KEY": c.opts.APIKey}

	body, err := getJSON(ctx, c.client, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("cmc listings: %w", err)
	}

	if code := body.Get("status.error_code"); code.Exists() && code.Int() != 0 {
		msg := body.Get("status.error_message").String()
		return nil, permanentf("cmc api error %d: %s", code.Int(), msg)
	}

	data := body.Get("data")
	if !data.Exists() || !data.IsArray() {
		return nil, schemaMismatch("cmc", "data")
	}

	quotePath := "quote." + base
	observations := make([]Observation, 0, limit)
	for _, row := range data.Array() {
		symbol := row.Get("symbol")
		if !symbol.Exists() {
			return nil, schemaMismatch("cmc", "symbol")
		}
		coin := strings.ToUpper(symbol.String())
		if coin == base {
			continue
		}

		quote := row.Get(quotePath)
		observations = append(observations, Observation{
			Base:      base,
			Coin:      coin,
			Kind:      IndexSnapshot,
			RankIndex: int(row.Get("cmc_rank").Int()),
			Changes: map[string]float64{
				"change_1h":  quote.Get("percent_change_1h").Float(),
				"change_24h": quote.Get("percent_change_24h").Float(),
				"change_7d":  quote.Get("percent_change_7d").Float(),
			},
		})
	}

	c.logger.Debug().Str("section", sec.Name).Int("observations", len(observations)).Msg("cmc listings fetched")
	return observations, nil
}

var _ Adapter = (*CMC)(nil)
