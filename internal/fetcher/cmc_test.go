package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"marketcollector/internal/config"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func cmcSection(base string) config.Section {
	return config.Section{
		Name:         "cmc_" + base,
		StartNumber:  1,
		EndNumber:    3,
		TimeInterval: 86400,
		Base:         base,
	}
}

const cmcListingsBody = `{
  "status": {"error_code": 0, "error_message": null},
  "data": [
    {"symbol": "BTC", "cmc_rank": 1, "quote": {"BTC": {"percent_change_1h": 0, "percent_change_24h": 0, "percent_change_7d": 0}}},
    {"symbol": "ETH", "cmc_rank": 2, "quote": {"BTC": {"percent_change_1h": 0.4, "percent_change_24h": 1.5, "percent_change_7d": 3.2}}},
    {"symbol": "SOL", "cmc_rank": 3, "quote": {"BTC": {"percent_change_1h": -0.1, "percent_change_24h": -2.0, "percent_change_7d": 5.5}}}
  ]
}`

func TestCMCFetchSkipsSelfPair(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-CMC_PRO_API_KEY")
		if got := r.URL.Query().Get("convert"); got != "BTC" {
			t.Errorf("convert = %q, want BTC", got)
		}
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q, want 3", got)
		}
		w.Write([]byte(cmcListingsBody))
	}))
	defer srv.Close()

	c := NewCMC(CMCOptions{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second}, noopLogger())
	observations, err := c.Fetch(context.Background(), cmcSection("BTC"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotKey != "key" {
		t.Errorf("api key header = %q", gotKey)
	}

	if len(observations) != 2 {
		t.Fatalf("got %d observations, want 2 (self-pair skipped)", len(observations))
	}
	eth := observations[0]
	if eth.Coin != "ETH" || eth.Base != "BTC" || eth.Kind != IndexSnapshot {
		t.Fatalf("unexpected first observation: %+v", eth)
	}
	if eth.RankIndex != 2 {
		t.Errorf("ETH rank = %d, want 2", eth.RankIndex)
	}
	if eth.Changes["change_24h"] != 1.5 {
		t.Errorf("ETH change_24h = %v, want 1.5", eth.Changes["change_24h"])
	}
	sol := observations[1]
	if sol.Coin != "SOL" || sol.RankIndex != 3 || sol.Changes["change_24h"] != -2.0 {
		t.Fatalf("unexpected second observation: %+v", sol)
	}
}

func TestCMCFetchIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cmcListingsBody))
	}))
	defer srv.Close()

	c := NewCMC(CMCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	first, err := c.Fetch(context.Background(), cmcSection("BTC"))
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := c.Fetch(context.Background(), cmcSection("BTC"))
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("batch sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Coin != second[i].Coin || first[i].RankIndex != second[i].RankIndex {
			t.Fatalf("observation %d differs between identical fetches", i)
		}
	}
}

func TestCMCFetchRejectsUnknownBase(t *testing.T) {
	c := NewCMC(CMCOptions{Timeout: time.Second}, noopLogger())
	_, err := c.Fetch(context.Background(), cmcSection("DOGE"))
	if err == nil {
		t.Fatal("base outside the closed set must fail fast")
	}
	if Classify(err) != Permanent {
		t.Fatalf("bad base should classify permanent, got %v", Classify(err))
	}
}

func TestCMCFetchErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": {"error_code": 1008, "error_message": "minute rate limit reached"}, "data": []}`))
	}))
	defer srv.Close()

	c := NewCMC(CMCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := c.Fetch(context.Background(), cmcSection("USD"))
	if err == nil {
		t.Fatal("error envelope must fail the batch")
	}
	if Classify(err) != Permanent {
		t.Fatalf("api error envelope should classify permanent, got %v", Classify(err))
	}
}

func TestCMCFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCMC(CMCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := c.Fetch(context.Background(), cmcSection("USD"))
	if err == nil {
		t.Fatal("HTTP 502 must fail the batch")
	}
	if Classify(err) != Transient {
		t.Fatalf("HTTP 5xx should classify transient, got %v", Classify(err))
	}
}

func TestCMCFetchMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": {"error_code": 0}}`))
	}))
	defer srv.Close()

	c := NewCMC(CMCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := c.Fetch(context.Background(), cmcSection("USD"))
	if err == nil {
		t.Fatal("payload without data key must fail the batch")
	}
	if Classify(err) != Permanent {
		t.Fatalf("schema mismatch should classify permanent, got %v", Classify(err))
	}
}
