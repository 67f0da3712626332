package aggregator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"marketcollector/internal/fetcher"
)

func sample(coin string, fields map[string]float64) fetcher.Observation {
	return fetcher.Observation{
		Base:   "USD",
		Coin:   coin,
		Kind:   fetcher.VolatilitySample,
		Fields: fields,
	}
}

func TestFlattenAveragesAcrossLists(t *testing.T) {
	flat := Flatten([]fetcher.Observation{
		sample("ADA", map[string]float64{"volatility": 4.0, "rank": 10}),
		sample("XRP", map[string]float64{"volatility": 3.0}),
		sample("ADA", map[string]float64{"volatility": 6.0, "rank": 20}),
	})

	want := Flat{
		"ADA": {"volatility": 5.0, "rank": 15},
		"XRP": {"volatility": 3.0},
	}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Fatalf("flatten mismatch (-want +got):\n%s", diff)
	}

	if got := flat.Volatility("ADA"); got != 5.0 {
		t.Errorf("ADA volatility = %v, want 5.0", got)
	}
	if got := flat.Volatility("XRP"); got != 3.0 {
		t.Errorf("XRP volatility = %v, want 3.0", got)
	}
	if got := flat.Volatility("DOGE"); got != 0 {
		t.Errorf("absent coin volatility = %v, want 0", got)
	}
}

func TestFlattenSingleElementPassthrough(t *testing.T) {
	fields := map[string]float64{"volatility": 7.25, "price_change": -1.5}
	flat := Flatten([]fetcher.Observation{sample("SOL", fields)})

	if diff := cmp.Diff(Flat{"SOL": fields}, flat); diff != "" {
		t.Fatalf("single-element group must pass through unchanged (-want +got):\n%s", diff)
	}
}

func TestFlattenIgnoresOtherKinds(t *testing.T) {
	flat := Flatten([]fetcher.Observation{
		{Base: "BTC", Coin: "ETH", Kind: fetcher.IndexSnapshot, RankIndex: 2},
		sample("ADA", map[string]float64{"volatility": 1.0}),
	})
	if len(flat) != 1 {
		t.Fatalf("non-volatility observations must be ignored, got %v", flat)
	}
}

func TestFellOff(t *testing.T) {
	previous := Flat{
		"ADA": {"volatility": 5.0},
		"XRP": {"volatility": 3.0},
		"SOL": {"volatility": 2.0},
	}
	current := Flat{
		"ADA": {"volatility": 8.0},
	}

	if diff := cmp.Diff([]string{"SOL", "XRP"}, FellOff(previous, current)); diff != "" {
		t.Fatalf("fell-off mismatch (-want +got):\n%s", diff)
	}
	if dropped := FellOff(nil, current); len(dropped) != 0 {
		t.Fatalf("first round has nothing to drop, got %v", dropped)
	}
}
