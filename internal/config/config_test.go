package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"marketcollector/internal/section"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `[settings]
timezone = Europe/Amsterdam
timeinterval = 1800
cleanup-treshold = 86400
debug = true
logrotate = 7
cmc-apikey = cmc-key
cg-apikey =
index-provider = CMC
tgram-token =
tgram-chatid =

[cmc_btc]
start-number = 1
end-number = 3
timeinterval = 86400
percent-change-compared-to = btc

[volatility_usd]
timeinterval = 1800
lists = losers_24h, gainers_24h

[altrank_default]
timeinterval = 3600
lc-apikey = lunar-key
lc-fetchlimit = 250

[telegram]
some-key = ignored
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Settings.TimeInterval != 1800 {
		t.Errorf("timeinterval = %d, want 1800", cfg.Settings.TimeInterval)
	}
	if cfg.Settings.CleanupThreshold != 86400 {
		t.Errorf("cleanup threshold = %d, want 86400", cfg.Settings.CleanupThreshold)
	}
	if !cfg.Settings.Debug {
		t.Error("debug should be true")
	}
	if cfg.Settings.CMCAPIKey != "cmc-key" {
		t.Errorf("cmc-apikey = %q", cfg.Settings.CMCAPIKey)
	}
	if cfg.IndexProvider() != section.KindCMC {
		t.Errorf("index provider = %v, want cmc", cfg.IndexProvider())
	}

	// Sections come back in declaration order, unknown prefixes included.
	names := make([]string, 0, len(cfg.Sections))
	for _, sec := range cfg.Sections {
		names = append(names, sec.Name)
	}
	wantNames := []string{"cmc_btc", "volatility_usd", "altrank_default", "telegram"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Fatalf("section order mismatch (-want +got):\n%s", diff)
	}

	cmcSec := cfg.Sections[0]
	if cmcSec.Kind != section.KindCMC || cmcSec.StartNumber != 1 || cmcSec.EndNumber != 3 || cmcSec.Base != "BTC" {
		t.Errorf("cmc section parsed wrong: %+v", cmcSec)
	}

	volSec := cfg.Sections[1]
	if diff := cmp.Diff([]string{"losers_24h", "gainers_24h"}, volSec.Lists); diff != "" {
		t.Errorf("lists mismatch (-want +got):\n%s", diff)
	}

	lunarSec := cfg.Sections[2]
	if lunarSec.APIKey != "lunar-key" || lunarSec.FetchLimit != 250 {
		t.Errorf("altrank section parsed wrong: %+v", lunarSec)
	}

	if cfg.Sections[3].Kind != section.KindUnknown {
		t.Errorf("telegram section should classify as unknown, got %v", cfg.Sections[3].Kind)
	}
}

func TestLoadRejectsBadBase(t *testing.T) {
	contents := `[settings]
timeinterval = 60
cleanup-treshold = 60

[cmc_btc]
start-number = 1
end-number = 3
timeinterval = 60
percent-change-compared-to = DOGE
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("base outside the closed set should fail validation")
	}
}

func TestLoadRejectsBadIndexProvider(t *testing.T) {
	contents := `[settings]
timeinterval = 60
cleanup-treshold = 60
index-provider = binance
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("invalid index-provider should fail validation")
	}
}

func TestLoadRejectsEmptyVolatilityLists(t *testing.T) {
	contents := `[settings]
timeinterval = 60
cleanup-treshold = 60

[volatility_usd]
timeinterval = 60
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("volatility section without lists should fail validation")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	// The generated file must load and validate as-is.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if len(cfg.Sections) == 0 {
		t.Fatal("default config should declare at least one data section")
	}

	if err := WriteDefault(path); err == nil {
		t.Fatal("WriteDefault must not overwrite an existing file")
	}
}
