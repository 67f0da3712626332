package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"marketcollector/internal/section"
)

// FileName is the collector configuration file inside --datadir.
const FileName = "marketcollector.ini"

// Settings materialises the [settings] block. The cleanup key keeps its
// historical on-disk spelling so existing config files stay valid.
type Settings struct {
	Timezone         string `ini:"timezone"`
	TimeInterval     int64  `ini:"timeinterval"`
	CleanupThreshold int64  `ini:"cleanup-treshold"`
	Debug            bool   `ini:"debug"`
	// LogRotate is accepted for config-file compatibility; log output goes
	// to stdout and rotation is left to the process supervisor.
	LogRotate int `ini:"logrotate"`
	CMCAPIKey        string `ini:"cmc-apikey"`
	CGAPIKey         string `ini:"cg-apikey"`
	IndexProvider    string `ini:"index-provider"`
	TgramToken       string `ini:"tgram-token"`
	TgramChatID      string `ini:"tgram-chatid"`
}

// Section is one data section: a periodic fetch task with its own interval
// and provider parameters. Only the keys its kind reads are meaningful.
type Section struct {
	Name string       `ini:"-"`
	Kind section.Kind `ini:"-"`

	TimeInterval int64    `ini:"timeinterval"`
	StartNumber  int      `ini:"start-number"`
	EndNumber    int      `ini:"end-number"`
	Base         string   `ini:"percent-change-compared-to"`
	APIKey       string   `ini:"lc-apikey"`
	FetchLimit   int      `ini:"lc-fetchlimit"`
	Lists        []string `ini:"lists"`
}

// Config is a fully parsed configuration snapshot. Sections preserve file
// declaration order; that order is the dispatch order within a tick.
type Config struct {
	Settings Settings
	Sections []Section
}

// Load parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Settings: Settings{
			TimeInterval:     86400,
			CleanupThreshold: 86400,
			IndexProvider:    "cmc",
		},
	}

	if err := file.Section("settings").MapTo(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	for _, sec := range file.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == "settings" {
			continue
		}

		parsed := Section{
			Name: name,
			Kind: section.Classify(name),
			Base: "USD",
		}
		if parsed.Kind == section.KindUnknown {
			cfg.Sections = append(cfg.Sections, parsed)
			continue
		}
		if err := sec.MapTo(&parsed); err != nil {
			return nil, fmt.Errorf("parse section %s: %w", name, err)
		}
		parsed.Base = strings.ToUpper(strings.TrimSpace(parsed.Base))
		cfg.Sections = append(cfg.Sections, parsed)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Settings.TimeInterval <= 0 {
		return fmt.Errorf("settings.timeinterval must be greater than zero")
	}
	if c.Settings.CleanupThreshold <= 0 {
		return fmt.Errorf("settings.cleanup-treshold must be greater than zero")
	}
	if _, err := section.ParseIndexProvider(c.Settings.IndexProvider); err != nil {
		return err
	}

	for _, sec := range c.Sections {
		switch sec.Kind {
		case section.KindCMC, section.KindCoinGecko:
			if !section.Bases[sec.Base] {
				return fmt.Errorf("section %s: percent-change-compared-to must be one of BNB, BTC, ETH, USD, got %q", sec.Name, sec.Base)
			}
			if sec.StartNumber <= 0 || sec.EndNumber < sec.StartNumber {
				return fmt.Errorf("section %s: start-number/end-number range is invalid", sec.Name)
			}
		case section.KindVolatility:
			if len(sec.Lists) == 0 {
				return fmt.Errorf("section %s: lists must name at least one upstream list", sec.Name)
			}
		}
		if sec.Kind != section.KindUnknown && sec.TimeInterval <= 0 {
			return fmt.Errorf("section %s: timeinterval must be greater than zero", sec.Name)
		}
	}
	return nil
}

// IndexProvider returns the elected index provider kind.
func (c *Config) IndexProvider() section.Kind {
	kind, err := section.ParseIndexProvider(c.Settings.IndexProvider)
	if err != nil {
		// Validate already rejected unparsable values.
		return section.KindCMC
	}
	return kind
}

const defaultConfig = `[settings]
timezone = Europe/Amsterdam
timeinterval = 1800
cleanup-treshold = 86400
debug = false
logrotate = 7
cmc-apikey =
cg-apikey =
index-provider = cmc
tgram-token =
tgram-chatid =

[cmc_usd]
start-number = 1
end-number = 200
timeinterval = 86400
percent-change-compared-to = USD

[altrank_default]
timeinterval = 3600
lc-apikey =
lc-fetchlimit = 250

[volatility_usd]
timeinterval = 1800
lists = losers_24h,gainers_24h
`

// WriteDefault creates a commented starter configuration at path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
