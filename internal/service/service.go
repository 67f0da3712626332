package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketcollector/internal/aggregator"
	"marketcollector/internal/alerting"
	"marketcollector/internal/config"
	"marketcollector/internal/fetcher"
	"marketcollector/internal/scheduler"
	"marketcollector/internal/section"
	"marketcollector/internal/storage"
)

// Endpoints overrides upstream base URLs, mainly for tests against fake
// servers. Empty strings keep each adapter's production default.
type Endpoints struct {
	CMCBaseURL        string
	CGBaseURL         string
	LunarBaseURL      string
	VolatilityBaseURL string
	CGPageDelay       time.Duration
	Timeout           time.Duration
}

// Options configure the engine.
type Options struct {
	ConfigPath string
	Endpoints  Endpoints
	// Now supplies the engine clock; nil means time.Now.
	Now func() time.Time
}

// Engine is the collector's single worker: it reloads configuration, runs
// retention, dispatches due sections through their adapters, and commits
// each section atomically.
type Engine struct {
	opts     Options
	market   *storage.MarketStore
	sections *storage.SectionStore
	notifier alerting.Notifier
	logger   zerolog.Logger

	now   func() time.Time
	force bool

	// Per-section transient memory, private to the worker: the previous
	// volatility round and the notify-once markers.
	prevRounds map[string]aggregator.Flat
	notified   map[string]bool
}

// New constructs the engine. The first tick runs every section regardless of
// its stored next-run timestamp.
func New(opts Options, market *storage.MarketStore, sections *storage.SectionStore, notifier alerting.Notifier, logger zerolog.Logger) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		opts:       opts,
		market:     market,
		sections:   sections,
		notifier:   notifier,
		logger:     logger.With().Str("component", "engine").Logger(),
		now:        now,
		force:      true,
		prevRounds: make(map[string]aggregator.Flat),
		notified:   make(map[string]bool),
	}
}

// StartupReset clears the current-round-only columns so stale values from a
// previous process do not mislead readers before the first successful fetch.
func (e *Engine) StartupReset(ctx context.Context) error {
	resets := []struct {
		table, column string
	}{
		{"rankings", "altrank"},
		{"rankings", "galaxyscore"},
		{"prices", "volatility_24h"},
	}
	for _, r := range resets {
		if err := e.market.ResetColumn(ctx, r.table, r.column, 0); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs one collector iteration: reload config, retention, then every
// due section in declaration order. It returns the configured global
// interval so the outer loop follows live config edits.
func (e *Engine) Tick(ctx context.Context, _ time.Time) (time.Duration, error) {
	cfg, err := config.Load(e.opts.ConfigPath)
	if err != nil {
		return time.Minute, err
	}
	interval := time.Duration(cfg.Settings.TimeInterval) * time.Second

	logger := e.logger.With().Str("tick", uuid.NewString()).Logger()
	now := e.now().Unix()

	// Retention first, so a pair removed here can be re-created by the same
	// tick if the index provider still reports it.
	removed, err := e.market.DeleteStale(ctx, now-cfg.Settings.CleanupThreshold)
	if err != nil {
		// Store unavailable mid-run: abort the tick, retry next one.
		return interval, err
	}
	if removed > 0 {
		logger.Info().Int("pairs", removed).Msg("retention removed stale pairs")
	}

	for _, sec := range cfg.Sections {
		if ctx.Err() != nil {
			logger.Info().Msg("shutdown requested, skipping remaining sections")
			break
		}
		if sec.Kind == section.KindUnknown {
			logger.Warn().Str("section", sec.Name).Msg("section matches no known prefix, ignoring")
			continue
		}
		e.runSection(ctx, logger, cfg, sec)
	}

	e.force = false
	return interval, nil
}

func (e *Engine) runSection(ctx context.Context, logger zerolog.Logger, cfg *config.Config, sec config.Section) {
	now := e.now().Unix()
	nextRun, err := e.sections.NextRun(ctx, sec.Name, now)
	if err != nil {
		logger.Error().Err(err).Str("section", sec.Name).Msg("scheduler lookup failed")
		return
	}
	if !scheduler.Due(now, nextRun, sec.TimeInterval, e.force) {
		return
	}

	slog := logger.With().Str("section", sec.Name).Logger()
	slog.Info().Msg("processing section")

	if sec.Kind == section.KindAltRank || sec.Kind == section.KindGalaxyScore {
		// Ranking columns are current-round-only signals: the reset commits
		// on its own, before the fetch, even if the fetch then fails.
		if err := e.market.ResetColumn(ctx, "rankings", "altrank", 0); err != nil {
			slog.Error().Err(err).Msg("ranking reset failed")
			return
		}
		if err := e.market.ResetColumn(ctx, "rankings", "galaxyscore", 0); err != nil {
			slog.Error().Err(err).Msg("ranking reset failed")
			return
		}
	}

	observations, err := e.adapterFor(cfg, sec).Fetch(ctx, sec)
	if err != nil {
		e.failSection(ctx, slog, sec, err)
		return
	}

	var (
		resets []string
		flat   aggregator.Flat
	)
	if sec.Kind == section.KindVolatility {
		flat = aggregator.Flatten(observations)
		resets = aggregator.FellOff(e.prevRounds[sec.Name], flat)
		observations = flatObservations(flat)
	}

	if err := e.commit(ctx, cfg, sec, observations, resets); err != nil {
		slog.Error().Err(err).Msg("section commit failed")
		e.setNextRun(ctx, slog, sec.Name, now+scheduler.TransientBackoff)
		return
	}

	// The previous round advances only once its consequences are durable;
	// a rolled-back commit must not swallow a pending fall-off reset.
	if sec.Kind == section.KindVolatility {
		e.prevRounds[sec.Name] = flat
	}

	delete(e.notified, sec.Name)
	e.setNextRun(ctx, slog, sec.Name, now+sec.TimeInterval)
	slog.Info().Int("observations", len(observations)).Msg("section committed")
}

func (e *Engine) failSection(ctx context.Context, slog zerolog.Logger, sec config.Section, err error) {
	kind := fetcher.Classify(err)
	now := e.now().Unix()
	e.setNextRun(ctx, slog, sec.Name, now+scheduler.Backoff(kind))
	slog.Error().Err(err).Str("class", kind.String()).Msg("section fetch failed")

	if kind != fetcher.Permanent || e.notified[sec.Name] {
		return
	}
	e.notified[sec.Name] = true
	if e.notifier == nil {
		return
	}
	note := alerting.Notification{Section: sec.Name, Reason: err.Error(), When: e.now()}
	if err := e.notifier.Notify(ctx, note); err != nil {
		slog.Error().Err(err).Msg("failed to dispatch notification")
	}
}

// commit applies one section's observations in a single transaction;
// readers never see a partial section.
func (e *Engine) commit(ctx context.Context, cfg *config.Config, sec config.Section, observations []fetcher.Observation, resets []string) error {
	tx, err := e.market.Begin(ctx)
	if err != nil {
		return err
	}

	provider := cfg.IndexProvider()
	now := e.now().Unix()
	for _, ob := range observations {
		if err := e.apply(ctx, tx, sec, provider, ob, now); err != nil {
			tx.Rollback()
			return err
		}
	}

	// Coins that fell off every volatility list this round: clear their
	// volatility iff the pair still exists.
	for _, coin := range resets {
		exists, err := tx.HasPair(ctx, "USD", coin)
		if err != nil {
			tx.Rollback()
			return err
		}
		if !exists {
			continue
		}
		if err := tx.UpdateValues(ctx, "prices", "USD", coin, map[string]float64{"volatility_24h": 0}); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (e *Engine) apply(ctx context.Context, tx *storage.Tx, sec config.Section, provider section.Kind, ob fetcher.Observation, now int64) error {
	switch ob.Kind {
	case fetcher.IndexSnapshot:
		exists, err := tx.HasPair(ctx, ob.Base, ob.Coin)
		if err != nil {
			return err
		}
		if !exists {
			if !sec.Kind.CanAddPairs(provider) {
				return nil
			}
			if err := tx.AddPair(ctx, ob.Base, ob.Coin, now); err != nil {
				return err
			}
		}
		if sec.Kind.WritesIndexRank(provider) {
			rank := map[string]float64{"coinmarketcap": float64(ob.RankIndex)}
			if err := tx.UpdateValues(ctx, "rankings", ob.Base, ob.Coin, rank); err != nil {
				return err
			}
		}
		if len(ob.Changes) > 0 {
			if err := tx.UpdateValues(ctx, "prices", ob.Base, ob.Coin, ob.Changes); err != nil {
				return err
			}
		}
		return tx.Touch(ctx, ob.Base, ob.Coin, now)

	case fetcher.RankingUpdate:
		exists, err := tx.HasPair(ctx, section.WildcardBase, ob.Coin)
		if err != nil || !exists {
			return err
		}
		values := map[string]float64{"altrank": ob.AltRank, "galaxyscore": ob.GalaxyScore}
		if err := tx.UpdateValues(ctx, "rankings", section.WildcardBase, ob.Coin, values); err != nil {
			return err
		}
		return tx.Touch(ctx, section.WildcardBase, ob.Coin, now)

	case fetcher.VolatilitySample:
		exists, err := tx.HasPair(ctx, ob.Base, ob.Coin)
		if err != nil || !exists {
			return err
		}
		values := map[string]float64{"volatility_24h": ob.Fields[aggregator.VolatilityField]}
		if err := tx.UpdateValues(ctx, "prices", ob.Base, ob.Coin, values); err != nil {
			return err
		}
		return tx.Touch(ctx, ob.Base, ob.Coin, now)
	}
	return nil
}

func (e *Engine) setNextRun(ctx context.Context, slog zerolog.Logger, sectionID string, next int64) {
	if err := e.sections.SetNextRun(ctx, sectionID, next); err != nil {
		slog.Error().Err(err).Msg("failed to persist next run")
	}
}

func (e *Engine) adapterFor(cfg *config.Config, sec config.Section) fetcher.Adapter {
	endpoints := e.opts.Endpoints
	switch sec.Kind {
	case section.KindCoinGecko:
		return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
			BaseURL:   endpoints.CGBaseURL,
			APIKey:    cfg.Settings.CGAPIKey,
			Timeout:   endpoints.Timeout,
			PageDelay: endpoints.CGPageDelay,
		}, e.logger)
	case section.KindAltRank, section.KindGalaxyScore:
		return fetcher.NewLunar(fetcher.LunarOptions{
			BaseURL: endpoints.LunarBaseURL,
			Timeout: endpoints.Timeout,
		}, e.logger)
	case section.KindVolatility:
		return fetcher.NewVolatility(fetcher.VolatilityOptions{
			BaseURL: endpoints.VolatilityBaseURL,
			Timeout: endpoints.Timeout,
		}, e.logger)
	default:
		return fetcher.NewCMC(fetcher.CMCOptions{
			BaseURL: endpoints.CMCBaseURL,
			APIKey:  cfg.Settings.CMCAPIKey,
			Timeout: endpoints.Timeout,
		}, e.logger)
	}
}

// flatObservations rebuilds averaged records as observations, sorted by coin
// so commits stay deterministic.
func flatObservations(flat aggregator.Flat) []fetcher.Observation {
	coins := make([]string, 0, len(flat))
	for coin := range flat {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	observations := make([]fetcher.Observation, 0, len(coins))
	for _, coin := range coins {
		observations = append(observations, fetcher.Observation{
			Base:   "USD",
			Coin:   coin,
			Kind:   fetcher.VolatilitySample,
			Fields: flat[coin],
		})
	}
	return observations
}
