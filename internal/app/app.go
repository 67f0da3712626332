package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"marketcollector/internal/alerting"
	"marketcollector/internal/config"
	"marketcollector/internal/scheduler"
	"marketcollector/internal/service"
	"marketcollector/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Logger   zerolog.Logger
	DataDir  string
	ShareDir string

	// Endpoints is zero in production; tests point it at fake upstreams.
	Endpoints service.Endpoints
}

// NewApp constructs a new application handle.
func NewApp(datadir, sharedir string, logger zerolog.Logger) *App {
	return &App{
		Logger:   logger.With().Str("component", "app").Logger(),
		DataDir:  datadir,
		ShareDir: sharedir,
	}
}

// Run executes the long-running collector service. On the very first run it
// writes a default configuration file and returns so the operator can fill
// in API keys.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := filepath.Join(a.DataDir, config.FileName)
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}
		a.Logger.Info().Str("path", configPath).Msg("created default configuration; edit it and restart")
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Settings.Debug {
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	if cfg.Settings.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Settings.Timezone); err != nil {
			a.Logger.Warn().Str("timezone", cfg.Settings.Timezone).Msg("unknown timezone, continuing in UTC")
		}
	}

	// The shared store being unreachable is fatal at startup only; once the
	// loop runs, store errors abort the tick and the next one retries.
	market, err := storage.OpenMarket(filepath.Join(a.ShareDir, storage.MarketFileName), a.Logger)
	if err != nil {
		return err
	}
	defer market.Close()
	if err := market.Migrate(ctx); err != nil {
		return err
	}

	sections, err := storage.OpenSections(filepath.Join(a.DataDir, storage.SectionFileName), a.Logger)
	if err != nil {
		return err
	}
	defer sections.Close()
	if err := sections.Migrate(ctx); err != nil {
		return err
	}

	engine := service.New(service.Options{
		ConfigPath: configPath,
		Endpoints:  a.Endpoints,
	}, market, sections, a.newNotifier(cfg), a.Logger)

	if err := engine.StartupReset(ctx); err != nil {
		return err
	}

	a.Logger.Info().Int("sections", len(cfg.Sections)).Msg("starting market data collector")
	err = scheduler.NewLoop(a.Logger).Run(ctx, engine.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("collector terminated with error")
		return err
	}

	a.Logger.Info().Msg("market data collector stopped")
	return nil
}

func (a *App) newNotifier(cfg *config.Config) alerting.Notifier {
	if cfg.Settings.TgramToken == "" || cfg.Settings.TgramChatID == "" {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.Settings.TgramToken, cfg.Settings.TgramChatID, "", 10*time.Second, a.Logger)
}
