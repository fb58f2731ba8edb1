package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"xirr-benchmark/internal/benchmark"
	"xirr-benchmark/internal/cache"
	"xirr-benchmark/internal/config"
	"xirr-benchmark/internal/fetcher"
	"xirr-benchmark/internal/score"
	"xirr-benchmark/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	history *cache.History
	sleep   fetcher.SleepFunc
	now     func() time.Time
	out     io.Writer
}

// NewApp constructs a new application handle. The history cache lives as long as the App.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		history: cache.NewHistory(cache.Options{TTL: cfg.Cache.TTL, FetchTimeout: cfg.FetchBudget()}, logger),
		sleep:   fetcher.Sleep,
		now:     time.Now,
		out:     os.Stdout,
	}
}

// SetOutput redirects command output, mainly for tests.
func (a *App) SetOutput(w io.Writer) { a.out = w }

func (a *App) newProviders() map[string]fetcher.Provider {
	yahoo := fetcher.NewYahoo(fetcher.YahooOptions{
		Hosts:     a.Config.Yahoo.Hosts,
		Timeout:   a.Config.Yahoo.RequestTimeout,
		UserAgent: a.Config.Yahoo.UserAgent,
		Retry:     a.Config.Retry,
	}, a.Logger)

	coingecko := fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:    a.Config.CoinGecko.BaseURL,
		APIKey:     a.Config.CoinGecko.APIKey,
		VsCurrency: a.Config.CoinGecko.VsCurrency,
		Timeout:    a.Config.CoinGecko.RequestTimeout,
		Retry:      a.Config.Retry,
	}, a.Logger)

	return map[string]fetcher.Provider{
		benchmark.ProviderYahoo:     yahoo,
		benchmark.ProviderCoinGecko: coingecko,
	}
}

func (a *App) newSource() *benchmark.CachedSource {
	return benchmark.NewCachedSource(a.newProviders(), a.history, a.sleep, a.Logger)
}

func (a *App) newService() (*service.Service, error) {
	mapper, err := score.NewMapper(a.Config.Score.Bands)
	if err != nil {
		return nil, fmt.Errorf("score bands: %w", err)
	}

	source := a.newSource()
	engine, err := benchmark.NewEngine(a.Config.EngineOptions(), source, mapper, a.Logger)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(engine.Assets()))
	for _, asset := range engine.Assets() {
		names = append(names, asset.Name)
	}
	a.Logger.Debug().
		Strs("providers", source.Providers()).
		Strs("assets", names).
		Dur("fetch_budget", a.Config.FetchBudget()).
		Msg("benchmark engine ready")

	return service.New(service.Options{
		HomeCurrency: a.Config.Benchmark.HomeCurrency,
		Now:          a.now,
	}, engine, mapper, a.Logger), nil
}

// ServeOptions configure the serve command.
type ServeOptions struct {
	Addr string
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	File string
	JSON bool
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Asset     string
	From      time.Time
	To        time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}
