package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"xirr-benchmark/internal/benchmark"
	"xirr-benchmark/internal/cache"
	"xirr-benchmark/internal/fetcher"
	"xirr-benchmark/internal/logging"
	"xirr-benchmark/internal/score"
)

// EnvPrefix namespaces environment overrides, e.g. XIRRBENCH_SERVER_ADDR.
const EnvPrefix = "XIRRBENCH"

// Config materialises application configuration.
type Config struct {
	App       AppConfig           `mapstructure:"app"`
	Logging   logging.Config      `mapstructure:"logging"`
	Server    ServerConfig        `mapstructure:"server"`
	Cache     CacheConfig         `mapstructure:"cache"`
	Yahoo     YahooConfig         `mapstructure:"yahoo"`
	CoinGecko CoinGeckoConfig     `mapstructure:"coingecko"`
	Retry     fetcher.RetryPolicy `mapstructure:"retry"`
	Benchmark BenchmarkConfig     `mapstructure:"benchmark"`
	Score     ScoreConfig         `mapstructure:"score"`
	Export    ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// CacheConfig governs the price history cache.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

// YahooConfig captures Yahoo Finance connectivity.
type YahooConfig struct {
	Hosts          []string      `mapstructure:"hosts" validate:"min=1,dive,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CoinGeckoConfig captures CoinGecko connectivity.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	VsCurrency     string        `mapstructure:"vs_currency" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// BenchmarkConfig shapes the benchmark table.
type BenchmarkConfig struct {
	HomeCurrency   string            `mapstructure:"home_currency" validate:"required,currency"`
	FailurePolicy  string            `mapstructure:"failure_policy" validate:"oneof=null fallback"`
	Concurrency    int               `mapstructure:"concurrency" validate:"gte=1,lte=32"`
	PadDays        int               `mapstructure:"pad_days" validate:"gte=0,lte=30"`
	FetchBudget    time.Duration     `mapstructure:"fetch_budget" validate:"gt=0"`
	FX             FXConfig          `mapstructure:"fx"`
	AssetProviders map[string]string `mapstructure:"asset_providers" validate:"dive,oneof=yahoo coingecko"`
}

// FXConfig selects the exchange-rate series.
type FXConfig struct {
	Provider string   `mapstructure:"provider" validate:"oneof=yahoo coingecko"`
	Symbols  []string `mapstructure:"symbols" validate:"min=1,dive,required"`
	From     string   `mapstructure:"from" validate:"required,currency"`
}

// ScoreConfig holds the return-to-score bands.
type ScoreConfig struct {
	Bands []score.Band `mapstructure:"bands" validate:"min=1"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points" validate:"gt=0"`
	ChartWidth    int `mapstructure:"chart_width" validate:"gte=320"`
	ChartHeight   int `mapstructure:"chart_height" validate:"gte=240"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "xirrbench")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("cache.ttl", cache.DefaultTTL.String())
	v.SetDefault("cache.sweep_interval", "5m")

	v.SetDefault("yahoo.hosts", fetcher.DefaultYahooHosts)
	v.SetDefault("yahoo.request_timeout", "10s")
	v.SetDefault("yahoo.user_agent", "")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.request_timeout", "10s")

	retry := fetcher.DefaultRetryPolicy()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff.String())
	v.SetDefault("retry.max_backoff", retry.MaxBackoff.String())
	v.SetDefault("retry.multiplier", retry.Multiplier)

	fx := benchmark.DefaultFX()
	v.SetDefault("benchmark.home_currency", benchmark.DefaultHomeCurrency)
	v.SetDefault("benchmark.failure_policy", string(benchmark.PolicyNull))
	v.SetDefault("benchmark.concurrency", benchmark.DefaultConcurrency)
	v.SetDefault("benchmark.pad_days", benchmark.DefaultPadDays)
	v.SetDefault("benchmark.fetch_budget", "30s")
	v.SetDefault("benchmark.fx.provider", fx.Provider)
	v.SetDefault("benchmark.fx.symbols", fx.Symbols)
	v.SetDefault("benchmark.fx.from", fx.From)
	v.SetDefault("benchmark.asset_providers", map[string]string{})

	bands := make([]map[string]any, 0, len(score.DefaultBands()))
	for _, b := range score.DefaultBands() {
		bands = append(bands, map[string]any{"return": b.Return, "score": b.Score})
	}
	v.SetDefault("score.bands", bands)

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("currency", validateCurrency)
	return v
}

func validateCurrency(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	return code == strings.ToUpper(code) && money.GetCurrency(code) != nil
}

// Validate performs struct-tag validation plus cross-field checks.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config %s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if _, err := score.NewMapper(c.Score.Bands); err != nil {
		return fmt.Errorf("score.bands: %w", err)
	}
	if budget := c.FetchBudget(); budget >= c.Server.RequestTimeout {
		return fmt.Errorf("benchmark fetches may take %v, which does not fit in server.request_timeout %v; lower benchmark.fetch_budget or the retry settings", budget, c.Server.RequestTimeout)
	}
	for name := range c.Benchmark.AssetProviders {
		asset, ok := benchmark.FindAsset(benchmark.DefaultAssets(), name)
		if !ok {
			return fmt.Errorf("benchmark.asset_providers: unknown asset %q", name)
		}
		if asset.Kind != benchmark.KindMarket {
			return fmt.Errorf("benchmark.asset_providers: %s is a fixed benchmark", asset.Name)
		}
	}
	return nil
}

// WorstCaseFetch estimates the longest benchmark run when every upstream request times out:
// each market asset walks its whole attempt chain, USD assets then walk the FX chain, and assets
// beyond the concurrency limit wait for a free slot.
func (c *Config) WorstCaseFetch() time.Duration {
	chain := func(provider string, symbols int) time.Duration {
		if provider == benchmark.ProviderCoinGecko {
			return time.Duration(symbols) * c.Retry.WorstCase(c.CoinGecko.RequestTimeout)
		}
		return time.Duration(symbols*len(c.Yahoo.Hosts)) * c.Retry.WorstCase(c.Yahoo.RequestTimeout)
	}

	fx := chain(c.Benchmark.FX.Provider, len(c.Benchmark.FX.Symbols))
	var slowest time.Duration
	markets := 0
	for _, a := range c.Assets() {
		if a.Kind != benchmark.KindMarket {
			continue
		}
		markets++
		d := chain(a.Provider, len(a.Symbols))
		if a.QuoteCurrency != "" && !strings.EqualFold(a.QuoteCurrency, c.Benchmark.HomeCurrency) {
			d += fx
		}
		slowest = max(slowest, d)
	}

	slots := max(c.Benchmark.Concurrency, 1)
	waves := (markets + slots - 1) / slots
	return time.Duration(waves) * slowest
}

// FetchBudget is the time a benchmark run may spend fetching: the configured budget, or less when
// the retry settings cannot take that long.
func (c *Config) FetchBudget() time.Duration {
	return min(c.Benchmark.FetchBudget, c.WorstCaseFetch())
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Assets returns the benchmark table with configured provider overrides applied.
func (c *Config) Assets() []benchmark.Asset {
	return benchmark.WithProviders(benchmark.DefaultAssets(), c.Benchmark.AssetProviders)
}

// EngineOptions maps configuration onto benchmark engine options.
func (c *Config) EngineOptions() benchmark.Options {
	return benchmark.Options{
		HomeCurrency: c.Benchmark.HomeCurrency,
		FX: benchmark.FX{
			Provider: c.Benchmark.FX.Provider,
			Symbols:  c.Benchmark.FX.Symbols,
			From:     c.Benchmark.FX.From,
		},
		Assets:      c.Assets(),
		Policy:      benchmark.FailurePolicy(c.Benchmark.FailurePolicy),
		Concurrency: c.Benchmark.Concurrency,
		PadDays:     c.Benchmark.PadDays,
		Budget:      c.FetchBudget(),
	}
}
