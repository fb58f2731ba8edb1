package benchmark

import "strings"

// Kind distinguishes market-priced assets from constant-return assumptions.
type Kind string

const (
	KindFixed  Kind = "fixed"
	KindMarket Kind = "market"
)

// Provider identifiers understood by the series source.
const (
	ProviderYahoo     = "yahoo"
	ProviderCoinGecko = "coingecko"
)

// Asset describes one benchmark row.
type Asset struct {
	Name                  string
	Kind                  Kind
	Provider              string
	Symbols               []string
	QuoteCurrency         string
	FallbackReturnPercent float64
	FixedReturnPercent    float64
}

// FX describes the exchange-rate series that converts the foreign quote currency into the home currency.
type FX struct {
	Provider string
	Symbols  []string
	From     string
}

// DefaultHomeCurrency is the currency of the user's cashflows.
const DefaultHomeCurrency = "INR"

// DefaultFX converts USD quotes into INR.
func DefaultFX() FX {
	return FX{Provider: ProviderYahoo, Symbols: []string{"USDINR=X", "INR=X"}, From: "USD"}
}

// DefaultAssets returns the benchmark set in display order.
func DefaultAssets() []Asset {
	return []Asset{
		{Name: "FD", Kind: KindFixed, FixedReturnPercent: 7},
		{Name: "Nifty", Kind: KindMarket, Provider: ProviderYahoo, Symbols: []string{"^NSEI"}, QuoteCurrency: "INR", FallbackReturnPercent: 8.65},
		{Name: "Real Estate", Kind: KindFixed, FixedReturnPercent: 13},
		{Name: "BTC", Kind: KindMarket, Provider: ProviderYahoo, Symbols: []string{"BTC-USD"}, QuoteCurrency: "USD", FallbackReturnPercent: 50.72},
		{Name: "Gold", Kind: KindMarket, Provider: ProviderYahoo, Symbols: []string{"GC=F", "XAUUSD=X"}, QuoteCurrency: "USD", FallbackReturnPercent: 58.77},
		{Name: "Silver", Kind: KindMarket, Provider: ProviderYahoo, Symbols: []string{"SI=F", "XAGUSD=X"}, QuoteCurrency: "USD", FallbackReturnPercent: 96.63},
	}
}

// FindAsset looks up an asset by name, case-insensitively.
func FindAsset(assets []Asset, name string) (Asset, bool) {
	for _, a := range assets {
		if strings.EqualFold(a.Name, name) || strings.EqualFold(strings.ReplaceAll(a.Name, " ", ""), name) {
			return a, true
		}
	}
	return Asset{}, false
}

// WithProviders overrides the provider of named market assets.
func WithProviders(assets []Asset, overrides map[string]string) []Asset {
	out := make([]Asset, len(assets))
	copy(out, assets)
	for i := range out {
		if out[i].Kind != KindMarket {
			continue
		}
		for name, provider := range overrides {
			if strings.EqualFold(out[i].Name, name) && provider != "" {
				out[i].Provider = strings.ToLower(provider)
			}
		}
	}
	return out
}

func (a Asset) needsFX(home string) bool {
	return a.QuoteCurrency != "" && !strings.EqualFold(a.QuoteCurrency, home)
}
