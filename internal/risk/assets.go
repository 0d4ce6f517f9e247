package risk

import (
	"strings"
)

// AssetClass groups symbols that share a pip definition and a stop cap
type AssetClass string

const (
	ClassForex  AssetClass = "forex"
	ClassJPY    AssetClass = "jpy"
	ClassMetal  AssetClass = "metal"
	ClassIndex  AssetClass = "index"
	ClassCrypto AssetClass = "crypto"
)

// ClassSpec defines how stop distances are measured for an asset class.
// When BasisPoints is set a pip is 0.01% of the entry price and PipSize is
// ignored.
type ClassSpec struct {
	PipSize     float64 `json:"pip_size" yaml:"pip_size" validate:"gte=0"`
	TickSize    float64 `json:"tick_size" yaml:"tick_size" validate:"gt=0"`
	MaxStopPips float64 `json:"max_stop_pips" yaml:"max_stop_pips" validate:"gt=0"`
	BasisPoints bool    `json:"basis_points" yaml:"basis_points"`
}

// Pip returns the price distance of one pip at the given entry
func (cs ClassSpec) Pip(entry float64) float64 {
	if cs.BasisPoints {
		return entry / 10000
	}
	return cs.PipSize
}

// Pips converts a price distance to pips
func (cs ClassSpec) Pips(distance, entry float64) float64 {
	pip := cs.Pip(entry)
	if pip <= 0 {
		return 0
	}
	return distance / pip
}

// DefaultClasses returns the built-in asset class table
func DefaultClasses() map[AssetClass]ClassSpec {
	return map[AssetClass]ClassSpec{
		ClassForex:  {PipSize: 0.0001, TickSize: 0.00001, MaxStopPips: 30},
		ClassJPY:    {PipSize: 0.01, TickSize: 0.001, MaxStopPips: 30},
		ClassMetal:  {PipSize: 0.1, TickSize: 0.01, MaxStopPips: 30},
		ClassIndex:  {PipSize: 1, TickSize: 0.1, MaxStopPips: 30},
		ClassCrypto: {TickSize: 0.01, MaxStopPips: 150, BasisPoints: true},
	}
}

var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "NZD": true, "CAD": true, "SEK": true, "NOK": true,
	"DKK": true, "SGD": true, "HKD": true, "MXN": true, "ZAR": true,
	"TRY": true, "PLN": true, "CNH": true,
}

var indexSymbols = map[string]bool{
	"US30": true, "US500": true, "SPX500": true, "NAS100": true, "US100": true,
	"GER40": true, "DE40": true, "UK100": true, "JPN225": true, "FRA40": true,
	"AUS200": true, "HK50": true,
}

var metalPrefixes = []string{"XAU", "XAG", "XPT", "XPD"}

// normalizeSymbol uppercases and strips separators
func normalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("/", "", "-", "", "_", "", ".", "").Replace(s)
}

// ClassOf resolves the asset class of a symbol. Explicit overrides win;
// otherwise the symbol shape decides and anything unrecognised (BTCUSDT,
// ETHBTC) is crypto.
func ClassOf(symbol string, overrides map[string]AssetClass) AssetClass {
	sym := normalizeSymbol(symbol)
	if c, ok := overrides[sym]; ok {
		return c
	}
	if c, ok := overrides[symbol]; ok {
		return c
	}

	for _, p := range metalPrefixes {
		if strings.HasPrefix(sym, p) {
			return ClassMetal
		}
	}
	if indexSymbols[sym] {
		return ClassIndex
	}
	if len(sym) == 6 && isoCurrencies[sym[:3]] && isoCurrencies[sym[3:]] {
		if strings.Contains(sym, "JPY") {
			return ClassJPY
		}
		return ClassForex
	}
	return ClassCrypto
}
