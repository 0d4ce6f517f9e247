package validators

import (
	"strings"
)

// CorrelationGroup is a basket of symbols that tend to move together
type CorrelationGroup string

const (
	GroupUSDMajors CorrelationGroup = "usd_majors"
	GroupEURCross  CorrelationGroup = "eur_crosses"
	GroupCommodity CorrelationGroup = "commodity_bloc"
	GroupJPY       CorrelationGroup = "jpy_crosses"
	GroupMetals    CorrelationGroup = "metals"
	GroupCrypto    CorrelationGroup = "crypto_majors"
)

var correlationTable = map[CorrelationGroup][]string{
	GroupUSDMajors: {"EURUSD", "GBPUSD", "AUDUSD", "NZDUSD", "USDCHF", "USDCAD", "USDJPY"},
	GroupEURCross:  {"EURGBP", "EURJPY", "EURCHF", "EURAUD", "EURCAD", "EURNZD"},
	GroupCommodity: {"AUDUSD", "NZDUSD", "USDCAD", "AUDNZD", "AUDCAD", "NZDCAD"},
	GroupJPY:       {"USDJPY", "EURJPY", "GBPJPY", "AUDJPY", "CADJPY", "CHFJPY", "NZDJPY"},
	GroupMetals:    {"XAUUSD", "XAGUSD", "XPTUSD", "XPDUSD"},
	GroupCrypto:    {"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT", "BTCUSD", "ETHUSD"},
}

var cryptoQuotes = []string{"USDT", "USDC", "BUSD"}

// normalizeSymbol uppercases and strips separators ("eur/usd" -> "EURUSD")
func normalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

// GroupsOf returns every correlation group the symbol belongs to. Any
// stablecoin-quoted pair falls into the crypto group.
func GroupsOf(symbol string) []CorrelationGroup {
	sym := normalizeSymbol(symbol)
	var out []CorrelationGroup
	for _, g := range []CorrelationGroup{GroupUSDMajors, GroupEURCross, GroupCommodity, GroupJPY, GroupMetals, GroupCrypto} {
		for _, s := range correlationTable[g] {
			if s == sym {
				out = append(out, g)
				break
			}
		}
	}
	if len(out) == 0 || out[len(out)-1] != GroupCrypto {
		for _, q := range cryptoQuotes {
			if strings.HasSuffix(sym, q) && len(sym) > len(q) {
				out = append(out, GroupCrypto)
				break
			}
		}
	}
	return out
}

// Correlated reports whether two symbols share a correlation group. A symbol
// is always correlated with itself.
func Correlated(a, b string) bool {
	na, nb := normalizeSymbol(a), normalizeSymbol(b)
	if na == nb {
		return true
	}
	ga := GroupsOf(na)
	for _, g := range GroupsOf(nb) {
		for _, h := range ga {
			if g == h {
				return true
			}
		}
	}
	return false
}
