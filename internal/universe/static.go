package universe

import "context"

// fallbackTop100 是网络不可用时兜底的美股大市值票池（硬编码快照，非实时排名）。
var fallbackTop100 = []string{
	"AAPL", "MSFT", "NVDA", "GOOGL", "AMZN", "META", "AVGO", "TSLA", "LLY", "JPM",
	"WMT", "V", "XOM", "UNH", "ORCL", "MA", "HD", "PG", "COST", "JNJ",
	"NFLX", "ABBV", "BAC", "CRM", "CVX", "KO", "AMD", "PEP", "TMO", "WFC",
	"CSCO", "ADBE", "MRK", "LIN", "ACN", "MCD", "ABT", "PM", "IBM", "TXN",
	"GE", "INTU", "QCOM", "ISRG", "CAT", "DIS", "VZ", "AMGN", "PFE", "NOW",
	"SPGI", "CMCSA", "RTX", "UBER", "AXP", "T", "GS", "HON", "NEE", "LOW",
	"BKNG", "UNP", "MS", "ELV", "BLK", "SYK", "TJX", "LMT", "SCHW", "COP",
	"VRTX", "BSX", "PLD", "C", "ADP", "MU", "PANW", "ANET", "MDT", "SBUX",
	"BMY", "ETN", "GILD", "ADI", "LRCX", "MMC", "INTC", "KLAC", "CB", "AMT",
	"SO", "DE", "MO", "CI", "DUK", "ICE", "PYPL", "SHW", "SNPS", "CDNS",
}

// StaticProvider 默认实现：静态列表
type StaticProvider struct{ tickers []Ticker }

// NewStaticProvider 用给定符号构造静态票池；为空时使用内置 Top100。
func NewStaticProvider(symbols []string) *StaticProvider {
	if len(symbols) == 0 {
		symbols = fallbackTop100
	}
	tickers := make([]Ticker, 0, len(symbols))
	// 按列表顺序递减赋权，保证 Normalize 排序后顺序稳定
	for i, sym := range symbols {
		tickers = append(tickers, Ticker{Symbol: sym, MarketCap: float64(len(symbols) - i)})
	}
	return &StaticProvider{tickers: tickers}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) List(_ context.Context) ([]Ticker, error) {
	return Normalize(p.tickers, 0)
}
