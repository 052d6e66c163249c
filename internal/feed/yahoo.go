package feed

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"tfmr/internal/market"
)

// Source 行情来源接口
type Source interface {
	WeeklyBars(ctx context.Context, symbol string) (market.Series, error)
	Name() string
}

// YahooSource 从 Yahoo Finance chart 接口拉取周线。
type YahooSource struct {
	BaseURL  string
	Range    string
	Interval string
	Client   *http.Client

	limiter *rate.Limiter
}

// YahooOptions 控制抓取口径与节流。
type YahooOptions struct {
	BaseURL       string
	Range         string        // 缺省 25y
	Interval      string        // 缺省 1wk
	Timeout       time.Duration // 缺省 12s
	RatePerSecond float64       // 缺省 4 req/s
}

func NewYahooSource(opts YahooOptions) *YahooSource {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://query1.finance.yahoo.com"
	}
	if strings.TrimSpace(opts.Range) == "" {
		opts.Range = "25y"
	}
	if strings.TrimSpace(opts.Interval) == "" {
		opts.Interval = "1wk"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 4
	}
	return &YahooSource{
		BaseURL:  strings.TrimRight(opts.BaseURL, "/"),
		Range:    opts.Range,
		Interval: opts.Interval,
		Client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

// WeeklyBars 拉取单个标的的周线序列。受速率限制约束。
func (s *YahooSource) WeeklyBars(ctx context.Context, symbol string) (market.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s&events=div%%2Csplit",
		s.BaseURL, url.PathEscape(symbol), url.QueryEscape(s.Range), url.QueryEscape(s.Interval))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return parseChart(body, symbol)
}

// ErrUnknownSymbol 表示来源不认识这个标的。
var ErrUnknownSymbol = fmt.Errorf("unknown symbol")

// parseChart 解析 v8 chart 响应。OHLC 任一为 null 的行整根丢弃。
func parseChart(body []byte, symbol string) (market.Series, error) {
	if msg := gjson.GetBytes(body, "chart.error.description"); msg.Exists() && msg.String() != "" {
		return nil, fmt.Errorf("chart error for %s: %s", symbol, msg.String())
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("chart response missing result for %s", symbol)
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()

	n := len(timestamps)
	if n == 0 || len(closes) != n {
		return nil, fmt.Errorf("chart response malformed for %s", symbol)
	}
	out := make(market.Series, 0, n)
	for i := 0; i < n; i++ {
		bar := market.Bar{
			Date:  time.Unix(timestamps[i].Int(), 0).UTC(),
			Open:  floatAt(opens, i),
			High:  floatAt(highs, i),
			Low:   floatAt(lows, i),
			Close: floatAt(closes, i),
		}
		if math.IsNaN(bar.Open) || math.IsNaN(bar.High) || math.IsNaN(bar.Low) || math.IsNaN(bar.Close) {
			continue
		}
		out = append(out, bar)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chart response has no usable bars for %s", symbol)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("chart bars invalid for %s: %w", symbol, err)
	}
	return out, nil
}

func floatAt(arr []gjson.Result, i int) float64 {
	if i >= len(arr) {
		return math.NaN()
	}
	v := arr[i]
	if v.Type == gjson.Null {
		return math.NaN()
	}
	return v.Float()
}
