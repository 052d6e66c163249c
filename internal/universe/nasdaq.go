package universe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// NasdaqProvider 从 NASDAQ 股票筛选器拉取大市值票池。
type NasdaqProvider struct {
	BaseURL string
	Limit   int
	Client  *http.Client
}

func NewNasdaqProvider(baseURL string, limit int) *NasdaqProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.nasdaq.com"
	}
	if limit <= 0 {
		limit = 100
	}
	return &NasdaqProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Limit:   limit,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *NasdaqProvider) Name() string { return "nasdaq" }

func (p *NasdaqProvider) List(ctx context.Context) ([]Ticker, error) {
	// 多拉一倍再归并股类，避免去重后不足 limit
	url := fmt.Sprintf("%s/api/screener/stocks?tableonly=true&limit=%d&download=true", p.BaseURL, p.Limit*2)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	// 裸 UA 会被筛选器接口拒绝
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching screener: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return parseScreenerRows(body, p.Limit)
}

// parseScreenerRows 解析筛选器响应。download=true 时行在 data.rows，
// 表格模式在 data.table.rows，两处都试。
func parseScreenerRows(body []byte, limit int) ([]Ticker, error) {
	rows := gjson.GetBytes(body, "data.rows")
	if !rows.Exists() {
		rows = gjson.GetBytes(body, "data.table.rows")
	}
	if !rows.Exists() || !rows.IsArray() {
		return nil, fmt.Errorf("screener response missing rows")
	}
	var out []Ticker
	rows.ForEach(func(_, row gjson.Result) bool {
		t := Ticker{
			Symbol:    row.Get("symbol").String(),
			Name:      row.Get("name").String(),
			MarketCap: parseMarketCap(row.Get("marketCap").String()),
		}
		if t.Symbol != "" {
			out = append(out, t)
		}
		return true
	})
	return Normalize(out, limit)
}

// parseMarketCap 解析 "$3,450,000,000" 一类的市值字符串，解析失败记 0。
func parseMarketCap(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "NA" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
