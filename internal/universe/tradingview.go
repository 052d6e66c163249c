package universe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// TradingViewProvider 用 TradingView 扫描接口做次选票池来源。
type TradingViewProvider struct {
	BaseURL string
	Limit   int
	Client  *http.Client
}

func NewTradingViewProvider(baseURL string, limit int) *TradingViewProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://scanner.tradingview.com"
	}
	if limit <= 0 {
		limit = 100
	}
	return &TradingViewProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Limit:   limit,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *TradingViewProvider) Name() string { return "tradingview" }

func (p *TradingViewProvider) List(ctx context.Context) ([]Ticker, error) {
	payload := map[string]any{
		"columns": []string{"name", "description", "market_cap_basic"},
		"sort":    map[string]any{"sortBy": "market_cap_basic", "sortOrder": "desc"},
		"range":   []int{0, p.Limit * 2},
		"markets": []string{"america"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding scan request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/america/scan", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return parseScanRows(body, p.Limit)
}

// parseScanRows 解析 {"data":[{"s":"NASDAQ:AAPL","d":["AAPL","Apple Inc.",3.4e12]}]}。
func parseScanRows(body []byte, limit int) ([]Ticker, error) {
	rows := gjson.GetBytes(body, "data")
	if !rows.Exists() || !rows.IsArray() {
		return nil, fmt.Errorf("scan response missing data")
	}
	var out []Ticker
	rows.ForEach(func(_, row gjson.Result) bool {
		d := row.Get("d").Array()
		if len(d) < 3 {
			return true
		}
		out = append(out, Ticker{
			Symbol:    d[0].String(),
			Name:      d[1].String(),
			MarketCap: d[2].Float(),
		})
		return true
	})
	return Normalize(out, limit)
}
