package universe

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// Ticker 是票池中的一个候选标的。
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	MarketCap float64 `json:"market_cap"`
}

// Provider 票池来源接口
type Provider interface {
	List(ctx context.Context) ([]Ticker, error)
	Name() string
}

// Normalize 标准化票池：符号转大写去重、按市值降序、同发行人只留市值最大的一个。
func Normalize(in []Ticker, limit int) ([]Ticker, error) {
	if len(in) == 0 {
		return nil, errors.New("ticker list is empty")
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Ticker, 0, len(in))
	for _, t := range in {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" || strings.ContainsAny(sym, "^/") {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		t.Symbol = sym
		t.Name = strings.TrimSpace(t.Name)
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.New("ticker list is empty after normalization")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MarketCap > out[j].MarketCap })
	out = dedupeIssuers(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// 公司名里的组织形式与股类后缀，做发行人归并时忽略。
var issuerNoise = regexp.MustCompile(`(?i)[.,']|\b(inc|corp|corporation|company|co|ltd|plc|holdings?|group|class [abc]|common stock|ordinary shares?|adr|ads)\b`)

// dedupeIssuers 把 GOOG/GOOGL 这类同发行人多股类压成一条，保留市值更大的。
// 输入须已按市值降序。
func dedupeIssuers(in []Ticker) []Ticker {
	seen := make(map[string]struct{}, len(in))
	out := make([]Ticker, 0, len(in))
	for _, t := range in {
		key := issuerKey(t.Name)
		if key == "" {
			out = append(out, t)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func issuerKey(name string) string {
	cleaned := issuerNoise.ReplaceAllString(name, " ")
	fields := strings.Fields(strings.ToLower(cleaned))
	if len(fields) == 0 {
		return ""
	}
	// 只取前两个词，"Alphabet Inc. Class A" 与 "Alphabet Inc. Class C" 同键
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}
