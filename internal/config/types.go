package config

import (
	"strings"
	"time"

	"tfmr/internal/backtest"
)

// Config 是 TFMR 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Universe UniverseConfig `toml:"universe"`
	Feed     FeedConfig     `toml:"feed"`
	Strategy StrategyConfig `toml:"strategy"`
	Sim      SimConfig      `toml:"sim"`
	Scan     ScanConfig     `toml:"scan"`
	Profiles ProfilesConfig `toml:"profiles"`
	Store    StoreConfig    `toml:"store"`
	Chart    ChartConfig    `toml:"chart"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	DataDir  string `toml:"data_dir"`
}

// UniverseConfig 决定候选票池从哪里来。
type UniverseConfig struct {
	ActiveSource string           `toml:"active_source"`
	Sources      []UniverseSource `toml:"sources"`
	CachePath    string           `toml:"cache_path"`
	CacheTTLHrs  int              `toml:"cache_ttl_hours"`
	MaxTickers   int              `toml:"max_tickers"`
}

type UniverseSource struct {
	Name        string `toml:"name"`
	Enabled     bool   `toml:"enabled"`
	RESTBaseURL string `toml:"rest_base_url"`
}

func (u UniverseConfig) CacheTTL() time.Duration {
	return time.Duration(u.CacheTTLHrs) * time.Hour
}

// ResolveActiveSource 返回当前启用的票池来源；没配时退到 NASDAQ 筛选器。
func (u UniverseConfig) ResolveActiveSource() UniverseSource {
	if len(u.Sources) == 0 {
		return UniverseSource{
			Name:        "nasdaq",
			Enabled:     true,
			RESTBaseURL: "https://api.nasdaq.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(u.ActiveSource))
	var fallback UniverseSource
	for _, src := range u.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// FeedConfig 描述周线行情的抓取与缓存口径。
type FeedConfig struct {
	BaseURL        string  `toml:"base_url"`
	Range          string  `toml:"range"`    // 例如 "25y"
	Interval       string  `toml:"interval"` // 例如 "1wk"
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RetryAttempts  int     `toml:"retry_attempts"`
	RetryBackoffMS int     `toml:"retry_backoff_ms"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	CachePath      string  `toml:"cache_path"`
	CacheTTLHrs    int     `toml:"cache_ttl_hours"`
}

func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FeedConfig) RetryBackoff() time.Duration {
	return time.Duration(f.RetryBackoffMS) * time.Millisecond
}

func (f FeedConfig) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLHrs) * time.Hour
}

// StrategyConfig 与 backtest.StrategyParams 同构，多一层配置文件口径。
type StrategyConfig struct {
	GCFastMA          int     `toml:"gc_fast_ma"`
	GCSlowMA          int     `toml:"gc_slow_ma"`
	PullbackShortMA   int     `toml:"pullback_short_ma"`
	PullbackBaseMA    int     `toml:"pullback_base_ma"`
	LongFastMA        int     `toml:"long_fast_ma"`
	LongSlowMA        int     `toml:"long_slow_ma"`
	TargetPullbackMax int     `toml:"target_pullback_no"`
	StepDropPct       float64 `toml:"step_drop_pct"`

	RequireLongMAOrder      *bool `toml:"require_long_ma_order"`
	RequireCloseAboveLongMA *bool `toml:"require_close_above_long_ma"`
	RequireBearishEntry     *bool `toml:"require_bearish_entry"`
}

// Params 把配置折算成引擎参数；未显式设置的布尔过滤沿用策略默认值。
func (s StrategyConfig) Params() backtest.StrategyParams {
	def := backtest.DefaultStrategyParams()
	p := backtest.StrategyParams{
		GCFastMA:                s.GCFastMA,
		GCSlowMA:                s.GCSlowMA,
		PullbackShortMA:         s.PullbackShortMA,
		PullbackBaseMA:          s.PullbackBaseMA,
		LongFastMA:              s.LongFastMA,
		LongSlowMA:              s.LongSlowMA,
		TargetPullbackMax:       s.TargetPullbackMax,
		StepDropPct:             s.StepDropPct,
		RequireLongMAOrder:      resolveBool(s.RequireLongMAOrder, def.RequireLongMAOrder),
		RequireCloseAboveLongMA: resolveBool(s.RequireCloseAboveLongMA, def.RequireCloseAboveLongMA),
		RequireBearishEntry:     resolveBool(s.RequireBearishEntry, def.RequireBearishEntry),
	}
	return p.Normalize()
}

// SimConfig 对应模拟资金与费率；费率为空时由券商档案补齐。
type SimConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	MaxRounds      int     `toml:"max_rounds"`
	Multiplier     float64 `toml:"multiplier"`
	ActiveProfile  string  `toml:"active_profile"`
	BuyFeeRate     float64 `toml:"buy_fee_rate"`
	SellFeeRate    float64 `toml:"sell_fee_rate"`
	UseKRFeeModel  *bool   `toml:"use_kr_fee_model"`
}

// Params 折算成引擎模拟参数。
func (s SimConfig) Params() backtest.SimParams {
	def := backtest.DefaultSimParams()
	p := backtest.SimParams{
		InitialCapital: s.InitialCapital,
		MaxRounds:      s.MaxRounds,
		Multiplier:     s.Multiplier,
		BuyFeeRate:     s.BuyFeeRate,
		SellFeeRate:    s.SellFeeRate,
		UseKRFeeModel:  resolveBool(s.UseKRFeeModel, def.UseKRFeeModel),
	}
	return p.Normalize()
}

// ScanConfig 控制全池扫描的并发与节流。
type ScanConfig struct {
	Concurrency    int `toml:"concurrency"`
	MinBars        int `toml:"min_bars"`
	DebounceMS     int `toml:"debounce_ms"`
	ResultCapacity int `toml:"result_capacity"`
}

func (s ScanConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// ProfilesConfig 指向券商费率档案文件。
type ProfilesConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// ChartConfig 控制 K 线图渲染输出。
type ChartConfig struct {
	OutputDir      string `toml:"output_dir"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	RenderPNG      bool   `toml:"render_png"`
	RenderTimeoutS int    `toml:"render_timeout_seconds"`
}

func (c ChartConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutS) * time.Second
}

func resolveBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
