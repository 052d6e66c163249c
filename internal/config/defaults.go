package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"
	defaultAppLogPath  = "data/logs/tfmr.log"
	defaultAppDataDir  = "data"

	defaultUniverseName  = "nasdaq"
	defaultUniverseREST  = "https://api.nasdaq.com"
	defaultUniverseCache = "data/cache/universe.json"
	defaultUniverseTTL   = 24
	defaultUniverseMax   = 100

	defaultFeedBaseURL  = "https://query1.finance.yahoo.com"
	defaultFeedRange    = "25y"
	defaultFeedInterval = "1wk"
	defaultFeedTimeout  = 12
	defaultFeedRetries  = 2
	defaultFeedBackoff  = 600
	defaultFeedRate     = 4.0
	defaultFeedCache    = "data/cache/bars.db"
	defaultFeedTTL      = 6

	defaultScanConcurrency = 8
	defaultScanDebounce    = 300
	defaultScanCapacity    = 256

	defaultProfilesPath = "configs/profiles.yaml"
	defaultStorePath    = "data/tfmr.db"

	defaultChartDir     = "data/charts"
	defaultChartWidth   = 1280
	defaultChartHeight  = 720
	defaultChartTimeout = 30
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Universe.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Scan.applyDefaults(keys)
	c.Profiles.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Chart.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (u *UniverseConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	if len(u.Sources) == 0 {
		u.Sources = []UniverseSource{{
			Name:        defaultUniverseName,
			Enabled:     true,
			RESTBaseURL: defaultUniverseREST,
		}}
	}
	for i := range u.Sources {
		src := &u.Sources[i]
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultUniverseName
			} else {
				src.Name = fmt.Sprintf("universe_%d", i)
			}
		}
	}
	if strings.TrimSpace(u.ActiveSource) == "" {
		u.ActiveSource = firstEnabledSource(u.Sources)
	}
	applyFieldDefaults(keys,
		stringFieldDefault("universe.cache_path", &u.CachePath, defaultUniverseCache),
		fieldDefault{
			key:   "universe.cache_ttl_hours",
			need:  func() bool { return u.CacheTTLHrs <= 0 },
			apply: func() { u.CacheTTLHrs = defaultUniverseTTL },
		},
		fieldDefault{
			key:   "universe.max_tickers",
			need:  func() bool { return u.MaxTickers <= 0 },
			apply: func() { u.MaxTickers = defaultUniverseMax },
		},
	)
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("feed.base_url", &f.BaseURL, defaultFeedBaseURL),
		stringFieldDefault("feed.range", &f.Range, defaultFeedRange),
		stringFieldDefault("feed.interval", &f.Interval, defaultFeedInterval),
		stringFieldDefault("feed.cache_path", &f.CachePath, defaultFeedCache),
		fieldDefault{
			key:   "feed.timeout_seconds",
			need:  func() bool { return f.TimeoutSeconds <= 0 },
			apply: func() { f.TimeoutSeconds = defaultFeedTimeout },
		},
		fieldDefault{
			key:   "feed.retry_attempts",
			need:  func() bool { return f.RetryAttempts <= 0 },
			apply: func() { f.RetryAttempts = defaultFeedRetries },
		},
		fieldDefault{
			key:   "feed.retry_backoff_ms",
			need:  func() bool { return f.RetryBackoffMS <= 0 },
			apply: func() { f.RetryBackoffMS = defaultFeedBackoff },
		},
		fieldDefault{
			key:   "feed.rate_per_second",
			need:  func() bool { return f.RatePerSecond <= 0 },
			apply: func() { f.RatePerSecond = defaultFeedRate },
		},
		fieldDefault{
			key:   "feed.cache_ttl_hours",
			need:  func() bool { return f.CacheTTLHrs <= 0 },
			apply: func() { f.CacheTTLHrs = defaultFeedTTL },
		},
	)
}

func (s *ScanConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "scan.concurrency",
			need:  func() bool { return s.Concurrency <= 0 },
			apply: func() { s.Concurrency = defaultScanConcurrency },
		},
		fieldDefault{
			key:   "scan.debounce_ms",
			need:  func() bool { return s.DebounceMS <= 0 },
			apply: func() { s.DebounceMS = defaultScanDebounce },
		},
		fieldDefault{
			key:   "scan.result_capacity",
			need:  func() bool { return s.ResultCapacity <= 0 },
			apply: func() { s.ResultCapacity = defaultScanCapacity },
		},
	)
	if s.MinBars < 0 {
		s.MinBars = 0
	}
}

func (p *ProfilesConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profiles.path", &p.Path, defaultProfilesPath),
		boolFieldDefault("profiles.watch", &p.Watch, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (c *ChartConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("chart.output_dir", &c.OutputDir, defaultChartDir),
		fieldDefault{
			key:   "chart.width",
			need:  func() bool { return c.Width <= 0 },
			apply: func() { c.Width = defaultChartWidth },
		},
		fieldDefault{
			key:   "chart.height",
			need:  func() bool { return c.Height <= 0 },
			apply: func() { c.Height = defaultChartHeight },
		},
		fieldDefault{
			key:   "chart.render_timeout_seconds",
			need:  func() bool { return c.RenderTimeoutS <= 0 },
			apply: func() { c.RenderTimeoutS = defaultChartTimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledSource(sources []UniverseSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultUniverseName
}
