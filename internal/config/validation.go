package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Universe.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Sim.validate(); err != nil {
		return err
	}
	if err := c.Scan.validate(); err != nil {
		return err
	}
	return nil
}

func (u *UniverseConfig) validate() error {
	if len(u.Sources) == 0 {
		return fmt.Errorf("universe.sources requires at least one source")
	}
	activeName := strings.ToLower(strings.TrimSpace(u.ActiveSource))
	enabled := 0
	activeFound := false
	for _, src := range u.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.ToLower(strings.TrimSpace(src.Name)) != "static" && strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("universe source %s missing rest_base_url", src.Name)
		}
		if activeName == "" || strings.ToLower(strings.TrimSpace(src.Name)) == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("universe.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled universe.active_source=%s not found", u.ActiveSource)
	}
	if u.MaxTickers < 0 {
		return fmt.Errorf("universe.max_tickers must be >= 0")
	}
	return nil
}

func (f *FeedConfig) validate() error {
	if strings.TrimSpace(f.BaseURL) == "" {
		return fmt.Errorf("feed.base_url cannot be empty")
	}
	if !IsValidInterval(f.Interval) {
		return fmt.Errorf("feed.interval is invalid: %s", f.Interval)
	}
	if !isValidRange(f.Range) {
		return fmt.Errorf("feed.range is invalid: %s", f.Range)
	}
	if f.RatePerSecond <= 0 {
		return fmt.Errorf("feed.rate_per_second must be > 0")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	// 均线窗口交给 Normalize 兜底，这里只拦明显矛盾的组合
	if s.GCFastMA > 0 && s.GCSlowMA > 0 && s.GCFastMA >= s.GCSlowMA {
		return fmt.Errorf("strategy.gc_fast_ma must be less than gc_slow_ma")
	}
	if s.LongFastMA > 0 && s.LongSlowMA > 0 && s.LongFastMA >= s.LongSlowMA {
		return fmt.Errorf("strategy.long_fast_ma must be less than long_slow_ma")
	}
	if s.StepDropPct < 0 {
		return fmt.Errorf("strategy.step_drop_pct must be >= 0")
	}
	if s.TargetPullbackMax < 0 {
		return fmt.Errorf("strategy.target_pullback_no must be >= 0")
	}
	return nil
}

func (s *SimConfig) validate() error {
	if s.InitialCapital < 0 {
		return fmt.Errorf("sim.initial_capital must be >= 0")
	}
	if s.MaxRounds < 0 {
		return fmt.Errorf("sim.max_rounds must be >= 0")
	}
	if s.BuyFeeRate < 0 || s.BuyFeeRate >= 1 {
		return fmt.Errorf("sim.buy_fee_rate must be in [0, 1)")
	}
	if s.SellFeeRate < 0 || s.SellFeeRate >= 1 {
		return fmt.Errorf("sim.sell_fee_rate must be in [0, 1)")
	}
	return nil
}

func (s *ScanConfig) validate() error {
	if s.Concurrency < 1 || s.Concurrency > 64 {
		return fmt.Errorf("scan.concurrency must be in [1,64]")
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/wk/mo 结尾
func IsValidInterval(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, suf := range []string{"wk", "mo", "m", "h", "d"} {
		if !strings.HasSuffix(s, suf) {
			continue
		}
		digits := s[:len(s)-len(suf)]
		if digits == "" {
			return false
		}
		for i := 0; i < len(digits); i++ {
			if digits[i] < '0' || digits[i] > '9' {
				return false
			}
		}
		return true
	}
	return false
}

// isValidRange 校验 Yahoo 风格的区间写法：Nd/Nmo/Ny 或 max
func isValidRange(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "max" {
		return true
	}
	for _, suf := range []string{"mo", "d", "y"} {
		if !strings.HasSuffix(s, suf) {
			continue
		}
		digits := s[:len(s)-len(suf)]
		if digits == "" {
			return false
		}
		for i := 0; i < len(digits); i++ {
			if digits[i] < '0' || digits[i] > '9' {
				return false
			}
		}
		return true
	}
	return false
}
