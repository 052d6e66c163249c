package universe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tfmr/internal/logger"
)

// Service 按 新鲜缓存 → 远端来源链 → 过期缓存 → 内置列表 的顺序解析票池。
type Service struct {
	providers []Provider
	cachePath string
	ttl       time.Duration
	limit     int
}

// NewService 构造票池服务。providers 按优先级排列；cachePath 为空则不落盘。
func NewService(providers []Provider, cachePath string, ttl time.Duration, limit int) *Service {
	return &Service{
		providers: providers,
		cachePath: strings.TrimSpace(cachePath),
		ttl:       ttl,
		limit:     limit,
	}
}

// Tickers 返回当前票池。除非所有来源与缓存都不可用，否则不返回错误。
func (s *Service) Tickers(ctx context.Context) ([]Ticker, error) {
	if s.cachePath != "" {
		if entry, err := readCache(s.cachePath); err == nil {
			if s.ttl <= 0 || time.Since(entry.FetchedAt) <= s.ttl {
				logger.Debugf("universe: cache hit (%s, %d tickers)", entry.Source, len(entry.Tickers))
				return s.capped(entry.Tickers), nil
			}
		}
	}

	var lastErr error
	for _, p := range s.providers {
		tickers, err := p.List(ctx)
		if err != nil {
			logger.Warnf("universe: source %s failed: %v", p.Name(), err)
			lastErr = err
			continue
		}
		logger.Infof("universe: %d tickers from %s", len(tickers), p.Name())
		if s.cachePath != "" {
			entry := cacheEntry{FetchedAt: time.Now(), Source: p.Name(), Tickers: tickers}
			if err := writeCache(s.cachePath, entry); err != nil {
				logger.Warnf("universe: cache write failed: %v", err)
			}
		}
		return s.capped(tickers), nil
	}

	// 全部来源失效：过期缓存也比空手强
	if s.cachePath != "" {
		if entry, err := readCache(s.cachePath); err == nil {
			logger.Warnf("universe: all sources failed, using stale cache from %s", entry.FetchedAt.Format(time.RFC3339))
			return s.capped(entry.Tickers), nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("resolving universe failed: %w", lastErr)
	}
	return nil, fmt.Errorf("no universe source configured")
}

func (s *Service) capped(tickers []Ticker) []Ticker {
	if s.limit > 0 && len(tickers) > s.limit {
		return tickers[:s.limit]
	}
	return tickers
}
