package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tfmr/internal/logger"
	"tfmr/internal/market"
)

// Service 把来源与缓存拼成带重试的行情入口。
type Service struct {
	source  Source
	cache   *BarCache
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// ServiceOptions 控制缓存时效与重试节奏。
type ServiceOptions struct {
	CacheTTL time.Duration // 缺省 6h
	Retries  int           // 额外重试次数，缺省 2
	Backoff  time.Duration // 第 n 次重试前等 n*Backoff，缺省 600ms
}

// NewService 构造行情服务。cache 可以为 nil（纯直连）。
func NewService(source Source, cache *BarCache, opts ServiceOptions) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 600 * time.Millisecond
	}
	return &Service{
		source:  source,
		cache:   cache,
		ttl:     opts.CacheTTL,
		retries: opts.Retries,
		backoff: opts.Backoff,
	}
}

// WeeklyBars 返回一个标的的周线：新鲜缓存直接命中，否则拉取来源，
// 来源全挂时回落过期缓存。未知标的不重试。
func (s *Service) WeeklyBars(ctx context.Context, symbol string) (market.Series, error) {
	if s.cache != nil {
		bars, fetchedAt, err := s.cache.Get(ctx, symbol)
		if err != nil {
			logger.Warnf("feed: cache read failed for %s: %v", symbol, err)
		} else if len(bars) > 0 && time.Since(fetchedAt) <= s.ttl {
			return bars, nil
		}
	}

	bars, err := s.fetchWithRetry(ctx, symbol)
	if err == nil {
		if s.cache != nil {
			if cerr := s.cache.Put(ctx, symbol, s.source.Name(), bars); cerr != nil {
				logger.Warnf("feed: cache write failed for %s: %v", symbol, cerr)
			}
		}
		return bars, nil
	}
	if errors.Is(err, ErrUnknownSymbol) {
		return nil, err
	}

	if s.cache != nil {
		stale, fetchedAt, cerr := s.cache.Get(ctx, symbol)
		if cerr == nil && len(stale) > 0 {
			logger.Warnf("feed: source failed for %s, using stale bars from %s", symbol, fetchedAt.Format(time.RFC3339))
			return stale, nil
		}
	}
	return nil, fmt.Errorf("fetching bars for %s failed: %w", symbol, err)
}

func (s *Service) fetchWithRetry(ctx context.Context, symbol string) (market.Series, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
			logger.Debugf("feed: retry %d/%d for %s", attempt, s.retries, symbol)
		}
		bars, err := s.source.WeeklyBars(ctx, symbol)
		if err == nil {
			return bars, nil
		}
		if errors.Is(err, ErrUnknownSymbol) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
