package app

import (
	"fmt"
	"strings"

	"tfmr/internal/chart"
	"tfmr/internal/config"
	"tfmr/internal/feed"
	"tfmr/internal/logger"
	"tfmr/internal/profile"
	"tfmr/internal/scanner"
	"tfmr/internal/store"
	apihttp "tfmr/internal/transport/http/api"
	"tfmr/internal/universe"
)

func build(cfg *config.Config) (*App, error) {
	profiles, err := buildProfileLoader(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 券商档案: %v (激活 %s)", profiles.Snapshot().Names(), cfg.Sim.ActiveProfile)

	universeSvc := buildUniverseService(cfg.Universe)

	barCache, err := feed.NewBarCache(cfg.Feed.CachePath)
	if err != nil {
		return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
	}
	feedSvc := feed.NewService(
		feed.NewYahooSource(feed.YahooOptions{
			BaseURL:       cfg.Feed.BaseURL,
			Range:         cfg.Feed.Range,
			Interval:      cfg.Feed.Interval,
			Timeout:       cfg.Feed.Timeout(),
			RatePerSecond: cfg.Feed.RatePerSecond,
		}),
		barCache,
		feed.ServiceOptions{
			CacheTTL: cfg.Feed.CacheTTL(),
			Retries:  cfg.Feed.RetryAttempts,
			Backoff:  cfg.Feed.RetryBackoff(),
		},
	)

	results, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	renderer := chart.New(chart.Options{
		OutputDir:     cfg.Chart.OutputDir,
		Width:         cfg.Chart.Width,
		Height:        cfg.Chart.Height,
		RenderPNG:     cfg.Chart.RenderPNG,
		RenderTimeout: cfg.Chart.RenderTimeout(),
	})

	scanSvc, err := scanner.NewService(scanner.Deps{
		Feed:            feedSvc,
		Universe:        universeSvc,
		Store:           results,
		Profiles:        profiles,
		Charts:          renderer,
		DefaultStrategy: cfg.Strategy.Params(),
		DefaultSim:      cfg.Sim.Params(),
		ActiveProfile:   cfg.Sim.ActiveProfile,
		Options: scanner.Options{
			Concurrency: cfg.Scan.Concurrency,
			MinBars:     cfg.Scan.MinBars,
		},
		Debounce:    cfg.Scan.Debounce(),
		JobCapacity: cfg.Scan.ResultCapacity,
	})
	if err != nil {
		return nil, err
	}

	server, err := apihttp.NewServer(apihttp.Config{
		Addr:     cfg.App.HTTPAddr,
		Svc:      scanSvc,
		Results:  results,
		Profiles: profiles,
		Universe: universeSvc,
	})
	if err != nil {
		results.Close()
		barCache.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		scanSvc:  scanSvc,
		server:   server,
		results:  results,
		barCache: barCache,
	}, nil
}

func buildProfileLoader(cfg config.ProfilesConfig) (*profile.Loader, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return profile.NewStatic(), nil
	}
	loader, err := profile.NewLoader(cfg.Path, cfg.Watch)
	if err != nil {
		// 档案文件缺失或非法时退到内置档案，不阻塞启动
		logger.Warnf("加载券商档案 %s 失败，使用内置档案: %v", cfg.Path, err)
		return profile.NewStatic(), nil
	}
	return loader, nil
}

// buildUniverseService 按配置组装票池来源链：激活来源优先，
// 其余启用的来源兜底，硬编码列表永远垫底。
func buildUniverseService(cfg config.UniverseConfig) *universe.Service {
	limit := cfg.MaxTickers
	active := cfg.ResolveActiveSource()

	var providers []universe.Provider
	add := func(src config.UniverseSource) {
		switch strings.ToLower(strings.TrimSpace(src.Name)) {
		case "nasdaq":
			providers = append(providers, universe.NewNasdaqProvider(src.RESTBaseURL, limit))
		case "tradingview":
			providers = append(providers, universe.NewTradingViewProvider(src.RESTBaseURL, limit))
		case "static":
			providers = append(providers, universe.NewStaticProvider(nil))
		default:
			logger.Warnf("忽略未知票池来源 %q", src.Name)
		}
	}

	add(active)
	for _, src := range cfg.Sources {
		if !src.Enabled || strings.EqualFold(src.Name, active.Name) {
			continue
		}
		add(src)
	}
	hasStatic := false
	for _, p := range providers {
		if p.Name() == "static" {
			hasStatic = true
			break
		}
	}
	if !hasStatic {
		providers = append(providers, universe.NewStaticProvider(nil))
	}

	return universe.NewService(providers, cfg.CachePath, cfg.CacheTTL(), limit)
}
