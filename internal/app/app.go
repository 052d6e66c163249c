package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tfmr/internal/config"
	"tfmr/internal/feed"
	"tfmr/internal/logger"
	"tfmr/internal/scanner"
	"tfmr/internal/store"
	apihttp "tfmr/internal/transport/http/api"
)

// App 负责应用级编排：加载配置→初始化依赖→启动扫描服务与 HTTP API。
type App struct {
	cfg      *config.Config
	scanSvc  *scanner.Service
	server   *apihttp.Server
	results  *store.Store
	barCache *feed.BarCache
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run 启动 HTTP 服务并绑定后台任务上下文，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	a.scanSvc.Start(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP API 监听 %s", a.cfg.App.HTTPAddr)
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放存储资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.barCache != nil {
		_ = a.barCache.Close()
	}
}

// ScanService 暴露编排服务实例（供测试或一次性 CLI 调用）。
func (a *App) ScanService() *scanner.Service {
	if a == nil {
		return nil
	}
	return a.scanSvc
}
