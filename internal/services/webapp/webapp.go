package webapp

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"incoming-inspector/internal/adapters/backend"
	"incoming-inspector/internal/adapters/catalog"
	sqliteadapter "incoming-inspector/internal/adapters/store/sqlite"
	"incoming-inspector/internal/app"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/incoming"
	"incoming-inspector/internal/services/privacy"
)

// 注意：
// - go:embed 的路径必须相对当前包目录，且不能包含 ".."
// - ui_dist/ 至少要有一个文件（本仓库已放置占位 index.html），否则 go:embed 会因“无匹配文件”而编译失败。
//
//go:embed ui_dist
var uiFS embed.FS

// Options 定义 Web UI + API 服务启动参数。
type Options struct {
	Config app.Config
	Logger logging.Logger
}

// Run 启动检验服务：
// - 打开 SQLite 并迁移
// - 加载检验清单并监听文件变化
// - 组装远端维护系统客户端与会话服务，对外提供 /api 与内置 UI
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := sqliteadapter.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqliteadapter.NewStore(db)

	metrics := NewMetrics()

	provider := catalog.NewProvider(catalog.NewLoader(cfg.CatalogPath))
	if _, err := provider.Reload(ctx); err != nil {
		// 清单不可用时服务照常启动，/api/catalog 返回 503，等待文件修复后由 watcher 重新加载。
		metrics.ObserveCatalogReload("failed")
		log.Warn("initial catalog load failed", logging.F("path", cfg.CatalogPath), logging.Err(err))
	} else {
		metrics.ObserveCatalogReload("changed")
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	client.Token = cfg.BackendToken
	client.OnRequest = metrics.ObserveBackend

	svc := incoming.NewService(incoming.Deps{
		Backend:  client,
		Catalog:  provider,
		Recorder: store,
		Logger:   log.With(logging.F("component", "incoming")),
		Observer: metrics,
	})
	provider.Subscribe(func(*catalog.Loaded) {
		svc.OnCatalogChange(ctx)
	})

	watcher := catalog.NewWatcher(provider, cfg.CatalogDebounce, log.With(logging.F("component", "catalog")), metrics.ObserveCatalogReload)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error("catalog watcher stopped", logging.Err(err))
		}
	}()

	s, err := NewServer(Deps{
		Config:  cfg,
		Logger:  log,
		Store:   store,
		Catalog: provider,
		Users:   client,
		Service: svc,
		Metrics: metrics,

		BaseContext: ctx,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("webapp listening", logging.F("addr", "http://"+cfg.ListenAddr), logging.F("backend", privacy.MaskURL(cfg.BackendURL)), logging.F("backend_token", privacy.MaskToken(cfg.BackendToken)))
	err = httpServer.ListenAndServe()
	// 导出任务随 ctx 取消；等它们退出后才能关闭数据库。
	s.WaitJobs()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func uiRoot() (fs.FS, error) {
	sub, err := fs.Sub(uiFS, "ui_dist")
	if err != nil {
		return nil, fmt.Errorf("sub ui fs: %w", err)
	}
	return sub, nil
}
