package webapp

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"incoming-inspector/internal/adapters/catalog"
	sqliteadapter "incoming-inspector/internal/adapters/store/sqlite"
	"incoming-inspector/internal/app"
	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/incoming"
)

// UserResolver 根据 bearer token 解析当前检验员；token 无效时返回 (nil, nil)。
type UserResolver interface {
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// Deps 是 Server 的依赖集合。
type Deps struct {
	Config  app.Config
	Logger  logging.Logger
	Store   *sqliteadapter.Store
	Catalog *catalog.Provider
	Users   UserResolver
	Service *incoming.Service
	Metrics *Metrics

	// BaseContext 是后台导出任务的父 ctx；服务关闭时取消。为空时使用 context.Background()。
	BaseContext context.Context
}

// Server 是内置 Web UI/API 的运行时对象。
type Server struct {
	cfg     app.Config
	log     logging.Logger
	store   *sqliteadapter.Store
	catalog *catalog.Provider
	users   UserResolver
	svc     *incoming.Service
	metrics *Metrics

	ui      fs.FS
	jobs    *jobManager
	baseCtx context.Context
}

func NewServer(d Deps) (*Server, error) {
	if d.Store == nil || d.Catalog == nil || d.Service == nil {
		return nil, fmt.Errorf("webapp: store, catalog and service are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}
	ui, err := uiRoot()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     d.Config,
		log:     d.Logger,
		store:   d.Store,
		catalog: d.Catalog,
		users:   d.Users,
		svc:     d.Service,
		metrics: d.Metrics,
		ui:      ui,
		jobs:    newJobManager(),
		baseCtx: d.BaseContext,
	}, nil
}

// WaitJobs 等待所有后台导出任务结束。关闭数据库前必须调用。
func (s *Server) WaitJobs() {
	s.jobs.wg.Wait()
}

// Handler 返回注册好全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// API
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/meta", s.handleMeta)
	mux.HandleFunc("/api/catalog", s.withToken(s.handleCatalog))
	mux.HandleFunc("/api/catalog/reload", s.withToken(s.handleCatalogReload))
	mux.HandleFunc("/api/companies/", s.withToken(s.handleCompanyRoutes))
	mux.HandleFunc("/api/sessions", s.withToken(s.handleSessions))
	mux.HandleFunc("/api/sessions/", s.withToken(s.handleSessionRoutes))
	mux.HandleFunc("/api/inspections", s.withToken(s.handleInspections))
	mux.HandleFunc("/api/inspections/", s.withToken(s.handleInspectionRoutes))
	mux.HandleFunc("/api/reports/", s.withToken(s.handleReportRoutes))
	mux.HandleFunc("/api/jobs", s.handleJobRoutes)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)
	mux.Handle("/metrics", s.metrics.Handler())

	// UI（单页应用 + 静态资源）
	//
	// 规则：
	// - 先尝试按路径返回静态文件（/assets/*、/favicon.ico、/index.html ...）
	// - 如果文件不存在且看起来像“前端路由”（无扩展名），回落到 index.html（支持刷新/直达路由）
	// - 如果是缺失的静态资源（有扩展名），返回 404
	uiFileServer := http.FileServer(http.FS(s.ui))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.handleUI(w, r, uiFileServer)
	})
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request, uiFileServer http.Handler) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// "/" 直接交给 FileServer：改写到 /index.html 会被规范化重定向回 "./"。
	if r.URL.Path == "/" || r.URL.Path == "" {
		uiFileServer.ServeHTTP(w, r)
		return
	}

	reqPath := strings.TrimPrefix(r.URL.Path, "/")
	if reqPath != "" {
		if info, err := fs.Stat(s.ui, reqPath); err == nil && !info.IsDir() {
			uiFileServer.ServeHTTP(w, r)
			return
		}
	}

	// 缺失的资源：有扩展名 -> 404；无扩展名 -> SPA 回落 index.html
	if strings.Contains(reqPath, ".") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	uiFileServer.ServeHTTP(w, r2)
}
