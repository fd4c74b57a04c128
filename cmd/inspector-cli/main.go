package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"incoming-inspector/internal/adapters/catalog"
	sqliteadapter "incoming-inspector/internal/adapters/store/sqlite"
	"incoming-inspector/internal/app"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/webapp"

	"github.com/spf13/cobra"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliApp 持有全局 flag 与加载后的配置。
type cliApp struct {
	configPath string
	dbPath     string
	catalog    string
	logLevel   string

	cfg app.Config
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &cliApp{}

	cmd := &cobra.Command{
		Use:           "inspector-cli",
		Short:         "Incoming article inspection service and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the web UI + API
  inspector-cli serve --listen 127.0.0.1:8787 --backend-url https://mro.example.com/api

  # Check a checklist catalog before deploying it
  inspector-cli catalog validate --catalog catalogs/incoming_checklist.yaml

  # Export and verify an inspection dossier
  inspector-cli export zip --inspection-id ins_xxx
  inspector-cli verify dossier-zip --zip data/exports/ins_xxx_dossier_1760000000.zip
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.load(cmd)
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", envOr("INSPECTOR_CONFIG", "inspector.yaml"), "config file (yaml); missing file is ignored")
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&a.catalog, "catalog", "", "checklist catalog file (overrides config)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newCatalogCmd(a))
	cmd.AddCommand(newInspectionsCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newVerifyCmd(a))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load 按 默认值 -> 配置文件 -> 环境变量 -> flag 的顺序得到最终配置。
func (a *cliApp) load(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.catalog != "" {
		cfg.CatalogPath = a.catalog
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging("inspector-cli"))
	return nil
}

// openStore 打开（并迁移）数据库；调用方负责关闭返回的 *sql.DB。
func (a *cliApp) openStore(ctx context.Context) (*sql.DB, *sqliteadapter.Store, error) {
	db, err := sqliteadapter.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return db, sqliteadapter.NewStore(db), nil
}

// newServeCmd 启动内置 Web UI + API。
func newServeCmd(a *cliApp) *cobra.Command {
	var listen, backendURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inspection web UI and API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			if backendURL != "" {
				a.cfg.BackendURL = backendURL
			}
			if strings.TrimSpace(a.cfg.BackendURL) == "" {
				return fmt.Errorf("backend url is required (--backend-url, INSPECTOR_BACKEND_URL or backend.url)")
			}

			// 支持 Ctrl+C 优雅退出。
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return webapp.Run(ctx, webapp.Options{Config: a.cfg, Logger: a.log})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "maintenance API base url (overrides config)")
	return cmd
}

// newMigrateCmd 执行 SQLite 迁移，确保数据库结构完整。
func newMigrateCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := store.GetSchemaMetaValue(cmd.Context(), "schema_version")
			if err != nil {
				return err
			}
			fmt.Printf("migrations applied successfully: db=%s schema_version=%s\n", a.cfg.DBPath, version)
			return nil
		},
	}
}

func newCatalogCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Checklist catalog tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the checklist catalog and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := catalog.NewLoader(a.cfg.CatalogPath).Load(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("catalog validation passed")
			fmt.Printf("path=%s version=%s groups=%d items=%d sha256=%s\n",
				loaded.Path, loaded.Bundle.Version, len(loaded.Bundle.Groups), loaded.ItemCount(), loaded.SHA256)
			for _, hasDoc := range []bool{true, false} {
				groups := loaded.Groups(hasDoc)
				total := 0
				for _, g := range groups {
					total += len(g.Items)
				}
				fmt.Printf("has_documentation=%t groups=%d items=%d identity=%s\n", hasDoc, len(groups), total, loaded.Identity(hasDoc))
			}
			return nil
		},
	})
	return cmd
}

func newInspectionsCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inspections",
		Short:   "Query completed inspections",
		Aliases: []string{"inspection"},
	}

	var company string
	var limit, offset int
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List completed inspections",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := store.ListInspections(cmd.Context(), strings.TrimSpace(company), limit, offset)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(rows)
			}
			for _, r := range rows {
				fmt.Printf("inspection_id=%s company=%s article_id=%d pn=%s decision=%s inspector=%q completed_at=%d\n",
					r.InspectionID, r.Company, r.ArticleID, r.PartNumber, r.Decision, r.Inspector, r.CompletedAt)
			}
			return nil
		},
	}
	list.Flags().StringVar(&company, "company", "", "filter by company")
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	list.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	list.Flags().BoolVar(&asJSON, "json", false, "print as json")

	show := &cobra.Command{
		Use:   "show <inspection-id>",
		Short: "Show one inspection with its checklist values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			in, err := store.GetInspection(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return printJSON(in)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inspector-cli %s (commit=%s built=%s)\n", app.Version, app.Commit, app.BuildTime)
		},
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
