package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"incoming-inspector/internal/platform/logging"

	"gopkg.in/yaml.v3"
)

// Config 存放应用级配置。
// 加载顺序（后者覆盖前者）：默认值 -> YAML 配置文件 -> 环境变量 -> 命令行 flag。
type Config struct {
	DBPath      string
	CatalogPath string

	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration

	ListenAddr string

	LogLevel    string
	LogJSON     bool
	Environment string

	// ReportDir 存放 PDF 报告，ExportDir 存放 ZIP 导出；为空时取 DBPath 同级目录。
	ReportDir string
	ExportDir string

	CatalogDebounce time.Duration
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		DBPath:          "data/inspector.db",
		CatalogPath:     "catalogs/incoming_checklist.yaml",
		BackendTimeout:  15 * time.Second,
		ListenAddr:      "127.0.0.1:8787",
		LogLevel:        "info",
		Environment:     "development",
		CatalogDebounce: 500 * time.Millisecond,
	}
}

// configFile 是 YAML 文件的结构；时长以字符串书写（例如 "15s"）。
type configFile struct {
	DB      string `yaml:"db"`
	Catalog struct {
		Path     string `yaml:"path"`
		Debounce string `yaml:"debounce"`
	} `yaml:"catalog"`
	Backend struct {
		URL     string `yaml:"url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`
	Listen string `yaml:"listen"`
	Log    struct {
		Level string `yaml:"level"`
		JSON  *bool  `yaml:"json"`
	} `yaml:"log"`
	Environment string `yaml:"environment"`
	Reports     struct {
		Dir       string `yaml:"dir"`
		ExportDir string `yaml:"export_dir"`
	} `yaml:"reports"`
}

// LoadConfig 读取配置。path 为空或文件不存在时只使用默认值与环境变量。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path = strings.TrimSpace(path); path != "" {
		if err := loadFromFile(&cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc configFile
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.DB != "" {
		cfg.DBPath = fc.DB
	}
	if fc.Catalog.Path != "" {
		cfg.CatalogPath = fc.Catalog.Path
	}
	if fc.Catalog.Debounce != "" {
		d, err := time.ParseDuration(fc.Catalog.Debounce)
		if err != nil {
			return fmt.Errorf("parse catalog.debounce: %w", err)
		}
		cfg.CatalogDebounce = d
	}
	if fc.Backend.URL != "" {
		cfg.BackendURL = fc.Backend.URL
	}
	if fc.Backend.Token != "" {
		cfg.BackendToken = fc.Backend.Token
	}
	if fc.Backend.Timeout != "" {
		d, err := time.ParseDuration(fc.Backend.Timeout)
		if err != nil {
			return fmt.Errorf("parse backend.timeout: %w", err)
		}
		cfg.BackendTimeout = d
	}
	if fc.Listen != "" {
		cfg.ListenAddr = fc.Listen
	}
	if fc.Log.Level != "" {
		cfg.LogLevel = fc.Log.Level
	}
	if fc.Log.JSON != nil {
		cfg.LogJSON = *fc.Log.JSON
	}
	if fc.Environment != "" {
		cfg.Environment = fc.Environment
	}
	if fc.Reports.Dir != "" {
		cfg.ReportDir = fc.Reports.Dir
	}
	if fc.Reports.ExportDir != "" {
		cfg.ExportDir = fc.Reports.ExportDir
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("INSPECTOR_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INSPECTOR_CATALOG"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("INSPECTOR_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("INSPECTOR_BACKEND_TOKEN"); v != "" {
		cfg.BackendToken = v
	}
	if v := os.Getenv("INSPECTOR_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackendTimeout = d
		}
	}
	if v := os.Getenv("INSPECTOR_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("INSPECTOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INSPECTOR_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}
	if v := os.Getenv("INSPECTOR_ENV"); v != "" {
		cfg.Environment = v
	}
}

// Validate 检查必填项与取值范围。
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db path is required")
	}
	if strings.TrimSpace(c.CatalogPath) == "" {
		return fmt.Errorf("catalog path is required")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	return nil
}

// ReportsDir 返回 PDF 报告目录。
func (c Config) ReportsDir() string {
	if c.ReportDir != "" {
		return c.ReportDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "reports")
}

// ExportsDir 返回 ZIP 导出目录。
func (c Config) ExportsDir() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "exports")
}

// Logging 返回日志配置。
func (c Config) Logging(service string) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.Level(strings.ToLower(c.LogLevel))
	lc.ServiceName = service
	lc.Environment = c.Environment
	lc.JSONFormat = c.LogJSON
	return lc
}
