// Package logging 封装 zerolog，提供统一的结构化日志接口。
// 开发环境输出可读的控制台格式，生产环境输出 JSON。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level 表示日志级别。
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config 是日志初始化参数。
type Config struct {
	Level       Level
	ServiceName string
	Environment string
	JSONFormat  bool
	Output      io.Writer
}

// DefaultConfig 返回开发环境默认配置。
func DefaultConfig() Config {
	return Config{
		Level:       LevelInfo,
		ServiceName: "incoming-inspector",
		Environment: "development",
		Output:      os.Stderr,
	}
}

// Logger 是结构化日志接口。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With 返回附带固定字段的子 logger。
	With(fields ...Field) Logger

	Zerolog() zerolog.Logger
}

// Field 是一个日志键值对。
type Field struct {
	Key   string
	Value any
}

// F 构造一个日志字段。
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err 构造 error 字段。
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

type logger struct {
	zl zerolog.Logger
}

// New 按配置创建 Logger。
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "incoming-inspector"
	}

	var w io.Writer = out
	if !cfg.JSONFormat {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).
		Level(ParseLevel(string(cfg.Level))).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()
	return &logger{zl: zl}
}

// Nop 返回丢弃所有输出的 Logger（测试与未配置场景）。
func Nop() Logger {
	return &logger{zl: zerolog.Nop()}
}

// ParseLevel 把字符串级别转换为 zerolog.Level，未知值回落到 info。
func ParseLevel(s string) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *logger) Debug(msg string, fields ...Field) { addFields(l.zl.Debug(), fields).Msg(msg) }
func (l *logger) Info(msg string, fields ...Field)  { addFields(l.zl.Info(), fields).Msg(msg) }
func (l *logger) Warn(msg string, fields ...Field)  { addFields(l.zl.Warn(), fields).Msg(msg) }
func (l *logger) Error(msg string, fields ...Field) { addFields(l.zl.Error(), fields).Msg(msg) }

func (l *logger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &logger{zl: ctx.Logger()}
}

func (l *logger) Zerolog() zerolog.Logger {
	return l.zl
}

func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			event = event.Str(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		case float64:
			event = event.Float64(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case error:
			event = event.Err(v)
		case time.Duration:
			event = event.Dur(f.Key, v)
		case time.Time:
			event = event.Time(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	return event
}
