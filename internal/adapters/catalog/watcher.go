package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"incoming-inspector/internal/platform/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 是文件变化后等待合并的时间。
const DefaultDebounce = 500 * time.Millisecond

// ReloadObserver 接收每次重载结果（指标采集）：result 为 changed|unchanged|failed。
type ReloadObserver func(result string)

// Watcher 监听清单文件变化并触发 Provider.Reload。
//
// 监听的是文件所在目录而不是文件本身：编辑器保存时常用“写临时文件 + rename”，
// 直接监听文件会在第一次替换后丢失事件。
type Watcher struct {
	provider *Provider
	path     string
	debounce time.Duration
	log      logging.Logger
	observe  ReloadObserver

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher 创建 Watcher；debounce<=0 时使用 DefaultDebounce。
func NewWatcher(provider *Provider, debounce time.Duration, log logging.Logger, observe ReloadObserver) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.Nop()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Watcher{
		provider: provider,
		path:     filepath.Clean(provider.loader.Path),
		debounce: debounce,
		log:      log,
		observe:  observe,
	}
}

// Run 阻塞运行直到 ctx 结束。
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch catalog dir %s: %w", dir, err)
	}
	w.log.Info("watching checklist catalog", logging.F("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("catalog watcher error", logging.Err(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	changed, err := w.provider.Reload(ctx)
	switch {
	case err != nil:
		// 保留上一份可用清单。
		w.observe("failed")
		w.log.Warn("catalog reload failed; keeping previous catalog", logging.F("path", w.path), logging.Err(err))
	case changed:
		w.observe("changed")
		w.log.Info("checklist catalog reloaded", logging.F("path", w.path), logging.F("sha256", w.provider.Current().SHA256))
	default:
		w.observe("unchanged")
	}
}
