package catalog

import (
	"context"
	"errors"
	"sync"

	"incoming-inspector/internal/domain/model"
)

// ErrNotLoaded 表示清单尚未成功加载（UI 侧表现为“加载中”）。
var ErrNotLoaded = errors.New("checklist catalog not loaded")

// Provider 持有当前生效的清单，并在内容变化时通知订阅者。
type Provider struct {
	loader *Loader

	mu      sync.RWMutex
	current *Loaded
	subs    []func(*Loaded)
}

func NewProvider(loader *Loader) *Provider {
	return &Provider{loader: loader}
}

// Current 返回当前清单；尚未加载时返回 nil。
func (p *Provider) Current() *Loaded {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Groups 实现 incoming.CatalogSource。
func (p *Provider) Groups(hasDocumentation bool) ([]model.ChecklistGroup, string, error) {
	cur := p.Current()
	if cur == nil {
		return nil, "", ErrNotLoaded
	}
	return cur.Groups(hasDocumentation), cur.Identity(hasDocumentation), nil
}

// Subscribe 注册清单变化回调。回调在 Reload 的调用协程中执行。
func (p *Provider) Subscribe(fn func(*Loaded)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Reload 重新读取清单文件。
// 解析/校验失败时保留上一份可用清单并返回错误；哈希未变化时不通知订阅者。
func (p *Provider) Reload(ctx context.Context) (changed bool, err error) {
	loaded, err := p.loader.Load(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	if p.current != nil && p.current.SHA256 == loaded.SHA256 {
		p.mu.Unlock()
		return false, nil
	}
	p.current = loaded
	subs := append([]func(*Loaded){}, p.subs...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(loaded)
	}
	return true, nil
}
