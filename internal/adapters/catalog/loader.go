package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/hash"

	"gopkg.in/yaml.v3"
	"howett.net/plist"
)

// Loader 负责从磁盘读取并校验检验清单文件。
// 支持 YAML（.yaml/.yml）与平板检验 App 导出的 property list（.plist）。
type Loader struct {
	Path string
}

// Loaded 是加载后的清单及其文件哈希。
type Loaded struct {
	Path   string
	Bundle model.CatalogBundle
	SHA256 string
}

func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load 读取、解析并校验清单文件。
func (l *Loader) Load(ctx context.Context) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	bundle, err := Parse(raw, filepath.Ext(l.Path))
	if err != nil {
		return nil, err
	}
	if err := Validate(bundle); err != nil {
		return nil, err
	}

	return &Loaded{
		Path:   l.Path,
		Bundle: bundle,
		SHA256: hash.Bytes(raw),
	}, nil
}

// Parse 按扩展名解析清单内容；未知扩展名按 YAML 处理。
func Parse(raw []byte, ext string) (model.CatalogBundle, error) {
	var bundle model.CatalogBundle
	switch strings.ToLower(ext) {
	case ".plist":
		if _, err := plist.Unmarshal(raw, &bundle); err != nil {
			return bundle, fmt.Errorf("parse catalog plist: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &bundle); err != nil {
			return bundle, fmt.Errorf("parse catalog yaml: %w", err)
		}
	}
	return bundle, nil
}

// Validate 检查清单的完整性与唯一性：
// 分组 ID 唯一、判定项 key 在整个清单内唯一、标签非空。
func Validate(bundle model.CatalogBundle) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("catalog: version is required")
	}
	if strings.TrimSpace(bundle.BundleType) != model.CatalogBundleType {
		return fmt.Errorf("catalog: bundle_type must be %q, got %q", model.CatalogBundleType, bundle.BundleType)
	}
	if len(bundle.Groups) == 0 {
		return errors.New("catalog: groups is empty")
	}

	groupIDs := make(map[string]struct{}, len(bundle.Groups))
	keys := make(map[string]string)
	for _, g := range bundle.Groups {
		gid := strings.TrimSpace(g.ID)
		if gid == "" {
			return errors.New("catalog: group id is required")
		}
		if _, ok := groupIDs[gid]; ok {
			return fmt.Errorf("catalog: duplicate group id: %s", gid)
		}
		groupIDs[gid] = struct{}{}

		if strings.TrimSpace(g.Title) == "" {
			return fmt.Errorf("catalog: group title is required: %s", gid)
		}
		if len(g.Items) == 0 {
			return fmt.Errorf("catalog: group has no items: %s", gid)
		}

		for _, it := range g.Items {
			key := strings.TrimSpace(it.Key)
			if key == "" {
				return fmt.Errorf("catalog: item key is required in group %s", gid)
			}
			if prev, ok := keys[key]; ok {
				return fmt.Errorf("catalog: duplicate item key %s (groups %s, %s)", key, prev, gid)
			}
			keys[key] = gid
			if strings.TrimSpace(it.Label) == "" {
				return fmt.Errorf("catalog: item label is required: %s", key)
			}
		}
	}
	return nil
}

// Groups 返回按随件文件标志过滤后的清单视图：
// 无随件文件时去掉 documentation_only 项，过滤后为空的分组整体去掉。顺序保持不变。
func (l *Loaded) Groups(hasDocumentation bool) []model.ChecklistGroup {
	out := make([]model.ChecklistGroup, 0, len(l.Bundle.Groups))
	for _, g := range l.Bundle.Groups {
		items := make([]model.ChecklistItem, 0, len(g.Items))
		for _, it := range g.Items {
			if it.DocumentationOnly && !hasDocumentation {
				continue
			}
			items = append(items, it)
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, model.ChecklistGroup{ID: g.ID, Title: g.Title, Items: items})
	}
	return out
}

// Identity 返回清单身份：文件哈希 + 随件文件标志。
// 任一变化都意味着会话需要重置。
func (l *Loaded) Identity(hasDocumentation bool) string {
	if hasDocumentation {
		return l.SHA256 + ":doc"
	}
	return l.SHA256 + ":nodoc"
}

// ItemCount 返回清单全部判定项数量（不做过滤）。
func (l *Loaded) ItemCount() int {
	return model.CountItems(l.Bundle.Groups)
}
