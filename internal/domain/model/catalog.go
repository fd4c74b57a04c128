package model

// CatalogBundle 是来料检验清单文件的顶层结构（YAML 或 plist）。
type CatalogBundle struct {
	Version     string           `yaml:"version" plist:"version"`
	BundleType  string           `yaml:"bundle_type" plist:"bundle_type"`
	Maintainer  string           `yaml:"maintainer" plist:"maintainer"`
	Description string           `yaml:"description" plist:"description"`
	Groups      []ChecklistGroup `yaml:"groups" plist:"groups"`
}

// CatalogBundleType 是清单文件要求的 bundle_type。
const CatalogBundleType = "incoming_checklist"
