package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChecklistItem 是一条来料检验判定项。
type ChecklistItem struct {
	Key               string `json:"key" yaml:"key" plist:"key"`
	Label             string `json:"label" yaml:"label" plist:"label"`
	Hint              string `json:"hint,omitempty" yaml:"hint" plist:"hint"`
	RequiredForAccept bool   `json:"required_for_accept" yaml:"required_for_accept" plist:"required_for_accept"`

	// DocumentationOnly 为 true 时，仅当物料附带随件文件（证书/合格证）时才出现在清单中。
	DocumentationOnly bool `json:"documentation_only,omitempty" yaml:"documentation_only" plist:"documentation_only"`
}

// ChecklistGroup 是一组按展示顺序排列的判定项（例如“文件”“外观状态”）。
type ChecklistGroup struct {
	ID    string          `json:"id" yaml:"id" plist:"id"`
	Title string          `json:"title" yaml:"title" plist:"title"`
	Items []ChecklistItem `json:"items" yaml:"items" plist:"items"`
}

// ChecklistValue 是判定项的三态取值。
// 零值为 Undecided，因此未写入的 key 天然就是“未判定”。
type ChecklistValue int

const (
	// Undecided 表示尚未判定。
	Undecided ChecklistValue = iota
	// Pass 表示判定合格。
	Pass
	// NotApplicable 表示不适用（N/A）。
	NotApplicable
)

// Decided 表示该值是否已判定（Pass 或 N/A）。
func (v ChecklistValue) Decided() bool {
	return v == Pass || v == NotApplicable
}

func (v ChecklistValue) String() string {
	switch v {
	case Pass:
		return "pass"
	case NotApplicable:
		return "na"
	default:
		return "undecided"
	}
}

// ParseChecklistValue 解析判定值的文本形式。
// 除 pass/na/undecided 外，也兼容旧前端的 "true"/"NA"/"null" 写法。
func ParseChecklistValue(s string) (ChecklistValue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "ok", "true":
		return Pass, nil
	case "na", "n/a", "not_applicable":
		return NotApplicable, nil
	case "", "undecided", "null", "undefined":
		return Undecided, nil
	default:
		return Undecided, fmt.Errorf("unknown checklist value: %q", s)
	}
}

// MarshalJSON 输出 "pass" / "na" / null。
func (v ChecklistValue) MarshalJSON() ([]byte, error) {
	if !v.Decided() {
		return []byte("null"), nil
	}
	return json.Marshal(v.String())
}

// UnmarshalJSON 接受字符串形式，以及旧前端的 true / "NA" / null 联合类型。
func (v *ChecklistValue) UnmarshalJSON(raw []byte) error {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			*v = Pass
		} else {
			*v = Undecided
		}
		return nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("checklist value: %w", err)
	}
	if s == nil {
		*v = Undecided
		return nil
	}
	parsed, err := ParseChecklistValue(*s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// CountItems 返回所有分组的判定项总数。
func CountItems(groups []ChecklistGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.Items)
	}
	return total
}
