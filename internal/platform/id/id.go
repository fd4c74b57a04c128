package id

import (
	"strings"

	"github.com/google/uuid"
)

// New 生成带前缀的唯一 ID：prefix_<uuid>。
// 前缀便于在日志和审计记录里一眼区分 session / inspection / report 等对象。
func New(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
