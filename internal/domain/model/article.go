package model

import (
	"fmt"
	"strings"

	"incoming-inspector/internal/platform/apperr"
)

// Article 是来料检验页面消费的物料字段（远端维护系统 API 的子集）。
// 只声明本服务真正读取的字段，其余字段由 JSON 解码忽略。
type Article struct {
	ID               int64   `json:"id"`
	PartNumber       string  `json:"part_number"`
	Description      string  `json:"description,omitempty"`
	SerialNumber     string  `json:"serial,omitempty"`
	BatchNumber      string  `json:"batch,omitempty"`
	Quantity         float64 `json:"quantity,omitempty"`
	Unit             string  `json:"unit,omitempty"`
	Status           string  `json:"status,omitempty"`
	HasDocumentation bool    `json:"has_documentation"`
	CertificateURL   string  `json:"certificate_url,omitempty"`
	ImageURL         string  `json:"image_url,omitempty"`
}

// Validate 在 API 边界校验物料数据，避免信任远端返回的任意结构。
func (a *Article) Validate() error {
	if a == nil {
		return fmt.Errorf("article: empty payload: %w", apperr.ErrValidation)
	}
	if a.ID <= 0 {
		return fmt.Errorf("article: id must be positive: %w", apperr.ErrValidation)
	}
	if strings.TrimSpace(a.PartNumber) == "" {
		return fmt.Errorf("article %d: part_number is required: %w", a.ID, apperr.ErrValidation)
	}
	if a.Quantity < 0 {
		return fmt.Errorf("article %d: quantity must not be negative: %w", a.ID, apperr.ErrValidation)
	}
	return nil
}

// User 是已认证用户（检验员）的只读信息。
type User struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username,omitempty"`
}

// DisplayName 返回 "<first> <last>" 去除首尾空白后的显示名。
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
