package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

var reURLSchemeRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// MaskURL 去掉 URL 中的账号口令、查询参数与片段，只保留 scheme://host/path。
// 用于把后端地址写入日志或 /api/meta 时避免泄露凭据。
// 输入不是合法 URL 时，返回 "<masked_url>"。
func MaskURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !reURLSchemeRE.MatchString(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(u.Hostname()) == "" {
		return "<masked_url>"
	}
	out := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	return out.String()
}

// MaskToken 对 bearer token 做“部分展示”：保留头尾各 4 位，隐藏中间。
// 太短的 token 直接返回 "<masked>"，避免泄露过多。
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "<masked>"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
