// Package backend 是远端维护系统 REST API 的 HTTP 客户端。
// 物料与处置结果以远端为准，本服务只做检验过程编排。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
)

// DefaultTimeout 是未注入 HTTPClient 时的请求超时。
const DefaultTimeout = 15 * time.Second

// maxBody 限制读取的响应体大小。
const maxBody = 2 << 20

// APIError 表示远端返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend http %d", e.Status)
	}
	return fmt.Sprintf("backend http %d: %s", e.Status, e.Message)
}

// Unwrap 将常见状态码映射到 apperr 分类，便于上层统一处理。
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.ErrUnauthorized
	case http.StatusConflict:
		return apperr.ErrConflict
	default:
		return apperr.ErrUpstream
	}
}

// RequestObserver 接收每次请求的耗时与结果（指标采集）。
type RequestObserver func(operation string, d time.Duration, err error)

// Client 调用远端维护系统 API。
type Client struct {
	BaseURL string
	// Token 为服务账号令牌；请求上下文中带有用户令牌时优先使用用户令牌。
	Token string

	HTTPClient *http.Client
	OnRequest  RequestObserver
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type tokenKey struct{}

// WithToken 把调用方（检验员）的 Bearer 令牌放入 ctx，后续请求透传给远端。
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// TokenFromContext 返回 WithToken 放入的令牌。
func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}

// GetArticle 查询待检物料：GET {base}/{company}/warehouse/articles/{id}。
// 兼容两种响应：裸对象，或 {"article": {...}} 包装。
func (c *Client) GetArticle(ctx context.Context, company string, articleID int64) (*model.Article, error) {
	p := "/" + url.PathEscape(company) + "/warehouse/articles/" + strconv.FormatInt(articleID, 10)
	raw, err := c.do(ctx, "get_article", http.MethodGet, p, "", nil)
	if err != nil {
		return nil, err
	}

	var env struct {
		Article *model.Article `json:"article"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	a := env.Article
	if a == nil {
		a = &model.Article{}
		if err := json.Unmarshal(raw, a); err != nil {
			return nil, fmt.Errorf("decode article: %w", err)
		}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// ConfirmIncoming 确认入库：POST {base}/{company}/control_calidad/incoming/confirm。
func (c *Client) ConfirmIncoming(ctx context.Context, company string, payload model.IncomingConfirmPayload) error {
	p := "/" + url.PathEscape(company) + "/control_calidad/incoming/confirm"
	_, err := c.do(ctx, "confirm_incoming", http.MethodPost, p, "", payload)
	return err
}

// QuarantineIncoming 隔离物料：POST {base}/{company}/control_calidad/incoming/quarantine。
func (c *Client) QuarantineIncoming(ctx context.Context, company string, payload model.QuarantinePayload) error {
	p := "/" + url.PathEscape(company) + "/control_calidad/incoming/quarantine"
	_, err := c.do(ctx, "quarantine_incoming", http.MethodPost, p, "", payload)
	return err
}

// CurrentUser 用令牌查询当前用户：GET {base}/user。
// 令牌为空或远端返回 401 时返回 (nil, nil)，表示“没有已认证用户”。
func (c *Client) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := c.do(ctx, "current_user", http.MethodGet, "/user", token, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, nil
		}
		return nil, err
	}

	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body any) (raw []byte, err error) {
	start := time.Now()
	defer func() {
		if c.OnRequest != nil {
			c.OnRequest(op, time.Since(start), err)
		}
	}()

	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is required: %w", apperr.ErrValidation)
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token == "" {
		token = TokenFromContext(ctx)
	}
	if token == "" {
		token = c.Token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(b)}
	}
	return b, nil
}

// errorMessage 提取远端错误信息：优先 JSON 的 message/error 字段，否则原文。
func errorMessage(b []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(b))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
