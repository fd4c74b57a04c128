// Package apperr 定义跨包复用的领域错误哨兵。
//
// 调用方统一用 fmt.Errorf("...: %w", apperr.ErrXxx) 包装，
// HTTP 层再通过 errors.Is 映射为状态码。
package apperr

import "errors"

var (
	// ErrNotFound 表示请求的对象不存在（会话、检验记录、物料等）。
	ErrNotFound = errors.New("not found")

	// ErrValidation 表示输入不合法。
	ErrValidation = errors.New("validation error")

	// ErrConflict 表示与现有数据冲突。
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized 表示缺少已认证用户。
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState 表示当前状态下不允许该操作。
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream 表示远端维护系统 API 调用失败。
	ErrUpstream = errors.New("upstream error")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsUpstream(err error) bool     { return errors.Is(err, ErrUpstream) }
