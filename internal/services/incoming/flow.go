package incoming

import (
	"fmt"
	"strings"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/services/checklist"
)

// FlowState 是“确认入库”弹窗的状态。
type FlowState string

const (
	// StateIdle 表示弹窗未打开。
	StateIdle FlowState = "idle"
	// StateConfirmOpen 表示弹窗已打开，等待检验员确认。
	StateConfirmOpen FlowState = "confirm_open"
	// StateSubmitting 表示确认请求已发出，等待远端返回。
	StateSubmitting FlowState = "submitting"
	// StateSuccess 表示确认成功，调用方应跳转到来料列表。
	StateSuccess FlowState = "success"
)

var (
	// ErrAcceptNotAllowed 表示门控不允许入库（存在未判定或 N/A 项，或清单为空）。
	ErrAcceptNotAllowed = fmt.Errorf("accept not allowed: %w", apperr.ErrInvalidState)
	// ErrQuarantineNotAllowed 表示门控不允许隔离。
	ErrQuarantineNotAllowed = fmt.Errorf("quarantine not allowed: %w", apperr.ErrInvalidState)
	// ErrNoInspector 表示没有已认证用户，确认操作不生效。
	ErrNoInspector = fmt.Errorf("no authenticated inspector: %w", apperr.ErrUnauthorized)
	// ErrEmptyInspector 表示已认证用户没有可用的姓名。
	ErrEmptyInspector = fmt.Errorf("inspector name is empty: %w", apperr.ErrValidation)
)

// Flow 是确认入库弹窗的状态机：
//
//	Idle -> ConfirmOpen -> Submitting -> Success
//	                 ^          |
//	                 +--失败----+
//
// Flow 本身不做并发保护，由 Service 在会话锁内调用。
type Flow struct {
	state        FlowState
	incomingDate time.Time
	defaultDate  time.Time
	lastError    string
}

// NewFlow 创建 Idle 状态的流程；defaultDate 通常为会话开始时间。
func NewFlow(defaultDate time.Time) *Flow {
	return &Flow{state: StateIdle, defaultDate: defaultDate}
}

func (f *Flow) State() FlowState {
	return f.state
}

// Pending 表示确认请求是否在途（确认按钮应禁用）。
func (f *Flow) Pending() bool {
	return f.state == StateSubmitting
}

// IncomingDate 返回弹窗中的入库日期；弹窗未打开时返回零值。
func (f *Flow) IncomingDate() time.Time {
	return f.incomingDate
}

// LastError 返回最近一次确认失败的错误信息。
func (f *Flow) LastError() string {
	return f.lastError
}

// Open 打开确认弹窗。门控在这里再检查一次，不依赖前端按钮禁用。
func (f *Flow) Open(d checklist.Decision) error {
	if f.state != StateIdle {
		return fmt.Errorf("open confirm from %s: %w", f.state, apperr.ErrInvalidState)
	}
	if !d.CanAccept {
		return ErrAcceptNotAllowed
	}
	f.state = StateConfirmOpen
	f.incomingDate = f.defaultDate
	f.lastError = ""
	return nil
}

// SetIncomingDate 修改入库日期，仅在弹窗打开期间允许。
func (f *Flow) SetIncomingDate(t time.Time) error {
	if f.state != StateConfirmOpen {
		return fmt.Errorf("set incoming date in %s: %w", f.state, apperr.ErrInvalidState)
	}
	if t.IsZero() {
		return fmt.Errorf("incoming date is required: %w", apperr.ErrValidation)
	}
	f.incomingDate = t
	return nil
}

// Cancel 关闭弹窗，无副作用；判定状态保留。
func (f *Flow) Cancel() error {
	switch f.state {
	case StateConfirmOpen:
		f.state = StateIdle
		f.incomingDate = time.Time{}
		return nil
	case StateIdle:
		return nil
	default:
		return fmt.Errorf("cancel confirm in %s: %w", f.state, apperr.ErrInvalidState)
	}
}

// Begin 进入 Submitting 并生成提交数据。
// 没有已认证用户时返回 ErrNoInspector，状态不变。
func (f *Flow) Begin(user *model.User, articleID int64) (model.IncomingConfirmPayload, error) {
	if f.state != StateConfirmOpen {
		return model.IncomingConfirmPayload{}, fmt.Errorf("confirm in %s: %w", f.state, apperr.ErrInvalidState)
	}
	if user == nil {
		return model.IncomingConfirmPayload{}, ErrNoInspector
	}
	inspector := user.DisplayName()
	if inspector == "" {
		return model.IncomingConfirmPayload{}, ErrEmptyInspector
	}

	date := f.incomingDate
	if date.IsZero() {
		date = f.defaultDate
	}
	f.state = StateSubmitting
	f.lastError = ""
	return model.IncomingConfirmPayload{
		ArticleID:    articleID,
		Inspector:    inspector,
		IncomingDate: date.Format(model.IncomingDateLayout),
	}, nil
}

// Finish 结束提交：成功进入 Success；失败回到 ConfirmOpen 并清除 pending。
func (f *Flow) Finish(err error) {
	if f.state != StateSubmitting {
		return
	}
	if err != nil {
		f.state = StateConfirmOpen
		f.lastError = err.Error()
		return
	}
	f.state = StateSuccess
}

// Redirect 返回确认成功后的前端跳转路径。
func Redirect(company string) string {
	return "/" + strings.Trim(company, "/") + "/control_calidad/incoming"
}

// ParseIncomingDate 解析 yyyy/MM/dd 或 yyyy-MM-dd 形式的日期。
func ParseIncomingDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{model.IncomingDateLayout, "2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid incoming date %q: %w", s, apperr.ErrValidation)
}
