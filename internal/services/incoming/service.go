// Package incoming 编排来料检验会话：会话登记、判定写入、确认入库与隔离。
package incoming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/hash"
	"incoming-inspector/internal/platform/id"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/checklist"
)

// Backend 是远端维护系统 API 中本服务用到的部分。
type Backend interface {
	GetArticle(ctx context.Context, company string, articleID int64) (*model.Article, error)
	ConfirmIncoming(ctx context.Context, company string, payload model.IncomingConfirmPayload) error
	QuarantineIncoming(ctx context.Context, company string, payload model.QuarantinePayload) error
}

// CatalogSource 按“是否附带随件文件”返回检验清单及其身份标识。
type CatalogSource interface {
	Groups(hasDocumentation bool) ([]model.ChecklistGroup, string, error)
}

// Recorder 负责终态落库与审计留痕。
type Recorder interface {
	SaveInspection(ctx context.Context, in model.Inspection) error
	AppendAudit(ctx context.Context, subjectID, eventType, action, status, actor, source string, detail any) error
}

// Observer 接收会话与处置事件（指标采集）。
type Observer interface {
	SessionsActive(n int)
	ChecklistUpdated()
	DecisionSubmitted(decision model.Decision, status string)
}

type nopObserver struct{}

func (nopObserver) SessionsActive(int)                       {}
func (nopObserver) ChecklistUpdated()                        {}
func (nopObserver) DecisionSubmitted(model.Decision, string) {}

// Deps 是 Service 的依赖集合。
type Deps struct {
	Backend  Backend
	Catalog  CatalogSource
	Recorder Recorder
	Logger   logging.Logger
	Observer Observer

	// Now 可注入时钟，默认 time.Now。
	Now func() time.Time
}

// Service 持有所有进行中的检验会话。
// 会话只存在于内存中：进程重启或页面离开即丢弃。
type Service struct {
	backend  Backend
	catalog  CatalogSource
	recorder Recorder
	log      logging.Logger
	obs      Observer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// entry 是一个会话及其确认流程；mu 串行化对该会话的所有操作。
type entry struct {
	mu         sync.Mutex
	sess       *checklist.Session
	flow       *Flow
	quarantine bool // 隔离请求在途或已成功，期间拒绝确认入库
	startedBy  string
}

// NewService 创建 Service。
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		backend:  d.Backend,
		catalog:  d.Catalog,
		recorder: d.Recorder,
		log:      d.Logger,
		obs:      d.Observer,
		now:      d.Now,
		sessions: make(map[string]*entry),
	}
}

// SessionView 是会话的只读快照（给 API/UI 使用）。
type SessionView struct {
	SessionID    string                          `json:"session_id"`
	Company      string                          `json:"company"`
	Article      model.Article                   `json:"article"`
	Groups       []model.ChecklistGroup          `json:"groups"`
	Values       map[string]model.ChecklistValue `json:"values"`
	Notes        string                          `json:"notes"`
	Progress     checklist.Progress              `json:"progress"`
	Decision     checklist.Decision              `json:"decision"`
	FlowState    FlowState                       `json:"flow_state"`
	Pending      bool                            `json:"pending"`
	IncomingDate string                          `json:"incoming_date,omitempty"`
	LastError    string                          `json:"last_error,omitempty"`
	StartedAt    int64                           `json:"started_at"`
	Catalog      string                          `json:"catalog_identity"`
}

// ConfirmResult 是确认入库成功后的返回。
type ConfirmResult struct {
	InspectionID string                       `json:"inspection_id"`
	Payload      model.IncomingConfirmPayload `json:"payload"`
	Redirect     string                       `json:"redirect"`
	Warnings     []string                     `json:"warnings,omitempty"`
}

// QuarantineResult 是隔离提交成功后的返回。
type QuarantineResult struct {
	InspectionID string                  `json:"inspection_id"`
	Payload      model.QuarantinePayload `json:"payload"`
	Redirect     string                  `json:"redirect"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// Start 为一个物料开启检验会话：拉取并校验物料，按随件文件标志选择清单。
func (s *Service) Start(ctx context.Context, company string, articleID int64, user *model.User) (*SessionView, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("company is required: %w", apperr.ErrValidation)
	}
	if articleID <= 0 {
		return nil, fmt.Errorf("article_id must be positive: %w", apperr.ErrValidation)
	}

	article, err := s.backend.GetArticle(ctx, company, articleID)
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", articleID, err)
	}
	if err := article.Validate(); err != nil {
		return nil, err
	}

	groups, identity, err := s.catalog.Groups(article.HasDocumentation)
	if err != nil {
		return nil, fmt.Errorf("load checklist catalog: %w", err)
	}

	now := s.now()
	e := &entry{
		sess:      checklist.NewSession(id.New("ins"), company, *article, groups, identity, now),
		flow:      NewFlow(now),
		startedBy: user.DisplayName(),
	}

	s.mu.Lock()
	s.sessions[e.sess.ID] = e
	active := len(s.sessions)
	s.mu.Unlock()
	s.obs.SessionsActive(active)

	s.audit(ctx, e.sess.ID, "session", "start", "success", e.startedBy, map[string]any{
		"company":           company,
		"article_id":        articleID,
		"part_number":       article.PartNumber,
		"has_documentation": article.HasDocumentation,
		"catalog_identity":  identity,
		"items":             model.CountItems(groups),
	})
	s.log.Info("inspection session started",
		logging.F("session_id", e.sess.ID),
		logging.F("company", company),
		logging.F("article_id", articleID),
	)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(), nil
}

// View 返回会话快照。
func (s *Service) View(sessionID string) (*SessionView, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(), nil
}

// ListSessions 返回所有进行中会话的快照（按开始时间排序）。
func (s *Service) ListSessions() []SessionView {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]SessionView, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, *e.view())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// SetValue 写入判定项。确认请求在途时仍允许修改（不影响已发出的请求）。
func (s *Service) SetValue(sessionID, key string, v model.ChecklistValue) (*SessionView, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("item key is required: %w", apperr.ErrValidation)
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.SetValue(key, v)
	s.obs.ChecklistUpdated()
	return e.view(), nil
}

// SetNotes 更新检验员说明。
func (s *Service) SetNotes(sessionID, notes string) (*SessionView, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.SetNotes(notes)
	return e.view(), nil
}

// OpenConfirm 打开确认弹窗；门控在此处重新计算。
func (s *Service) OpenConfirm(sessionID string) (*SessionView, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quarantine {
		return nil, fmt.Errorf("submission in flight: %w", apperr.ErrInvalidState)
	}
	if err := e.flow.Open(e.sess.Evaluate().Decision); err != nil {
		return nil, err
	}
	return e.view(), nil
}

// SetIncomingDate 修改弹窗中的入库日期。
func (s *Service) SetIncomingDate(sessionID string, date time.Time) (*SessionView, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.flow.SetIncomingDate(date); err != nil {
		return nil, err
	}
	return e.view(), nil
}

// CancelConfirm 关闭确认弹窗，判定状态保留。
func (s *Service) CancelConfirm(sessionID string) (*SessionView, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.flow.Cancel(); err != nil {
		return nil, err
	}
	return e.view(), nil
}

// Confirm 提交确认入库。
//
// 远端调用期间不持有会话锁：清单与说明仍可修改，但重复确认会得到 ErrInvalidState。
// 失败时弹窗保持打开、pending 清除、判定状态不变；成功后会话结束并落库。
// 已发出的请求不可取消：远端调用与后续落库脱离调用方 ctx 的取消信号（保留 ctx 中的令牌），
// 也不额外设置超时（以传输层为准）。
func (s *Service) Confirm(ctx context.Context, sessionID string, user *model.User) (*ConfirmResult, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.quarantine {
		e.mu.Unlock()
		return nil, fmt.Errorf("submission in flight: %w", apperr.ErrInvalidState)
	}
	if e.flow.State() == StateConfirmOpen && !e.sess.Evaluate().Decision.CanAccept {
		// 弹窗打开后判定被改动，不再满足入库条件。
		e.mu.Unlock()
		return nil, ErrAcceptNotAllowed
	}
	payload, err := e.flow.Begin(user, e.sess.Article.ID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	record := e.record(model.DecisionAccepted, payload.Inspector, payload.IncomingDate, s.now())
	company := e.sess.Company
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	callErr := s.backend.ConfirmIncoming(ctx, company, payload)

	e.mu.Lock()
	e.flow.Finish(callErr)
	e.mu.Unlock()

	if callErr != nil {
		s.obs.DecisionSubmitted(model.DecisionAccepted, "failed")
		s.audit(ctx, sessionID, "incoming", "confirm", "failed", payload.Inspector, map[string]any{
			"payload": payload,
			"error":   callErr.Error(),
		})
		s.log.Warn("confirm incoming failed",
			logging.F("session_id", sessionID),
			logging.F("article_id", payload.ArticleID),
			logging.Err(callErr),
		)
		return nil, fmt.Errorf("confirm incoming: %w", callErr)
	}

	s.obs.DecisionSubmitted(model.DecisionAccepted, "success")
	warnings := s.finish(ctx, sessionID, record, map[string]any{"payload": payload})
	s.log.Info("incoming confirmed",
		logging.F("session_id", sessionID),
		logging.F("article_id", payload.ArticleID),
		logging.F("inspector", payload.Inspector),
		logging.F("incoming_date", payload.IncomingDate),
	)

	return &ConfirmResult{
		InspectionID: sessionID,
		Payload:      payload,
		Redirect:     Redirect(company),
		Warnings:     warnings,
	}, nil
}

// Quarantine 提交隔离：要求全部已判定、不满足入库条件，且说明长度达标。
// 与 Confirm 相同，远端调用不随调用方 ctx 取消。
func (s *Service) Quarantine(ctx context.Context, sessionID string, user *model.User) (*QuarantineResult, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.quarantine || e.flow.Pending() || e.flow.State() == StateSuccess {
		e.mu.Unlock()
		return nil, fmt.Errorf("submission in flight: %w", apperr.ErrInvalidState)
	}
	if !e.sess.Evaluate().Decision.CanQuarantine {
		e.mu.Unlock()
		return nil, ErrQuarantineNotAllowed
	}
	if user == nil {
		e.mu.Unlock()
		return nil, ErrNoInspector
	}
	inspector := user.DisplayName()
	if inspector == "" {
		e.mu.Unlock()
		return nil, ErrEmptyInspector
	}

	values := make(map[string]string)
	for _, it := range e.sess.Items() {
		values[it.Key] = it.Value.String()
	}
	payload := model.QuarantinePayload{
		ArticleID: e.sess.Article.ID,
		Inspector: inspector,
		Notes:     strings.TrimSpace(e.sess.Notes()),
		Checklist: values,
	}
	record := e.record(model.DecisionQuarantined, inspector, "", s.now())
	company := e.sess.Company
	e.quarantine = true
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	callErr := s.backend.QuarantineIncoming(ctx, company, payload)

	if callErr != nil {
		e.mu.Lock()
		e.quarantine = false
		e.mu.Unlock()
		s.obs.DecisionSubmitted(model.DecisionQuarantined, "failed")
		s.audit(ctx, sessionID, "incoming", "quarantine", "failed", inspector, map[string]any{
			"article_id": payload.ArticleID,
			"error":      callErr.Error(),
		})
		return nil, fmt.Errorf("quarantine incoming: %w", callErr)
	}

	s.obs.DecisionSubmitted(model.DecisionQuarantined, "success")
	warnings := s.finish(ctx, sessionID, record, map[string]any{"payload": payload})
	s.log.Info("incoming quarantined",
		logging.F("session_id", sessionID),
		logging.F("article_id", payload.ArticleID),
		logging.F("inspector", inspector),
	)

	return &QuarantineResult{
		InspectionID: sessionID,
		Payload:      payload,
		Redirect:     Redirect(company),
		Warnings:     warnings,
	}, nil
}

// Close 丢弃会话（离开检验页面）。
func (s *Service) Close(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	active := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	s.obs.SessionsActive(active)
	s.audit(ctx, sessionID, "session", "close", "success", "", nil)
	return nil
}

// OnCatalogChange 在清单重新加载后调用：身份变化的会话重置为空状态。
// 若弹窗已打开，一并关闭（门控已不成立）；在途请求不受影响。
func (s *Service) OnCatalogChange(ctx context.Context) int {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	reset := 0
	for _, e := range entries {
		e.mu.Lock()
		groups, identity, err := s.catalog.Groups(e.sess.Article.HasDocumentation)
		if err != nil {
			e.mu.Unlock()
			s.log.Warn("catalog unavailable on reload", logging.F("session_id", e.sess.ID), logging.Err(err))
			continue
		}
		changed := e.sess.ApplyCatalog(groups, identity)
		if changed && e.flow.State() == StateConfirmOpen {
			_ = e.flow.Cancel()
		}
		sessionID := e.sess.ID
		e.mu.Unlock()

		if changed {
			reset++
			s.audit(ctx, sessionID, "session", "catalog_reset", "success", "", map[string]any{"catalog_identity": identity})
		}
	}
	if reset > 0 {
		s.log.Info("sessions reset after catalog change", logging.F("count", reset))
	}
	return reset
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	return e, nil
}

// finish 在远端处置成功后落库、留痕并移除会话。
// 远端才是权威记录，因此本地落库失败只作为 warning 返回。
func (s *Service) finish(ctx context.Context, sessionID string, record model.Inspection, detail map[string]any) []string {
	var warnings []string
	if s.recorder != nil {
		if err := s.recorder.SaveInspection(ctx, record); err != nil {
			warnings = append(warnings, "save inspection failed: "+err.Error())
			s.log.Error("save inspection failed", logging.F("session_id", sessionID), logging.Err(err))
		}
	}
	action := "confirm"
	if record.Decision == model.DecisionQuarantined {
		action = "quarantine"
	}
	detail["record_hash"] = record.RecordHash
	s.audit(ctx, sessionID, "incoming", action, "success", record.Inspector, detail)

	s.mu.Lock()
	delete(s.sessions, sessionID)
	active := len(s.sessions)
	s.mu.Unlock()
	s.obs.SessionsActive(active)
	return warnings
}

func (s *Service) audit(ctx context.Context, subjectID, eventType, action, status, actor string, detail any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.AppendAudit(ctx, subjectID, eventType, action, status, actor, "incoming.Service", detail); err != nil {
		s.log.Warn("append audit failed",
			logging.F("subject_id", subjectID),
			logging.F("action", action),
			logging.Err(err),
		)
	}
}

// view 生成快照；调用方需持有 e.mu。
func (e *entry) view() *SessionView {
	ev := e.sess.Evaluate()
	v := &SessionView{
		SessionID: e.sess.ID,
		Company:   e.sess.Company,
		Article:   e.sess.Article,
		Groups:    e.sess.Groups(),
		Values:    e.sess.Values(),
		Notes:     e.sess.Notes(),
		Progress:  ev.Progress,
		Decision:  ev.Decision,
		FlowState: e.flow.State(),
		Pending:   e.flow.Pending() || e.quarantine,
		LastError: e.flow.LastError(),
		StartedAt: e.sess.StartedAt.Unix(),
		Catalog:   e.sess.Identity(),
	}
	if d := e.flow.IncomingDate(); !d.IsZero() {
		v.IncomingDate = d.Format(model.IncomingDateLayout)
	}
	return v
}

// record 按当前判定生成检验记录；调用方需持有 e.mu。
func (e *entry) record(decision model.Decision, inspector, incomingDate string, completedAt time.Time) model.Inspection {
	ev := e.sess.Evaluate()
	items := e.sess.Items()
	a := e.sess.Article

	parts := []string{e.sess.ID, string(decision), inspector, incomingDate, fmt.Sprintf("%d", a.ID), e.sess.Identity()}
	for _, it := range items {
		parts = append(parts, it.Key+"="+it.Value.String())
	}

	return model.Inspection{
		InspectionID:     e.sess.ID,
		SessionID:        e.sess.ID,
		Company:          e.sess.Company,
		ArticleID:        a.ID,
		PartNumber:       a.PartNumber,
		SerialNumber:     a.SerialNumber,
		BatchNumber:      a.BatchNumber,
		Description:      a.Description,
		HasDocumentation: a.HasDocumentation,
		Decision:         decision,
		Inspector:        inspector,
		IncomingDate:     incomingDate,
		Notes:            strings.TrimSpace(e.sess.Notes()),
		CatalogIdentity:  e.sess.Identity(),
		Total:            ev.Progress.Total,
		OKCount:          ev.Progress.OKCount,
		StartedAt:        e.sess.StartedAt.Unix(),
		CompletedAt:      completedAt.Unix(),
		RecordHash:       hash.Text(parts...),
		Items:            items,
	}
}

// IsGateError 判断错误是否来自入库/隔离门控。
func IsGateError(err error) bool {
	return errors.Is(err, ErrAcceptNotAllowed) || errors.Is(err, ErrQuarantineNotAllowed)
}
