package checklist

import (
	"time"

	"incoming-inspector/internal/domain/model"
)

// Evaluation 是一次重新计算的结果（进度 + 门控）。
type Evaluation struct {
	Progress Progress `json:"progress"`
	Decision Decision `json:"decision"`
}

// Session 是一次来料检验会话：一个物料、一次进入检验页面。
// 会话对象不做并发保护，由持有者串行访问。
type Session struct {
	ID        string
	Company   string
	Article   model.Article
	StartedAt time.Time

	groups   []model.ChecklistGroup
	identity string
	state    *State
	notes    string
}

// NewSession 创建空状态的会话。
func NewSession(id, company string, article model.Article, groups []model.ChecklistGroup, identity string, startedAt time.Time) *Session {
	return &Session{
		ID:        id,
		Company:   company,
		Article:   article,
		StartedAt: startedAt,
		groups:    groups,
		identity:  identity,
		state:     NewState(),
	}
}

// SetValue 写入一个判定项的取值。
func (s *Session) SetValue(key string, v model.ChecklistValue) {
	s.state.Set(key, v)
}

// Value 返回判定项的当前取值。
func (s *Session) Value(key string) model.ChecklistValue {
	return s.state.Get(key)
}

// Values 返回当前全部取值的副本。
func (s *Session) Values() map[string]model.ChecklistValue {
	return s.state.Snapshot()
}

// SetNotes 更新检验员说明。
func (s *Session) SetNotes(notes string) {
	s.notes = notes
}

func (s *Session) Notes() string {
	return s.notes
}

func (s *Session) Groups() []model.ChecklistGroup {
	return s.groups
}

func (s *Session) Identity() string {
	return s.identity
}

// Evaluate 基于当前清单与状态重新计算进度与门控。
func (s *Session) Evaluate() Evaluation {
	p := ComputeProgress(s.groups, s.state)
	return Evaluation{Progress: p, Decision: Evaluate(p, s.notes)}
}

// ApplyCatalog 在清单身份变化时替换清单并清空状态（等同于重新开始会话）。
// 身份未变时不做任何事。返回值表示是否发生了重置。
func (s *Session) ApplyCatalog(groups []model.ChecklistGroup, identity string) bool {
	if identity == s.identity {
		return false
	}
	s.groups = groups
	s.identity = identity
	s.state.Reset()
	return true
}

// Items 按清单顺序展开当前取值，用于落库和报告。
func (s *Session) Items() []model.InspectionItem {
	out := make([]model.InspectionItem, 0, model.CountItems(s.groups))
	pos := 0
	for _, g := range s.groups {
		for _, it := range g.Items {
			out = append(out, model.InspectionItem{
				GroupID:           g.ID,
				GroupTitle:        g.Title,
				Key:               it.Key,
				Label:             it.Label,
				RequiredForAccept: it.RequiredForAccept,
				Value:             s.state.Get(it.Key),
				Position:          pos,
			})
			pos++
		}
	}
	return out
}
