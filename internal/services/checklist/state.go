// Package checklist 实现来料检验清单的会话内状态、进度统计与处置门控。
//
// 这里的所有类型都是纯内存、同步计算的；并发控制由持有会话的上层负责。
package checklist

import "incoming-inspector/internal/domain/model"

// State 保存一次检验会话内每个判定项的取值。
// 未写入的 key 视为 Undecided。
type State struct {
	values map[string]model.ChecklistValue
}

// NewState 返回空状态（全部未判定）。
func NewState() *State {
	return &State{values: make(map[string]model.ChecklistValue)}
}

// Set 无条件覆盖 key 的取值，不校验 key 是否在清单中。
// 清单外的 key 会被保存，但不会计入进度。
func (s *State) Set(key string, v model.ChecklistValue) {
	if !v.Decided() {
		delete(s.values, key)
		return
	}
	s.values[key] = v
}

// Get 返回 key 的当前取值。
func (s *State) Get(key string) model.ChecklistValue {
	return s.values[key]
}

// Len 返回已写入（已判定）的 key 数量，包含清单外的 key。
func (s *State) Len() int {
	return len(s.values)
}

// Snapshot 返回当前取值的副本。
func (s *State) Snapshot() map[string]model.ChecklistValue {
	out := make(map[string]model.ChecklistValue, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Reset 清空全部取值。
func (s *State) Reset() {
	s.values = make(map[string]model.ChecklistValue)
}
