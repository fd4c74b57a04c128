package checklist

import (
	"math"

	"incoming-inspector/internal/domain/model"
)

// Progress 是由清单 + 状态推导出的只读统计。
type Progress struct {
	Total      int  `json:"total"`
	Done       int  `json:"done"`
	OKCount    int  `json:"ok_count"`
	Percent    int  `json:"progress"`
	AllDecided bool `json:"all_decided"`
	AllOK      bool `json:"all_ok"`

	// 以下字段仅用于展示/提示，不参与入库门控。
	RequiredTotal  int  `json:"required_total"`
	RequiredDone   int  `json:"required_done"`
	RequiredPassed bool `json:"required_passed"`
}

// ComputeProgress 按清单遍历判定项并统计。只统计清单内的 key。
func ComputeProgress(groups []model.ChecklistGroup, state *State) Progress {
	var p Progress
	for _, g := range groups {
		for _, it := range g.Items {
			p.Total++
			v := state.Get(it.Key)
			if v.Decided() {
				p.Done++
			}
			if v == model.Pass {
				p.OKCount++
			}
			if it.RequiredForAccept {
				p.RequiredTotal++
				if v.Decided() {
					p.RequiredDone++
				}
			}
		}
	}

	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Done) / float64(p.Total) * 100))
	}
	p.AllDecided = p.Done == p.Total
	p.AllOK = p.AllDecided && p.OKCount == p.Total
	// N/A 也视为满足“必检项”要求。
	p.RequiredPassed = p.RequiredDone == p.RequiredTotal
	return p
}
