// Package auditverify 重算检验审计链并定位被篡改的记录。
package auditverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/hash"
)

// LogSource 按 subject（会话/检验记录 ID）读取审计日志。
type LogSource interface {
	ListAuditLogs(ctx context.Context, subjectID string, limit int) ([]model.AuditLog, error)
}

// FailureItem 表示一条审计记录的校验失败明细（用于 UI/CLI 展示）。
type FailureItem struct {
	Index int `json:"index"`

	EventID    string `json:"event_id"`
	SubjectID  string `json:"subject_id"`
	OccurredAt int64  `json:"occurred_at"`
	EventType  string `json:"event_type"`
	Action     string `json:"action"`
	Status     string `json:"status"`

	// SubjectMismatch 表示记录不属于本次校验的 subject（链被拼接）。
	SubjectMismatch bool `json:"subject_mismatch,omitempty"`

	PrevHashMismatch bool   `json:"prev_hash_mismatch"`
	ExpectedPrevHash string `json:"expected_prev_hash,omitempty"`
	ActualPrevHash   string `json:"actual_prev_hash,omitempty"`

	ChainHashMismatch bool   `json:"chain_hash_mismatch"`
	ExpectedChainHash string `json:"expected_chain_hash,omitempty"`
	ActualChainHash   string `json:"actual_chain_hash,omitempty"`

	Message string `json:"message,omitempty"`
}

// Result 是审计链校验结果。
type Result struct {
	OK        bool   `json:"ok"`
	SubjectID string `json:"subject_id,omitempty"`
	Total     int    `json:"total"`

	Failed          int `json:"failed"`
	PrevHashFailed  int `json:"prev_hash_failed"`
	ChainHashFailed int `json:"chain_hash_failed"`

	LastChainHash string        `json:"last_chain_hash,omitempty"`
	Failures      []FailureItem `json:"failures"`
}

// Verify 读取 subject 的全部审计日志并校验。
func Verify(ctx context.Context, src LogSource, subjectID string) (Result, error) {
	logs, err := src.ListAuditLogs(ctx, subjectID, 5000)
	if err != nil {
		return Result{}, fmt.Errorf("load audit logs %s: %w", subjectID, err)
	}
	return VerifyAuditLogs(logs), nil
}

// VerifyAuditLogs 校验一条审计链：
// chain_prev_hash 必须等于上一条的 chain_hash，chain_hash 必须等于按公式重算的值。
// 公式与 Store.AppendAudit 一致：
//
//	sha256(prev \n subject_id \n event_type \n action \n status \n occurred_at \n detail_json)
//
// 链的 subject 取第一条记录的 subject_id。
func VerifyAuditLogs(logs []model.AuditLog) Result {
	res := Result{
		OK:       true,
		Total:    len(logs),
		Failures: []FailureItem{},
	}
	if len(logs) > 0 {
		res.SubjectID = logs[0].SubjectID
	}

	prev := ""
	for i, it := range logs {
		actualPrev := strings.TrimSpace(it.ChainPrevHash)
		actualChain := strings.TrimSpace(it.ChainHash)

		// 导出 ZIP 的 manifest 会美化 detail_json，先 compact 再重算。
		expectedChain := hash.AuditChain(prev, it.SubjectID, it.EventType, it.Action, it.Status, it.OccurredAt, compactJSON(it.DetailJSON))

		f := FailureItem{
			Index:      i,
			EventID:    it.EventID,
			SubjectID:  it.SubjectID,
			OccurredAt: it.OccurredAt,
			EventType:  it.EventType,
			Action:     it.Action,
			Status:     it.Status,

			SubjectMismatch: it.SubjectID != res.SubjectID,

			PrevHashMismatch: actualPrev != prev,
			ExpectedPrevHash: prev,
			ActualPrevHash:   actualPrev,

			ChainHashMismatch: actualChain != expectedChain,
			ExpectedChainHash: expectedChain,
			ActualChainHash:   actualChain,
		}

		if f.SubjectMismatch || f.PrevHashMismatch || f.ChainHashMismatch {
			res.OK = false
			res.Failed++
			if f.PrevHashMismatch {
				res.PrevHashFailed++
			}
			if f.ChainHashMismatch {
				res.ChainHashFailed++
			}
			f.Message = failureMessage(f)
			res.Failures = append(res.Failures, f)
		}

		// 以库中记录的 chain_hash 推进，后续记录仍可独立定位异常。
		prev = actualChain
		res.LastChainHash = actualChain
	}

	return res
}

func failureMessage(f FailureItem) string {
	var parts []string
	if f.SubjectMismatch {
		parts = append(parts, "subject_id mismatch")
	}
	if f.PrevHashMismatch {
		parts = append(parts, "chain_prev_hash mismatch")
	}
	if f.ChainHashMismatch {
		parts = append(parts, "chain_hash mismatch")
	}
	return strings.Join(parts, "; ")
}

func compactJSON(in []byte) string {
	if len(bytes.TrimSpace(in)) == 0 {
		return "{}"
	}
	var b bytes.Buffer
	if err := json.Compact(&b, in); err == nil {
		return b.String()
	}
	return strings.TrimSpace(string(in))
}
