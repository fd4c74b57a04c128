package model

import "encoding/json"

// IncomingDateLayout 是 incoming_date 的提交格式（yyyy/MM/dd）。
const IncomingDateLayout = "2006/01/02"

// IncomingConfirmPayload 是“确认入库”提交给远端 API 的数据。
type IncomingConfirmPayload struct {
	ArticleID    int64  `json:"article_id"`
	Inspector    string `json:"inspector"`
	IncomingDate string `json:"incoming_date"`
}

// QuarantinePayload 是“隔离”提交给远端 API 的数据，附带检验员说明与判定结果。
type QuarantinePayload struct {
	ArticleID int64             `json:"article_id"`
	Inspector string            `json:"inspector"`
	Notes     string            `json:"notes"`
	Checklist map[string]string `json:"checklist"`
}

// Decision 是一次检验的最终处置。
type Decision string

const (
	// DecisionAccepted 表示检验通过、确认入库。
	DecisionAccepted Decision = "accepted"
	// DecisionQuarantined 表示隔离待复核。
	DecisionQuarantined Decision = "quarantined"
)

// InspectionItem 是检验记录中一条判定项的最终取值（inspection_items 表）。
type InspectionItem struct {
	GroupID           string         `json:"group_id"`
	GroupTitle        string         `json:"group_title"`
	Key               string         `json:"key"`
	Label             string         `json:"label"`
	RequiredForAccept bool           `json:"required_for_accept"`
	Value             ChecklistValue `json:"value"`
	Position          int            `json:"position"`
}

// Inspection 是一次已完成检验的落库记录（inspections 表）。
// 会话过程本身不落库，只有终态（入库/隔离）才会写入。
type Inspection struct {
	InspectionID     string           `json:"inspection_id"`
	SessionID        string           `json:"session_id"`
	Company          string           `json:"company"`
	ArticleID        int64            `json:"article_id"`
	PartNumber       string           `json:"part_number"`
	SerialNumber     string           `json:"serial,omitempty"`
	BatchNumber      string           `json:"batch,omitempty"`
	Description      string           `json:"description,omitempty"`
	HasDocumentation bool             `json:"has_documentation"`
	Decision         Decision         `json:"decision"`
	Inspector        string           `json:"inspector"`
	IncomingDate     string           `json:"incoming_date,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CatalogIdentity  string           `json:"catalog_identity"`
	Total            int              `json:"total"`
	OKCount          int              `json:"ok_count"`
	StartedAt        int64            `json:"started_at"`
	CompletedAt      int64            `json:"completed_at"`
	RecordHash       string           `json:"record_hash,omitempty"`
	Items            []InspectionItem `json:"items,omitempty"`
}

// InspectionSummary 是列表页使用的轻量结构（不含判定明细）。
type InspectionSummary struct {
	InspectionID string   `json:"inspection_id"`
	Company      string   `json:"company"`
	ArticleID    int64    `json:"article_id"`
	PartNumber   string   `json:"part_number"`
	Decision     Decision `json:"decision"`
	Inspector    string   `json:"inspector"`
	IncomingDate string   `json:"incoming_date,omitempty"`
	CompletedAt  int64    `json:"completed_at"`
}

// AuditLog 表示一条审计日志记录（audit_logs 表）。
// SubjectID 为会话 ID 或检验记录 ID；同一 subject 的记录按 chain_hash 串成链。
type AuditLog struct {
	EventID       string          `json:"event_id"`
	SubjectID     string          `json:"subject_id"`
	EventType     string          `json:"event_type"`
	Action        string          `json:"action"`
	Status        string          `json:"status"`
	Actor         string          `json:"actor,omitempty"`
	Source        string          `json:"source,omitempty"`
	DetailJSON    json.RawMessage `json:"detail_json,omitempty"`
	OccurredAt    int64           `json:"occurred_at"`
	ChainPrevHash string          `json:"chain_prev_hash,omitempty"`
	ChainHash     string          `json:"chain_hash"`
}

// ReportInfo 表示报告产物索引信息（reports 表）。
type ReportInfo struct {
	ReportID         string `json:"report_id"`
	InspectionID     string `json:"inspection_id"`
	ReportType       string `json:"report_type"`
	FilePath         string `json:"file_path"`
	SHA256           string `json:"sha256"`
	GeneratedAt      int64  `json:"generated_at"`
	GeneratorVersion string `json:"generator_version"`
	Status           string `json:"status"`
}
