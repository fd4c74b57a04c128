package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/hash"
	"incoming-inspector/internal/platform/id"
)

// Store 封装与 SQLite 的读写逻辑。
type Store struct {
	db *sql.DB
	// 审计链需要“读上一条 hash + 写新记录”原子完成。
	auditMu sync.Mutex
	now     func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetSchemaMetaValue 查询 schema_meta 表指定 key 的 value。
func (s *Store) GetSchemaMetaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM schema_meta
		WHERE key = ?
		LIMIT 1
	`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query schema_meta %s: %w", key, err)
	}
	return v, nil
}

// SaveInspection 写入一次已完成检验及其判定明细，使用事务保证原子性。
func (s *Store) SaveInspection(ctx context.Context, in model.Inspection) (err error) {
	if in.InspectionID == "" {
		return fmt.Errorf("save inspection: empty inspection_id: %w", apperr.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx save inspection: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inspections(
			inspection_id, session_id, company, article_id, part_number, serial_number,
			batch_number, description, has_documentation, decision, inspector, incoming_date,
			notes, catalog_identity, total, ok_count, started_at, completed_at, record_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.InspectionID,
		in.SessionID,
		in.Company,
		in.ArticleID,
		in.PartNumber,
		nullIfEmpty(in.SerialNumber),
		nullIfEmpty(in.BatchNumber),
		nullIfEmpty(in.Description),
		boolToInt(in.HasDocumentation),
		string(in.Decision),
		in.Inspector,
		nullIfEmpty(in.IncomingDate),
		nullIfEmpty(in.Notes),
		in.CatalogIdentity,
		in.Total,
		in.OKCount,
		in.StartedAt,
		in.CompletedAt,
		in.RecordHash,
	)
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}

	if len(in.Items) > 0 {
		stmt, perr := tx.PrepareContext(ctx, `
			INSERT INTO inspection_items(
				inspection_id, position, group_id, group_title, item_key, label, required_for_accept, value
			)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if perr != nil {
			return fmt.Errorf("prepare insert inspection items: %w", perr)
		}
		defer stmt.Close()

		for _, it := range in.Items {
			_, err = stmt.ExecContext(ctx,
				in.InspectionID,
				it.Position,
				it.GroupID,
				it.GroupTitle,
				it.Key,
				it.Label,
				boolToInt(it.RequiredForAccept),
				it.Value.String(),
			)
			if err != nil {
				return fmt.Errorf("insert inspection item %s: %w", it.Key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save inspection: %w", err)
	}
	return nil
}

// GetInspection 返回检验记录及判定明细；不存在时返回 apperr.ErrNotFound。
func (s *Store) GetInspection(ctx context.Context, inspectionID string) (*model.Inspection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			inspection_id,
			session_id,
			company,
			article_id,
			part_number,
			COALESCE(serial_number, ''),
			COALESCE(batch_number, ''),
			COALESCE(description, ''),
			has_documentation,
			decision,
			inspector,
			COALESCE(incoming_date, ''),
			COALESCE(notes, ''),
			catalog_identity,
			total,
			ok_count,
			started_at,
			completed_at,
			record_hash
		FROM inspections
		WHERE inspection_id = ?
		LIMIT 1
	`, inspectionID)

	var out model.Inspection
	var hasDoc int
	var decision string
	if err := row.Scan(
		&out.InspectionID,
		&out.SessionID,
		&out.Company,
		&out.ArticleID,
		&out.PartNumber,
		&out.SerialNumber,
		&out.BatchNumber,
		&out.Description,
		&hasDoc,
		&decision,
		&out.Inspector,
		&out.IncomingDate,
		&out.Notes,
		&out.CatalogIdentity,
		&out.Total,
		&out.OKCount,
		&out.StartedAt,
		&out.CompletedAt,
		&out.RecordHash,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inspection %s: %w", inspectionID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("query inspection: %w", err)
	}
	out.HasDocumentation = hasDoc == 1
	out.Decision = model.Decision(decision)

	items, err := s.listInspectionItems(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return &out, nil
}

func (s *Store) listInspectionItems(ctx context.Context, inspectionID string) ([]model.InspectionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, group_id, group_title, item_key, label, required_for_accept, value
		FROM inspection_items
		WHERE inspection_id = ?
		ORDER BY position ASC
	`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query inspection items: %w", err)
	}
	defer rows.Close()

	out := []model.InspectionItem{}
	for rows.Next() {
		var item model.InspectionItem
		var required int
		var value string
		if err := rows.Scan(
			&item.Position,
			&item.GroupID,
			&item.GroupTitle,
			&item.Key,
			&item.Label,
			&required,
			&value,
		); err != nil {
			return nil, fmt.Errorf("scan inspection item: %w", err)
		}
		item.RequiredForAccept = required == 1
		v, err := model.ParseChecklistValue(value)
		if err != nil {
			return nil, fmt.Errorf("inspection item %s: %w", item.Key, err)
		}
		item.Value = v
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspection items: %w", err)
	}
	return out, nil
}

// ListInspections 返回检验记录列表，按完成时间倒序；company 为空时不过滤。
func (s *Store) ListInspections(ctx context.Context, company string, limit, offset int) ([]model.InspectionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			inspection_id,
			company,
			article_id,
			part_number,
			decision,
			inspector,
			COALESCE(incoming_date, ''),
			completed_at
		FROM inspections
		WHERE (? = '' OR company = ?)
		ORDER BY completed_at DESC, inspection_id DESC
		LIMIT ? OFFSET ?
	`, company, company, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query inspections: %w", err)
	}
	defer rows.Close()

	var out []model.InspectionSummary
	for rows.Next() {
		var item model.InspectionSummary
		var decision string
		if err := rows.Scan(
			&item.InspectionID,
			&item.Company,
			&item.ArticleID,
			&item.PartNumber,
			&decision,
			&item.Inspector,
			&item.IncomingDate,
			&item.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inspection summary: %w", err)
		}
		item.Decision = model.Decision(decision)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspection summaries: %w", err)
	}
	if out == nil {
		out = []model.InspectionSummary{}
	}
	return out, nil
}

// AppendAudit 写入审计日志，并生成链式 hash 以便后续校验完整性。
// 同一 subject（会话/检验记录）的日志串成一条链。
func (s *Store) AppendAudit(ctx context.Context, subjectID, eventType, action, status, actor, source string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			detailJSON = raw
		}
	}

	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	prev := ""
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM audit_logs
		WHERE subject_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, subjectID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := s.now().Unix()
	eventID := id.New("evt")
	chain := hash.AuditChain(prev, subjectID, eventType, action, status, now, string(detailJSON))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs(
			event_id, subject_id, event_type, action, status,
			actor, source, detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, subjectID, eventType, action, status, nullIfEmpty(actor), nullIfEmpty(source), string(detailJSON), now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// ListAuditLogs 返回 subject 的审计日志（按写入顺序）。
func (s *Store) ListAuditLogs(ctx context.Context, subjectID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			event_id,
			subject_id,
			event_type,
			action,
			status,
			COALESCE(actor, ''),
			COALESCE(source, ''),
			COALESCE(detail_json, '{}'),
			occurred_at,
			COALESCE(chain_prev_hash, ''),
			chain_hash
		FROM audit_logs
		WHERE subject_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var item model.AuditLog
		var detail string
		if err := rows.Scan(
			&item.EventID,
			&item.SubjectID,
			&item.EventType,
			&item.Action,
			&item.Status,
			&item.Actor,
			&item.Source,
			&detail,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		item.DetailJSON = json.RawMessage(detail)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

// SaveReport 记录报告产物信息，供 UI 或导出流程追踪。
func (s *Store) SaveReport(ctx context.Context, inspectionID, reportType, filePath, sha256, generatorVersion, status string) (string, error) {
	reportID := id.New("report")
	now := s.now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports(
			report_id, inspection_id, report_type, file_path, sha256, generated_at, generator_version, status
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, reportID, inspectionID, reportType, filePath, sha256, now, generatorVersion, status)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return reportID, nil
}

// GetReportByID 按报告 ID 查询报告索引；不存在时返回 nil, nil。
func (s *Store) GetReportByID(ctx context.Context, reportID string) (*model.ReportInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, inspection_id, report_type, file_path, sha256, generated_at, generator_version, status
		FROM reports
		WHERE report_id = ?
		LIMIT 1
	`, reportID)

	var out model.ReportInfo
	if err := row.Scan(
		&out.ReportID,
		&out.InspectionID,
		&out.ReportType,
		&out.FilePath,
		&out.SHA256,
		&out.GeneratedAt,
		&out.GeneratorVersion,
		&out.Status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query report info: %w", err)
	}
	return &out, nil
}

// ListReportsByInspection 返回检验记录的全部报告索引，按生成时间倒序。
func (s *Store) ListReportsByInspection(ctx context.Context, inspectionID string) ([]model.ReportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, inspection_id, report_type, file_path, sha256, generated_at, generator_version, status
		FROM reports
		WHERE inspection_id = ?
		ORDER BY generated_at DESC, report_id DESC
	`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query reports by inspection: %w", err)
	}
	defer rows.Close()

	var out []model.ReportInfo
	for rows.Next() {
		var item model.ReportInfo
		if err := rows.Scan(
			&item.ReportID,
			&item.InspectionID,
			&item.ReportType,
			&item.FilePath,
			&item.SHA256,
			&item.GeneratedAt,
			&item.GeneratorVersion,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	if out == nil {
		out = []model.ReportInfo{}
	}
	return out, nil
}

// SQLite 中没有布尔类型，统一转 0/1 存储。
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// 空字符串按 NULL 写入，避免无意义空值污染查询条件。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
