package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/hash"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "inspector.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleInspection(id, company string, completedAt int64) model.Inspection {
	return model.Inspection{
		InspectionID:     id,
		SessionID:        id,
		Company:          company,
		ArticleID:        42,
		PartNumber:       "PN-100",
		SerialNumber:     "SN-1",
		HasDocumentation: true,
		Decision:         model.DecisionAccepted,
		Inspector:        "Ana Ruiz",
		IncomingDate:     "2026/10/19",
		CatalogIdentity:  "abc:doc",
		Total:            2,
		OKCount:          1,
		StartedAt:        completedAt - 60,
		CompletedAt:      completedAt,
		RecordHash:       "deadbeef",
		Items: []model.InspectionItem{
			{GroupID: "docs", GroupTitle: "Docs", Key: "cert", Label: "Certificate", RequiredForAccept: true, Value: model.Pass, Position: 0},
			{GroupID: "phys", GroupTitle: "Physical", Key: "esd", Label: "ESD bag", Value: model.NotApplicable, Position: 1},
		},
	}
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	ran, err := NewMigrator(s.db).Up(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ran)

	v, err := s.GetSchemaMetaValue(context.Background(), "schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	missing, err := s.GetSchemaMetaValue(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStore_SaveAndGetInspection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	in := sampleInspection("ins_1", "acme", 1000)
	require.NoError(t, s.SaveInspection(ctx, in))

	got, err := s.GetInspection(ctx, "ins_1")
	require.NoError(t, err)
	assert.Equal(t, in, *got)

	// 同一 ID 不允许重复写入。
	require.Error(t, s.SaveInspection(ctx, in))

	_, err = s.GetInspection(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestStore_ListInspectionsFiltersByCompany(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SaveInspection(ctx, sampleInspection("ins_a", "acme", 100)))
	require.NoError(t, s.SaveInspection(ctx, sampleInspection("ins_b", "acme", 200)))
	require.NoError(t, s.SaveInspection(ctx, sampleInspection("ins_c", "globex", 300)))

	all, err := s.ListInspections(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ins_c", all[0].InspectionID)

	acme, err := s.ListInspections(ctx, "acme", 10, 0)
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "ins_b", acme[0].InspectionID)
	assert.Equal(t, model.DecisionAccepted, acme[0].Decision)

	page, err := s.ListInspections(ctx, "acme", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ins_a", page[0].InspectionID)

	none, err := s.ListInspections(ctx, "initech", 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_AppendAuditChainsPerSubject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, s.AppendAudit(ctx, "ins_1", "incoming", "start", "success", "ana", "test", map[string]any{"article_id": 42}))
	require.NoError(t, s.AppendAudit(ctx, "ins_2", "incoming", "start", "success", "bob", "test", nil))
	require.NoError(t, s.AppendAudit(ctx, "ins_1", "incoming", "confirm", "success", "ana", "test", nil))

	logs, err := s.ListAuditLogs(ctx, "ins_1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Empty(t, logs[0].ChainPrevHash)
	assert.JSONEq(t, `{"article_id":42}`, string(logs[0].DetailJSON))
	assert.Equal(t, hash.Text("", "ins_1", "incoming", "start", "success", "1700000000", `{"article_id":42}`), logs[0].ChainHash)
	assert.Equal(t, logs[0].ChainHash, logs[1].ChainPrevHash)
	assert.Equal(t, "confirm", logs[1].Action)

	other, err := s.ListAuditLogs(ctx, "ins_2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].ChainPrevHash)
	assert.Equal(t, "{}", string(other[0].DetailJSON))
}

func TestStore_Reports(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	reportID, err := s.SaveReport(ctx, "ins_1", "inspection_pdf", "/tmp/r.pdf", "abc", "dev", "ready")
	require.NoError(t, err)

	got, err := s.GetReportByID(ctx, reportID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ins_1", got.InspectionID)
	assert.Equal(t, "inspection_pdf", got.ReportType)

	missing, err := s.GetReportByID(ctx, "report_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := s.ListReportsByInspection(ctx, "ins_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, reportID, list[0].ReportID)
}
