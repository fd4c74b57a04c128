package main

import (
	"context"
	"path/filepath"
	"testing"

	sqliteadapter "incoming-inspector/internal/adapters/store/sqlite"
	"incoming-inspector/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	return cmd.ExecuteContext(context.Background())
}

func TestMigrateAndCatalogValidate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "inspector.db")

	require.NoError(t, execute(t, "--db", dbPath, "migrate"))
	require.NoError(t, execute(t, "--catalog", "../../catalogs/incoming_checklist.yaml", "catalog", "validate"))

	err := execute(t, "--catalog", filepath.Join(t.TempDir(), "missing.yaml"), "catalog", "validate")
	assert.Error(t, err)
}

func TestInvalidLogLevelFlag(t *testing.T) {
	err := execute(t, "--log-level", "chatty", "migrate")
	assert.Error(t, err)
}

func TestExportAndVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "inspector.db")

	db, err := sqliteadapter.Open(ctx, dbPath)
	require.NoError(t, err)
	store := sqliteadapter.NewStore(db)
	require.NoError(t, store.SaveInspection(ctx, model.Inspection{
		InspectionID: "ins_cli",
		SessionID:    "ins_cli",
		Company:      "acme",
		ArticleID:    1,
		PartNumber:   "PN-1",
		Decision:     model.DecisionAccepted,
		Inspector:    "Ana Ruiz",
		CompletedAt:  1,
	}))
	require.NoError(t, store.AppendAudit(ctx, "ins_cli", "incoming", "confirm", "success", "Ana Ruiz", "test", nil))
	require.NoError(t, db.Close())

	catalogPath := "../../catalogs/incoming_checklist.yaml"
	require.NoError(t, execute(t, "--db", dbPath, "--catalog", catalogPath, "verify", "audits", "--inspection-id", "ins_cli"))
	require.NoError(t, execute(t, "--db", dbPath, "--catalog", catalogPath, "export", "zip", "--inspection-id", "ins_cli", "--out-dir", filepath.Join(dir, "exports")))
	require.NoError(t, execute(t, "--db", dbPath, "verify", "reports", "--inspection-id", "ins_cli"))

	matches, err := filepath.Glob(filepath.Join(dir, "exports", "ins_cli_dossier_*.zip"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, execute(t, "verify", "dossier-zip", "--zip", matches[0]))

	assert.Error(t, execute(t, "--db", dbPath, "export", "zip", "--inspection-id", "ins_missing", "--out-dir", filepath.Join(dir, "exports")))
}
