package dossierexport

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sqliteadapter "incoming-inspector/internal/adapters/store/sqlite"
	"incoming-inspector/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, b := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestVerifyZip(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	db, err := sqliteadapter.Open(ctx, filepath.Join(tmp, "inspector.db"))
	require.NoError(t, err)
	defer db.Close()
	store := sqliteadapter.NewStore(db)

	in := model.Inspection{
		InspectionID: "ins_verify",
		SessionID:    "ins_verify",
		Company:      "acme",
		ArticleID:    9,
		PartNumber:   "PN-9",
		Decision:     model.DecisionQuarantined,
		Inspector:    "Ana Ruiz",
		Notes:        "corrosion",
		CompletedAt:  10,
	}
	require.NoError(t, store.SaveInspection(ctx, in))
	require.NoError(t, store.AppendAudit(ctx, in.InspectionID, "session", "start", "success", "Ana Ruiz", "test", nil))
	require.NoError(t, store.AppendAudit(ctx, in.InspectionID, "incoming", "quarantine", "success", "Ana Ruiz", "test", map[string]any{"notes": "corrosion"}))

	catalogFile := filepath.Join(tmp, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogFile, []byte("version: '1'\n"), 0o644))

	res, err := GenerateZip(ctx, store, Options{
		InspectionID: in.InspectionID,
		ExportDir:    filepath.Join(tmp, "exports"),
		CatalogPath:  catalogFile,
	})
	require.NoError(t, err)

	t.Run("intact", func(t *testing.T) {
		vr, err := VerifyZip(res.ZipPath)
		require.NoError(t, err)
		assert.True(t, vr.Passed())
		assert.Equal(t, 2, vr.Total) // manifest.json + catalog
		require.NotNil(t, vr.Audit)
		assert.Equal(t, 2, vr.Audit.Total)
	})

	t.Run("tampered manifest", func(t *testing.T) {
		files := readZip(t, res.ZipPath)
		var m map[string]any
		require.NoError(t, json.Unmarshal(files["manifest.json"], &m))
		audits := m["audits"].([]any)
		audits[1].(map[string]any)["status"] = "failed"
		files["manifest.json"], err = json.Marshal(m)
		require.NoError(t, err)

		tampered := filepath.Join(tmp, "tampered.zip")
		writeZip(t, tampered, files)

		vr, err := VerifyZip(tampered)
		require.NoError(t, err)
		assert.False(t, vr.Passed())
		assert.Equal(t, 1, vr.Failed)
		require.NotNil(t, vr.Audit)
		assert.False(t, vr.Audit.OK)
	})

	t.Run("missing entry", func(t *testing.T) {
		files := readZip(t, res.ZipPath)
		delete(files, "catalog/catalog.yaml")
		broken := filepath.Join(tmp, "broken.zip")
		writeZip(t, broken, files)

		vr, err := VerifyZip(broken)
		require.NoError(t, err)
		assert.Equal(t, 1, vr.Failed)
		for _, it := range vr.Items {
			if it.Path == "catalog/catalog.yaml" {
				assert.Equal(t, "missing", it.Status)
			}
		}
	})

	t.Run("no hash list", func(t *testing.T) {
		p := filepath.Join(tmp, "empty.zip")
		writeZip(t, p, map[string][]byte{"manifest.json": []byte("{}")})
		_, err := VerifyZip(p)
		assert.Error(t, err)
	})
}
