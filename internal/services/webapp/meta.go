package webapp

import (
	"net/http"
	"time"

	"incoming-inspector/internal/app"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/privacy"
)

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	dbInfo := map[string]any{"path": s.cfg.DBPath}
	for _, key := range []string{"schema_version", "record_hash_algo"} {
		v, err := s.store.GetSchemaMetaValue(r.Context(), key)
		if err != nil {
			s.log.Error("read schema meta failed", logging.F("key", key), logging.Err(err))
			dbInfo["error"] = err.Error()
			continue
		}
		dbInfo[key] = v
	}

	catalogInfo := map[string]any{
		"path":   s.cfg.CatalogPath,
		"loaded": false,
	}
	if cur := s.catalog.Current(); cur != nil {
		catalogInfo["loaded"] = true
		catalogInfo["version"] = cur.Bundle.Version
		catalogInfo["sha256"] = cur.SHA256
		catalogInfo["total"] = cur.ItemCount()
		catalogInfo["groups"] = len(cur.Bundle.Groups)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Unix(),
		"app": map[string]any{
			"version":    app.Version,
			"commit":     app.Commit,
			"build_time": app.BuildTime,
		},
		"db": dbInfo,
		"backend": map[string]any{
			"url":       privacy.MaskURL(s.cfg.BackendURL),
			"has_token": s.cfg.BackendToken != "",
		},
		"catalog":         catalogInfo,
		"active_sessions": len(s.svc.ListSessions()),
	})
}
