package webapp

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"incoming-inspector/internal/adapters/catalog"
	"incoming-inspector/internal/platform/logging"
)

// handleCatalog:
//   - GET /api/catalog?has_documentation=true|false  当前生效清单（未加载时 503）
//   - PUT /api/catalog                                导入新清单（校验通过后覆盖清单文件并重新加载）
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleCatalogGet(w, r)
	case http.MethodPut:
		s.handleCatalogImport(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCatalogGet(w http.ResponseWriter, r *http.Request) {
	cur := s.catalog.Current()
	if cur == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   catalog.ErrNotLoaded.Error(),
			"loading": true,
		})
		return
	}

	resp := map[string]any{
		"ok":      true,
		"path":    cur.Path,
		"version": cur.Bundle.Version,
		"sha256":  cur.SHA256,
		"total":   cur.ItemCount(),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("has_documentation")); raw != "" {
		hasDoc := parseBool(raw, false)
		resp["has_documentation"] = hasDoc
		resp["identity"] = cur.Identity(hasDoc)
		resp["groups"] = cur.Groups(hasDoc)
	} else {
		resp["with_documentation"] = cur.Groups(true)
		resp["without_documentation"] = cur.Groups(false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCatalogReload: POST /api/catalog/reload
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	changed, err := s.reloadCatalog(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("catalog reload failed: %w", err))
		return
	}
	cur := s.catalog.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"changed": changed,
		"sha256":  cur.SHA256,
	})
}

// handleCatalogImport 接收清单原文，校验通过后原子替换清单文件并重新加载。
// 格式按当前清单文件的扩展名解析（.yaml/.yml/.plist）。
func (s *Server) handleCatalogImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("empty content"))
		return
	}

	dst := s.cfg.CatalogPath
	bundle, err := catalog.Parse([]byte(content), filepath.Ext(dst))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid catalog: %w", err))
		return
	}
	if err := catalog.Validate(bundle); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("catalog validation failed: %w", err))
		return
	}

	if err := writeFileAtomic(dst, []byte(content+"\n")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	changed, err := s.reloadCatalog(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("catalog reload failed: %w", err))
		return
	}
	s.log.Info("catalog imported", logging.F("path", dst), logging.F("version", bundle.Version), logging.F("changed", changed))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"changed": changed,
		"path":    dst,
		"version": bundle.Version,
		"sha256":  s.catalog.Current().SHA256,
	})
}

func (s *Server) reloadCatalog(r *http.Request) (bool, error) {
	changed, err := s.catalog.Reload(r.Context())
	switch {
	case err != nil:
		s.metrics.ObserveCatalogReload("failed")
	case changed:
		s.metrics.ObserveCatalogReload("changed")
	default:
		s.metrics.ObserveCatalogReload("unchanged")
	}
	return changed, err
}

// writeFileAtomic 先写同目录临时文件再 rename，避免 watcher 读到半截内容。
func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace catalog file: %w", err)
	}
	return nil
}
