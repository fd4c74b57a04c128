package webapp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"incoming-inspector/internal/services/auditverify"
	"incoming-inspector/internal/services/dossierexport"
	"incoming-inspector/internal/services/inspectionpdf"
)

type exportRequest struct {
	Operator string `json:"operator,omitempty"`
	Note     string `json:"note,omitempty"`
}

func (s *Server) handleInspections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 50)
	offset := parseInt(q.Get("offset"), 0)
	company := strings.TrimSpace(q.Get("company"))

	rows, err := s.store.ListInspections(r.Context(), company, limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inspections": rows})
}

func (s *Server) handleInspectionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/inspections/"), "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	inspectionID := parts[0]
	sub := strings.Join(parts[1:], "/")

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		in, err := s.store.GetInspection(r.Context(), inspectionID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		reports, err := s.store.ListReportsByInspection(r.Context(), inspectionID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"inspection": in,
			"reports":    reports,
		})

	case "audits":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := parseInt(r.URL.Query().Get("limit"), 500)
		logs, err := s.store.ListAuditLogs(r.Context(), inspectionID, limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audits": logs})

	case "reports":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reports, err := s.store.ListReportsByInspection(r.Context(), inspectionID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})

	case "verify/audits":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.store.GetInspection(r.Context(), inspectionID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		res, err := auditverify.Verify(r.Context(), s.store, inspectionID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case "exports/pdf", "exports/zip", "exports/all":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := s.exportRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		switch sub {
		case "exports/pdf":
			res, err := inspectionpdf.Generate(r.Context(), s.store, inspectionpdf.Options{
				InspectionID: inspectionID,
				OutputDir:    s.cfg.ReportsDir(),
				Operator:     req.Operator,
				Note:         req.Note,
			})
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		case "exports/zip":
			res, err := dossierexport.GenerateZip(r.Context(), s.store, dossierexport.Options{
				InspectionID: inspectionID,
				ExportDir:    s.cfg.ExportsDir(),
				CatalogPath:  s.cfg.CatalogPath,
				Operator:     req.Operator,
				Note:         req.Note,
			})
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		default:
			if _, err := s.store.GetInspection(r.Context(), inspectionID); err != nil {
				s.writeServiceError(w, err)
				return
			}
			job := s.startExportJob(inspectionID, req)
			writeJSON(w, http.StatusAccepted, job)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// exportRequest 解析导出请求体（可为空）；未指定操作人时取当前登录用户。
func (s *Server) exportRequest(r *http.Request) (exportRequest, error) {
	var req exportRequest
	if r.Body != nil {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
	}
	req.Operator = strings.TrimSpace(req.Operator)
	req.Note = strings.TrimSpace(req.Note)
	if req.Operator == "" {
		if user, err := s.currentUser(r); err == nil && user != nil {
			req.Operator = user.DisplayName()
		}
	}
	if req.Operator == "" {
		req.Operator = "system"
	}
	return req, nil
}

// handleReportRoutes: GET /api/reports/{id}/download
func (s *Server) handleReportRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "download" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reportID := parts[0]
	info, err := s.store.GetReportByID(r.Context(), reportID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("report not found: %s", reportID))
		return
	}
	serveFile(w, r, info.FilePath, info.InspectionID+"_"+info.ReportType)
}

func serveFile(w http.ResponseWriter, r *http.Request, path string, downloadBase string) {
	name := filepath.Base(path)
	if downloadBase != "" {
		name = downloadBase + filepath.Ext(name)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
