package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incoming-inspector/internal/adapters/backend"
	"incoming-inspector/internal/adapters/catalog"
	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/incoming"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "webapp",
		"time":    time.Now().Unix(),
	})
}

// withToken 把请求头中的 bearer token 放入上下文，远端调用时代表当前用户。
func (s *Server) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			r = r.WithContext(backend.WithToken(r.Context(), token))
		}
		next(w, r)
	}
}

// currentUser 解析当前检验员；没有 token 或 token 无效时返回 nil。
func (s *Server) currentUser(r *http.Request) (*model.User, error) {
	token := bearerToken(r)
	if token == "" || s.users == nil {
		return nil, nil
	}
	return s.users.CurrentUser(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// --- companies ---

// handleCompanyRoutes: POST /api/companies/{company}/incoming/{article_id}/sessions
func (s *Server) handleCompanyRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/companies/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "incoming" || parts[3] != "sessions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	articleID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || articleID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid article_id: %s", parts[2]))
		return
	}

	user, err := s.currentUser(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	view, err := s.svc.Start(r.Context(), parts[0], articleID, user)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// --- sessions ---

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.svc.ListSessions()})
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	sessionID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			view, err := s.svc.View(sessionID)
			s.respondView(w, view, err)
		case http.MethodDelete:
			if err := s.svc.Close(r.Context(), sessionID); err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": sessionID})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case len(parts) == 3 && parts[1] == "items":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Value model.ChecklistValue `json:"value"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := s.svc.SetValue(sessionID, parts[2], req.Value)
		s.respondView(w, view, err)

	case len(parts) == 2 && parts[1] == "notes":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Notes string `json:"notes"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := s.svc.SetNotes(sessionID, req.Notes)
		s.respondView(w, view, err)

	case len(parts) >= 2 && parts[1] == "confirm":
		s.handleConfirmRoutes(w, r, sessionID, parts[2:])

	case len(parts) == 2 && parts[1] == "quarantine":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		user, err := s.currentUser(r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		res, err := s.svc.Quarantine(r.Context(), sessionID, user)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleConfirmRoutes 处理确认入库弹窗：open / date / cancel / 提交。
func (s *Server) handleConfirmRoutes(w http.ResponseWriter, r *http.Request, sessionID string, sub []string) {
	action := ""
	if len(sub) == 1 {
		action = sub[0]
	} else if len(sub) > 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		user, err := s.currentUser(r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		res, err := s.svc.Confirm(r.Context(), sessionID, user)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "open":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		view, err := s.svc.OpenConfirm(sessionID)
		s.respondView(w, view, err)
	case "date":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			IncomingDate string `json:"incoming_date"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		date, err := incoming.ParseIncomingDate(req.IncomingDate)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		view, err := s.svc.SetIncomingDate(sessionID, date)
		s.respondView(w, view, err)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		view, err := s.svc.CancelConfirm(sessionID)
		s.respondView(w, view, err)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) respondView(w http.ResponseWriter, view *incoming.SessionView, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- helpers ---

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status >= 500:
		return http.StatusBadGateway
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case apperr.IsUnauthorized(err):
		return http.StatusUnauthorized
	case apperr.IsInvalidState(err), apperr.IsConflict(err):
		return http.StatusConflict
	case apperr.IsUpstream(err):
		return http.StatusBadGateway
	case errors.Is(err, catalog.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", logging.F("status", status), logging.Err(err))
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"gate":  incoming.IsGateError(err),
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string, def bool) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def
	}
	switch s {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
