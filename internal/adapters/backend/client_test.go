package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
)

func TestClient_GetArticle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method=%s", r.Method)
		}
		if r.URL.Path != "/acme/warehouse/articles/7" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Fatalf("authorization=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"article":{"id":7,"part_number":"PN-7","has_documentation":true,"quantity":2}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.Token = "service-token"
	a, err := c.GetArticle(WithToken(context.Background(), "user-token"), "acme", 7)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if a.ID != 7 || a.PartNumber != "PN-7" || !a.HasDocumentation {
		t.Fatalf("article=%+v", a)
	}
}

func TestClient_GetArticle_BareObjectAndValidation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/acme/warehouse/articles/1":
			_, _ = w.Write([]byte(`{"id":1,"part_number":"PN-1"}`))
		case "/acme/warehouse/articles/2":
			_, _ = w.Write([]byte(`{"id":2,"part_number":""}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"article not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	a, err := c.GetArticle(context.Background(), "acme", 1)
	if err != nil {
		t.Fatalf("GetArticle bare: %v", err)
	}
	if a.PartNumber != "PN-1" {
		t.Fatalf("part_number=%q", a.PartNumber)
	}

	if _, err := c.GetArticle(context.Background(), "acme", 2); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = c.GetArticle(context.Background(), "acme", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "article not found" {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if !apperr.IsNotFound(err) {
		t.Fatalf("404 should unwrap to ErrNotFound: %v", err)
	}
}

func TestClient_ConfirmIncoming(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got model.IncomingConfirmPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/acme/control_calidad/incoming/confirm" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type=%q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer service-token" {
			t.Fatalf("authorization=%q", auth)
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.Token = "service-token"
	var ops []string
	c.OnRequest = func(op string, _ time.Duration, err error) {
		if err != nil {
			t.Fatalf("observer err: %v", err)
		}
		ops = append(ops, op)
	}

	payload := model.IncomingConfirmPayload{ArticleID: 7, Inspector: "Ana Ruiz", IncomingDate: "2026/10/19"}
	if err := c.ConfirmIncoming(context.Background(), "acme", payload); err != nil {
		t.Fatalf("ConfirmIncoming: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got != payload {
		t.Fatalf("payload=%+v", got)
	}
	if len(ops) != 1 || ops[0] != "confirm_incoming" {
		t.Fatalf("ops=%v", ops)
	}
}

func TestClient_QuarantineIncoming_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/control_calidad/incoming/quarantine" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.QuarantineIncoming(context.Background(), "acme", model.QuarantinePayload{ArticleID: 7})
	if !apperr.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Fatalf("apiErr=%v", apiErr)
	}
}

func TestClient_CurrentUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":3,"first_name":"Ana","last_name":"Ruiz","username":"aruiz"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	u, err := c.CurrentUser(context.Background(), "good")
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.DisplayName() != "Ana Ruiz" {
		t.Fatalf("display=%q", u.DisplayName())
	}

	u, err = c.CurrentUser(context.Background(), "bad")
	if err != nil || u != nil {
		t.Fatalf("expected no user, got %+v, %v", u, err)
	}

	u, err = c.CurrentUser(context.Background(), "")
	if err != nil || u != nil {
		t.Fatalf("empty token: %+v, %v", u, err)
	}
}
