package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

type mockNewsService struct {
	listFn func(ctx context.Context, category string, limit int) ([]model.NewsItem, error)
}

func (m *mockNewsService) List(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, category, limit)
	}
	return []model.NewsItem{}, nil
}

func TestNewsHandler_List_PassesQuery(t *testing.T) {
	published := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockNewsService{
		listFn: func(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
			if category != "ai" || limit != 5 {
				t.Errorf("category/limit = %q/%d", category, limit)
			}
			return []model.NewsItem{{
				ID:          "n1",
				Title:       "Go 1.26 released",
				Description: "Plain text summary",
				Link:        "https://go.dev/blog/go1.26",
				Source:      "The Go Blog",
				ImageURL:    "https://go.dev/images/gopher.png",
				Category:    "ai",
				PublishedAt: published,
			}}, nil
		},
	}
	h := NewNewsHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/news?category=ai&limit=5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Items []newsItemResponse `json:"items"`
	}
	decodeBody(t, w, &body)
	if len(body.Items) != 1 {
		t.Fatalf("items len = %d, want 1", len(body.Items))
	}
	if body.Items[0].ImageURL != "https://go.dev/images/gopher.png" || !body.Items[0].PublishedAt.Equal(published) {
		t.Errorf("item = %+v", body.Items[0])
	}
}

func TestNewsHandler_List_DefaultLimitIsZero(t *testing.T) {
	var gotLimit = -1
	svc := &mockNewsService{
		listFn: func(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	h := NewNewsHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if gotLimit != 0 {
		t.Errorf("limit = %d, want 0 (service default)", gotLimit)
	}
	if got := w.Body.String(); got != "{\"items\":[]}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestNewsHandler_List_InvalidLimit(t *testing.T) {
	h := NewNewsHandler(&mockNewsService{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/news?limit=ten", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidFilter {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidFilter)
	}
}

func TestNewsHandler_List_ServiceError(t *testing.T) {
	svc := &mockNewsService{
		listFn: func(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
			return nil, errors.New("db error")
		},
	}
	h := NewNewsHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
