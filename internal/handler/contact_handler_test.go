package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/skillnest/internal/contact"
	"github.com/hitoshi/skillnest/internal/model"
)

type mockContactService struct {
	submitFn func(ctx context.Context, f contact.Form) (*model.ContactMessage, error)
}

func (m *mockContactService) Submit(ctx context.Context, f contact.Form) (*model.ContactMessage, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, f)
	}
	return nil, nil
}

func TestContactHandler_Submit_Created(t *testing.T) {
	svc := &mockContactService{
		submitFn: func(ctx context.Context, f contact.Form) (*model.ContactMessage, error) {
			if f.Name != "Ada" || f.Category != "feedback" {
				t.Errorf("form = %+v", f)
			}
			return &model.ContactMessage{
				ID:        "c-1",
				Category:  model.ContactCategory(f.Category),
				CreatedAt: time.Now(),
			}, nil
		},
	}
	h := NewContactHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, jsonRequest(http.MethodPost, "/api/contact",
		`{"name":"Ada","email":"ada@example.com","category":"feedback","message":"Lovely platform!"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var body contactResponse
	decodeBody(t, w, &body)
	if body.ID != "c-1" || body.Category != "feedback" {
		t.Errorf("body = %+v", body)
	}
}

func TestContactHandler_Submit_ValidationError(t *testing.T) {
	svc := &mockContactService{
		submitFn: func(ctx context.Context, f contact.Form) (*model.ContactMessage, error) {
			return nil, model.NewValidationError(map[string]string{"message": "Message must be at least 10 characters"})
		},
	}
	h := NewContactHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, jsonRequest(http.MethodPost, "/api/contact", `{"message":"hi"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Fields["message"] == "" {
		t.Errorf("fields = %v", body.Fields)
	}
}
