package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillnest/internal/contact"
	"github.com/hitoshi/skillnest/internal/model"
)

// ContactServiceInterface はお問い合わせハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	Submit(ctx context.Context, f contact.Form) (*model.ContactMessage, error)
}

// ContactHandler はお問い合わせフォームのHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
}

// NewContactHandler はContactHandlerを生成する。
func NewContactHandler(service ContactServiceInterface) *ContactHandler {
	return &ContactHandler{service: service}
}

type contactRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Submit はお問い合わせを受け付ける。
// POST /api/contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Submit(r.Context(), contact.Form{
		Name:     req.Name,
		Email:    req.Email,
		Category: req.Category,
		Message:  req.Message,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toContactResponse(msg))
}
