package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skillnest/internal/challenge"
	"github.com/hitoshi/skillnest/internal/model"
)

// ChallengeServiceInterface はチャレンジハンドラーが必要とするサービスインターフェース。
type ChallengeServiceInterface interface {
	List(ctx context.Context, userID string, f challenge.Filter) ([]model.ChallengeView, error)
	Start(ctx context.Context, userID, challengeID string) (*challenge.ProgressResult, error)
	UpdateProgress(ctx context.Context, userID, challengeID string, percent int) (*challenge.ProgressResult, error)
}

// ChallengeHandler はチャレンジのHTTPハンドラー。
type ChallengeHandler struct {
	service ChallengeServiceInterface
}

// NewChallengeHandler はChallengeHandlerを生成する。
func NewChallengeHandler(service ChallengeServiceInterface) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

type progressRequest struct {
	Percent *int `json:"percent"`
}

// List はチャレンジ一覧を返す。未ログインの場合、進捗はすべて0になる。
// GET /api/challenges?status=in-progress&difficulty=easy
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := challenge.ParseFilter(query.Get("status"), query.Get("difficulty"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	views, err := h.service.List(r.Context(), optionalUserID(r), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]challengeResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toChallengeResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": resp})
}

// Start はチャレンジを開始する。
// POST /api/challenges/{id}/start
func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Start(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResultResponse(result))
}

// UpdateProgress はチャレンジの進捗を更新する。
// POST /api/challenges/{id}/progress
func (h *ChallengeHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req progressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Percent == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"percent": "Progress is required",
		}))
		return
	}

	result, err := h.service.UpdateProgress(r.Context(), userID, chi.URLParam(r, "id"), *req.Percent)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResultResponse(result))
}
