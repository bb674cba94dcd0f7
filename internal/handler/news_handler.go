package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/skillnest/internal/model"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	List(ctx context.Context, category string, limit int) ([]model.NewsItem, error)
}

// NewsHandler はテックニュースのHTTPハンドラー。
type NewsHandler struct {
	service NewsServiceInterface
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(service NewsServiceInterface) *NewsHandler {
	return &NewsHandler{service: service}
}

// List は最新のニュース記事を返す。limitの範囲外の値はサービス側で丸める。
// GET /api/news?category=ai&limit=20
func (h *NewsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFilterError("limit", v))
			return
		}
		limit = n
	}

	items, err := h.service.List(r.Context(), query.Get("category"), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]newsItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toNewsItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}
