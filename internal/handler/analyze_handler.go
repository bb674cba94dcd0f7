package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillnest/internal/analyzer"
)

// AnalyzerServiceInterface はコード解析ハンドラーが必要とするサービスインターフェース。
type AnalyzerServiceInterface interface {
	Run(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

// AnalyzeHandler はコード解析のHTTPハンドラー。
type AnalyzeHandler struct {
	service AnalyzerServiceInterface
}

// NewAnalyzeHandler はAnalyzeHandlerを生成する。
func NewAnalyzeHandler(service AnalyzerServiceInterface) *AnalyzeHandler {
	return &AnalyzeHandler{service: service}
}

type analyzeRequest struct {
	Action         string `json:"action"`
	Code           string `json:"code"`
	Prompt         string `json:"prompt"`
	TargetLanguage string `json:"targetLanguage"`
	Language       string `json:"language"`
}

// Analyze はコードのデバッグ、改善、変換、生成を行う。
// POST /api/analyze
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Run(r.Context(), analyzer.Request{
		Action:         analyzer.Action(req.Action),
		Code:           req.Code,
		Prompt:         req.Prompt,
		TargetLanguage: req.TargetLanguage,
		Language:       req.Language,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyzeResponse(result))
}
