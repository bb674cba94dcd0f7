package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillnest/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Reply(ctx context.Context, history []model.ChatMessage, message string) (model.ChatMessage, error)
}

// ChatHandler はAIチャットのHTTPハンドラー。会話履歴はクライアントが保持する。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type chatRequest struct {
	Messages []model.ChatMessage `json:"messages"`
	Message  string              `json:"message"`
}

// Reply は履歴と新しいメッセージからAIの応答を返す。
// POST /api/chat
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.service.Reply(r.Context(), req.Messages, req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.ChatMessage{"reply": reply})
}
