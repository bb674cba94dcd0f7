// Package chat は技術的な質問に限定したAIチャットを提供する。
package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/skillnest/internal/gemini"
	"github.com/hitoshi/skillnest/internal/model"
)

// MaxHistory はAIに送る過去メッセージの上限。超過分は古いものから捨てる。
const MaxHistory = 50

// Gateway はチャットが使うAIゲートウェイ。*gemini.Client が実装する。
type Gateway interface {
	IsTechnicalQuestion(ctx context.Context, question string) bool
	Chat(ctx context.Context, messages []model.ChatMessage) (string, error)
}

// Service はチャットの応答生成を提供する。
type Service struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(gateway Gateway, logger *slog.Logger) *Service {
	return &Service{gateway: gateway, logger: logger}
}

// Reply は履歴と新しいメッセージから応答を生成する。
// 技術的でない質問はAIに送らずNON_TECHNICAL_QUESTIONを返す。
func (s *Service) Reply(ctx context.Context, history []model.ChatMessage, message string) (model.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.ChatMessage{}, model.NewEmptyMessageError()
	}

	if !s.gateway.IsTechnicalQuestion(ctx, message) {
		s.logger.InfoContext(ctx, "non-technical question rejected")
		return model.ChatMessage{}, model.NewNonTechnicalQuestionError()
	}

	messages := append(TrimHistory(history), model.ChatMessage{Role: model.RoleUser, Content: message})
	text, err := s.gateway.Chat(ctx, messages)
	if err != nil {
		return model.ChatMessage{}, gemini.ToAPIError(err)
	}
	return model.ChatMessage{Role: model.RoleModel, Content: text}, nil
}

// TrimHistory は空のメッセージを除き、新しい順にMaxHistory件までを返す。
// 戻り値は引数と領域を共有しない。
func TrimHistory(history []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, min(len(history), MaxHistory)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) > MaxHistory {
		out = append(out[:0:0], out[len(out)-MaxHistory:]...)
	}
	return out
}
