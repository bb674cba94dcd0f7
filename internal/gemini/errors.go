package gemini

import (
	"context"
	"errors"

	"github.com/hitoshi/skillnest/internal/model"
)

// ToAPIError はクライアントのエラーをAPIエラーに変換する。
// 上流のメッセージはそのまま利用者に見せる。APIキーは含まれない。
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}
	var blocked *BlockedError
	var upstream *UpstreamError
	switch {
	case errors.As(err, &blocked):
		return model.NewAIResponseBlockedError(blocked.Reason)
	case errors.As(err, &upstream):
		return model.NewAIRequestFailedError(upstream.Message)
	case errors.Is(err, ErrTargetLanguageRequired):
		return model.NewTargetLanguageRequiredError()
	case errors.Is(err, ErrInvalidAction):
		return model.NewInvalidActionError("")
	case errors.Is(err, ErrEmptyResponse):
		return model.NewAIRequestFailedError("The AI returned an empty response.")
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewAIRequestFailedError("The AI service timed out.")
	default:
		return model.NewAIRequestFailedError("The AI service is unavailable.")
	}
}
