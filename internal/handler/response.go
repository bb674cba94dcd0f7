// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skillnest/internal/middleware"
	"github.com/hitoshi/skillnest/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MiB）。
const maxRequestBodySize = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestBodyError())
		return false
	}
	return true
}

// requireUserID はコンテキストからユーザーIDを取得する。
// 取得できない場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// optionalUserID はログイン中ならユーザーIDを、未ログインなら空文字列を返す。
func optionalUserID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細をログに残し、500として返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	if errors.Is(err, context.Canceled) {
		// クライアントが切断済みなのでレスポンスは届かない
		slog.InfoContext(r.Context(), "request canceled by client",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		return
	}

	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed,
		model.ErrCodeEmptyMessage,
		model.ErrCodeEmptyCode,
		model.ErrCodeEmptyPrompt,
		model.ErrCodeTargetLanguageRequired,
		model.ErrCodeInvalidAction,
		model.ErrCodeInvalidProgress,
		model.ErrCodeInvalidFilter,
		model.ErrCodeInvalidToken,
		model.ErrCodeInvalidOAuthState,
		model.ErrCodeInvalidRequestBody:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeEmailNotVerified, model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeUnknownProvider, model.ErrCodeUserNotFound, model.ErrCodeChallengeNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeAIResponseBlocked, model.ErrCodeNonTechnicalQuestion:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeAIRequestFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
