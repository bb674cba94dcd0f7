package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, ai, challenge, news, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // 入力項目ごとのエラー（バリデーション時のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
	ErrCodeInvalidToken           = "INVALID_VERIFICATION_TOKEN"
	ErrCodeUnknownProvider        = "UNKNOWN_PROVIDER"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeAIRequestFailed        = "AI_REQUEST_FAILED"
	ErrCodeAIResponseBlocked      = "AI_RESPONSE_BLOCKED"
	ErrCodeNonTechnicalQuestion   = "NON_TECHNICAL_QUESTION"
	ErrCodeEmptyMessage           = "EMPTY_MESSAGE"
	ErrCodeEmptyCode              = "EMPTY_CODE"
	ErrCodeEmptyPrompt            = "EMPTY_PROMPT"
	ErrCodeTargetLanguageRequired = "TARGET_LANGUAGE_REQUIRED"
	ErrCodeInvalidAction          = "INVALID_ACTION"
	ErrCodeInvalidFilter          = "INVALID_FILTER"
	ErrCodeChallengeNotFound      = "CHALLENGE_NOT_FOUND"
	ErrCodeInvalidProgress        = "INVALID_PROGRESS"
)

// NewValidationError は入力項目ごとのバリデーションエラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Please correct the highlighted fields.",
		Category: "validation",
		Action:   "Fix the listed fields and submit again.",
		Fields:   fields,
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewEmailNotVerifiedError はメールアドレス未確認のエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Your email address has not been verified yet.",
		Category: "auth",
		Action:   "Open the verification link we sent to your inbox.",
	}
}

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Log in instead, or use a different email address.",
	}
}

// NewInvalidTokenError は無効または期限切れの確認トークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "The verification link is invalid or has expired.",
		Category: "auth",
		Action:   "Sign up again to receive a new verification link.",
	}
}

// NewUnknownProviderError は未対応のOAuthプロバイダのエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("Unknown login provider: %s", provider),
		Category: "auth",
		Action:   "Choose Google or GitHub.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewAIRequestFailedError はAIゲートウェイ呼び出し失敗のエラーを生成する。
func NewAIRequestFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAIRequestFailed,
		Message:  reason,
		Category: "ai",
		Action:   "Please try again in a moment.",
	}
}

// NewAIResponseBlockedError は安全性ポリシーで応答がブロックされた場合のエラーを生成する。
func NewAIResponseBlockedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAIResponseBlocked,
		Message:  fmt.Sprintf("Response blocked: %s", reason),
		Category: "ai",
		Action:   "Rephrase your request and try again.",
	}
}

// NewNonTechnicalQuestionError は技術的でない質問へのエラーを生成する。
func NewNonTechnicalQuestionError() *APIError {
	return &APIError{
		Code:     ErrCodeNonTechnicalQuestion,
		Message:  "Please ask technical questions only.",
		Category: "ai",
		Action:   "Ask about programming, software development, or computer science.",
	}
}

// NewEmptyMessageError は空のチャットメッセージのエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "Message must not be empty.",
		Category: "validation",
		Action:   "Type a question before sending.",
	}
}

// NewEmptyCodeError は解析対象コードが空の場合のエラーを生成する。
func NewEmptyCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyCode,
		Message:  "Please enter some code to analyze.",
		Category: "validation",
		Action:   "Paste the code you want to debug, enhance, or convert.",
	}
}

// NewEmptyPromptError はコード生成の指示が空の場合のエラーを生成する。
func NewEmptyPromptError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyPrompt,
		Message:  "Please describe the code you want to generate.",
		Category: "validation",
		Action:   "Enter a prompt for code generation.",
	}
}

// NewTargetLanguageRequiredError は変換先言語未指定のエラーを生成する。
func NewTargetLanguageRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTargetLanguageRequired,
		Message:  "Target language is required for conversion.",
		Category: "validation",
		Action:   "Select the language to convert the code into.",
	}
}

// NewInvalidActionError は未対応の解析アクションのエラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("Invalid action: %s", action),
		Category: "validation",
		Action:   "Use one of debug, enhance, convert, or generate.",
	}
}

// NewInvalidFilterError は無効なフィルタ値のエラーを生成する。
func NewInvalidFilterError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid %s filter: %s", name, value),
		Category: "validation",
		Action:   "Use one of the listed filter values.",
	}
}

// NewChallengeNotFoundError はチャレンジ未検出のエラーを生成する。
func NewChallengeNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  fmt.Sprintf("Challenge not found: %s", id),
		Category: "challenge",
		Action:   "Pick a challenge from the list.",
	}
}

// NewInvalidProgressError は範囲外の進捗値のエラーを生成する。
func NewInvalidProgressError(percent int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProgress,
		Message:  fmt.Sprintf("Invalid progress: %d", percent),
		Category: "validation",
		Action:   "Progress must be between 0 and 100.",
	}
}

// 横断的なエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed         = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeInvalidRequestBody = "INVALID_REQUEST_BODY"
)

// NewUnauthorizedError は未ログインまたはセッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to log in to continue.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewInvalidRequestBodyError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequestBody,
		Message:  "The request body is not valid JSON.",
		Category: "validation",
		Action:   "Check the request format and try again.",
	}
}

// ErrCodeInvalidOAuthState はOAuthのstate検証失敗を表す。
const ErrCodeInvalidOAuthState = "INVALID_OAUTH_STATE"

// NewInvalidOAuthStateError はOAuthのstate不一致のエラーを生成する。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOAuthState,
		Message:  "The login request has expired or was tampered with.",
		Category: "auth",
		Action:   "Start the login again.",
	}
}
