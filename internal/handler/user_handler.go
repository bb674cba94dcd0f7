package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)

	// Withdraw はユーザーの退会処理を実行する。
	// user、identities、credentials、sessions、challenge_progressを一括削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はプロフィールと退会のHTTPハンドラー。
type UserHandler struct {
	service      UserServiceInterface
	cookieDomain string
	cookieSecure bool
}

// NewUserHandler はUserHandlerを生成する。
// Cookie設定は退会時にセッションCookieを失効させるために使う。
func NewUserHandler(service UserServiceInterface, cookieDomain string, cookieSecure bool) *UserHandler {
	return &UserHandler{
		service:      service,
		cookieDomain: cookieDomain,
		cookieSecure: cookieSecure,
	}
}

// profileUpdateRequest はプロフィール更新のリクエスト。省略した項目は変更しない。
type profileUpdateRequest struct {
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Profession *string `json:"profession"`
	Bio        *string `json:"bio"`
	GitHub     *string `json:"github"`
	Twitter    *string `json:"twitter"`
	LinkedIn   *string `json:"linkedin"`
}

// GetProfile はログインユーザーのプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile はプロフィールを部分更新する。
// PATCH /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req profileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, model.ProfileUpdate{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Profession: req.Profession,
		Bio:        req.Bio,
		GitHub:     req.GitHub,
		Twitter:    req.Twitter,
		LinkedIn:   req.LinkedIn,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(u)})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	clearSessionCookie(w, h.cookieDomain, h.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}
