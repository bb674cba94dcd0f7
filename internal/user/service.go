// Package user はプロフィールの参照・更新と退会処理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/skillnest/internal/challenge"
	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/session"
)

// プロフィール項目の最大文字数。
const (
	MaxNameLength = 100
	MaxBioLength  = 500
	MaxLinkLength = 200
)

// UserStore はユーザーの永続化インターフェース。repository.UserRepository の部分集合。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	DeleteByID(ctx context.Context, id string) error
}

// ProgressStore はチャレンジ進捗の永続化インターフェース。
type ProgressStore interface {
	ListByUserID(ctx context.Context, userID string) ([]model.ChallengeProgress, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// SessionDeleter はユーザーの全セッションを削除する。
type SessionDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// Profile はプロフィール画面に表示する内容を表す。
type Profile struct {
	*model.User
	CompletedChallenges int
}

// Service はユーザー管理のサービス層。
type Service struct {
	users     UserStore
	progress  ProgressStore
	sessions  SessionDeleter
	publisher session.Publisher
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users UserStore, progress ProgressStore, sessions SessionDeleter, publisher session.Publisher, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		progress:  progress,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
	}
}

// GetProfile はユーザー情報とチャレンジ完了数を並行して取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var user *model.User
	var list []model.ChallengeProgress

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.FindByID(gctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		list, err = s.progress.ListByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("チャレンジ進捗の取得に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return &Profile{User: user, CompletedChallenges: challenge.CompletedCount(list)}, nil
}

// LoadProfile はセッションのミラーが認証済みになったときに読み込むユーザー情報を返す。
func (s *Service) LoadProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// ValidateProfileUpdate は更新内容を検証する。nilの項目は検証しない。
func ValidateProfileUpdate(u model.ProfileUpdate) map[string]string {
	errs := map[string]string{}
	checkName := func(field, label string, v *string) {
		if v == nil {
			return
		}
		switch n := utf8.RuneCountInString(strings.TrimSpace(*v)); {
		case n == 0:
			errs[field] = label + " is required"
		case n > MaxNameLength:
			errs[field] = fmt.Sprintf("%s must be at most %d characters", label, MaxNameLength)
		}
	}
	checkName("firstName", "First name", u.FirstName)
	checkName("lastName", "Last name", u.LastName)

	if u.Profession != nil && !model.Profession(strings.TrimSpace(*u.Profession)).Valid() {
		errs["profession"] = "Profession must be student, developer, teacher, or other"
	}
	if u.Bio != nil && utf8.RuneCountInString(*u.Bio) > MaxBioLength {
		errs["bio"] = fmt.Sprintf("Bio must be at most %d characters", MaxBioLength)
	}

	checkLink := func(field string, v *string) {
		if v == nil {
			return
		}
		if msg := validateLink(strings.TrimSpace(*v)); msg != "" {
			errs[field] = msg
		}
	}
	checkLink("github", u.GitHub)
	checkLink("twitter", u.Twitter)
	checkLink("linkedin", u.LinkedIn)
	return errs
}

// validateLink はSNSのハンドル名またはhttp(s)のURLを受け付ける。空文字列は削除を意味する。
func validateLink(v string) string {
	if v == "" {
		return ""
	}
	if utf8.RuneCountInString(v) > MaxLinkLength {
		return fmt.Sprintf("Must be at most %d characters", MaxLinkLength)
	}
	if strings.Contains(v, "://") {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "Must be a handle or an http(s) URL"
		}
		return ""
	}
	if strings.ContainsAny(v, " \t\n<>\"") {
		return "Must be a handle or an http(s) URL"
	}
	return ""
}

// UpdateProfile はプロフィールを部分更新し、更新後のユーザーを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if errs := ValidateProfileUpdate(update); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&user.FirstName, update.FirstName)
	apply(&user.LastName, update.LastName)
	apply(&user.Bio, update.Bio)
	apply(&user.GitHub, update.GitHub)
	apply(&user.Twitter, update.Twitter)
	apply(&user.LinkedIn, update.LinkedIn)
	if update.Profession != nil {
		user.Profession = model.Profession(strings.TrimSpace(*update.Profession))
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	user.UpdatedAt = time.Now()

	s.logger.InfoContext(ctx, "プロフィールを更新しました", slog.String("user_id", userID))
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: challenge_progress → sessions → user（identities, credentials はCASCADE削除）。
// セッション削除後にSignedOutを発行し、接続中のクライアントを未ログイン状態に戻す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	s.logger.InfoContext(ctx, "退会処理を開始します", slog.String("user_id", userID))

	// 1. チャレンジ進捗を削除
	if err := s.progress.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("チャレンジ進捗の削除に失敗しました: %w", err)
	}

	// 2. セッションを削除
	n, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	s.publisher.Publish(session.Event{Type: session.EventSignedOut, UserID: userID, At: time.Now()})

	// 3. ユーザーを削除
	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int64("deleted_sessions", n),
	)
	return nil
}

// compile-time interface check
var _ session.ProfileLoader = (*Service)(nil)
