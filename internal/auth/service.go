// Package auth はメールアドレスとOAuthによる認証フロー、セッション発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/repository"
	"github.com/hitoshi/skillnest/internal/session"
)

// DefaultVerificationTTL はメールアドレス確認トークンの既定の有効期間。
const DefaultVerificationTTL = 24 * time.Hour

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int           // セッション有効期間（秒）
	BaseURL         string        // 確認リンクの生成に使う公開URL
	VerificationTTL time.Duration // 確認トークンの有効期間
	BcryptCost      int
}

// Repositories は認証サービスが使うリポジトリをまとめたもの。
type Repositories struct {
	Users         repository.UserRepository
	Identities    repository.IdentityRepository
	Credentials   repository.CredentialRepository
	Verifications repository.VerificationRepository
	Sessions      repository.SessionRepository
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers map[string]OAuthProvider
	repos     Repositories
	mailer    Mailer
	publisher session.Publisher
	logger    *slog.Logger
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。providersには有効なOAuthプロバイダーのみを渡す。
func NewService(
	providers []OAuthProvider,
	repos Repositories,
	mailer Mailer,
	publisher session.Publisher,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	if config.VerificationTTL <= 0 {
		config.VerificationTTL = DefaultVerificationTTL
	}
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers: m,
		repos:     repos,
		mailer:    mailer,
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Signup はメールアドレスとパスワードでユーザーを登録し、確認リンクを送信する。
// セッションは発行しない。ログインはメールアドレス確認後に可能になる。
func (s *Service) Signup(ctx context.Context, form SignupForm) (*model.User, error) {
	if errs := ValidateSignup(form); !errs.Valid() {
		return nil, errs.AsError()
	}

	email := NormalizeEmail(form.Email)
	existing, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := hashPassword(form.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	profession := model.Profession(strings.TrimSpace(form.Profession))
	if profession == "" {
		profession = model.ProfessionStudent
	}

	now := s.now()
	user := &model.User{
		ID:         uuid.New().String(),
		Email:      email,
		FirstName:  strings.TrimSpace(form.FirstName),
		LastName:   strings.TrimSpace(form.LastName),
		Profession: profession,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       model.ProviderPassword,
		ProviderUserID: email,
		CreatedAt:      now,
	}
	cred := &model.Credential{UserID: user.ID, PasswordHash: hash, UpdatedAt: now}
	verification := &model.EmailVerification{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.VerificationTTL),
		CreatedAt: now,
	}

	if err := s.repos.Users.CreateWithCredential(ctx, user, identity, cred, verification); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 送信に失敗しても登録自体は成立させる
	if err := s.mailer.SendVerification(ctx, email, s.verificationLink(token)); err != nil {
		s.logger.WarnContext(ctx, "failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("user_id", user.ID))
	return user, nil
}

func (s *Service) verificationLink(token string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + "/auth/verify?token=" + url.QueryEscape(token)
}

// VerifyEmail は確認トークンを消費してメールアドレスを確認済みにし、セッションを発行する。
func (s *Service) VerifyEmail(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.NewInvalidTokenError()
	}
	v, err := s.repos.Verifications.Consume(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	if v == nil {
		return nil, model.NewInvalidTokenError()
	}

	if err := s.repos.Users.MarkEmailVerified(ctx, v.UserID, s.now()); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", v.UserID))
	return s.signIn(ctx, v.UserID)
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザー不在、パスワード未設定、不一致はいずれもINVALID_CREDENTIALSとする。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if errs := ValidateLogin(email, password); !errs.Valid() {
		return nil, errs.AsError()
	}

	user, err := s.repos.Users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	cred, err := s.repos.Credentials.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := checkPasswordHash(cred.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.InfoContext(ctx, "login failed", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}
	if user.EmailVerifiedAt == nil {
		return nil, model.NewEmailNotVerifiedError()
	}

	return s.signIn(ctx, user.ID)
}

// Providers は有効なOAuthプロバイダー名を返す。
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, name := range []string{"google", "github"} {
		if _, ok := s.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", model.NewUnknownProviderError(provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewUnknownProviderError(provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.repos.Identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		s.logger.InfoContext(ctx, "existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return s.signIn(ctx, identity.UserID)
	}

	// 3. 新規ユーザー: 同じメールアドレスの別アカウントには自動で紐付けない
	email := NormalizeEmail(info.Email)
	existing, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	now := s.now()
	newUser := &model.User{
		ID:              uuid.New().String(),
		Email:           email,
		FirstName:       info.FirstName,
		LastName:        info.LastName,
		Profession:      model.ProfessionStudent,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.repos.Users.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	s.logger.InfoContext(ctx, "new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return s.signIn(ctx, newUser.ID)
}

// Logout はセッションを破棄し、SignedOutイベントを発行する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	sess, err := s.repos.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if err := s.repos.Sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if sess != nil {
		s.publisher.Publish(session.Event{Type: session.EventSignedOut, UserID: sess.UserID, At: s.now()})
		s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", sess.UserID))
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	sess, err := s.repos.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.repos.Users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// signIn はセッションを作成し、SignedInイベントを発行する。
func (s *Service) signIn(ctx context.Context, userID string) (*model.Session, error) {
	sess, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.publisher.Publish(session.Event{Type: session.EventSignedIn, UserID: userID, At: sess.CreatedAt})
	return sess, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	sess := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.repos.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// generateToken は暗号的に安全な64文字の16進トークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
