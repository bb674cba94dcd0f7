package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/skillnest/internal/model"
)

// State はクライアントから見た認証状態を表す。
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// ProfileLoader はサインイン時にプロフィールを読み込む。
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID string) (*model.User, error)
}

// Mirror はサーバー側セッションの読み取り専用ミラー。
// anonymous → authenticating → authenticated と遷移し、
// サインアウトまたは期限切れでanonymousに戻る。
type Mirror struct {
	mu      sync.RWMutex
	loader  ProfileLoader
	state   State
	userID  string
	profile *model.User
}

// NewMirror はanonymous状態のMirrorを生成する。
func NewMirror(loader ProfileLoader) *Mirror {
	return &Mirror{loader: loader, state: StateAnonymous}
}

// BeginAuth はログイン処理の開始を記録する。認証済みの場合は何もしない。
func (m *Mirror) BeginAuth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAnonymous {
		m.state = StateAuthenticating
	}
}

// Apply はイベントを状態に反映する。
// SignedInではプロフィールを読み込み、失敗した場合はanonymousに戻してエラーを返す。
// 別ユーザーのSignedOut/Expiredは無視する。
func (m *Mirror) Apply(ctx context.Context, e Event) error {
	switch e.Type {
	case EventSignedIn:
		profile, err := m.loader.LoadProfile(ctx, e.UserID)
		if err == nil && profile == nil {
			err = fmt.Errorf("profile not found: %s", e.UserID)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			m.reset()
			return fmt.Errorf("failed to load profile: %w", err)
		}
		m.state = StateAuthenticated
		m.userID = e.UserID
		m.profile = profile
		return nil

	case EventSignedOut, EventExpired:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.userID != "" && m.userID != e.UserID {
			return nil
		}
		m.reset()
		return nil

	default:
		return fmt.Errorf("unknown session event: %s", e.Type)
	}
}

func (m *Mirror) reset() {
	m.state = StateAnonymous
	m.userID = ""
	m.profile = nil
}

// State は現在の状態を返す。
func (m *Mirror) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsLoggedIn は認証済みかどうかを返す。
func (m *Mirror) IsLoggedIn() bool {
	return m.State() == StateAuthenticated
}

// Profile は読み込み済みのプロフィールを返す。未認証の場合はnil。
func (m *Mirror) Profile() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}
