// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

// UserRepository はユーザーとプロフィールの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// CreateWithCredential はパスワード登録ユーザーを作成する。
	// users、identities、credentials、email_verificationsを同一トランザクションで書き込む。
	CreateWithCredential(ctx context.Context, user *model.User, identity *model.Identity, cred *model.Credential, verification *model.EmailVerification) error

	// UpdateProfile は編集可能なプロフィール項目を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// MarkEmailVerified はメールアドレス確認日時を記録する。
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、credentials、sessions、challenge_progressはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// CredentialRepository はパスワード資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID はユーザーの資格情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
}

// VerificationRepository はメールアドレス確認トークンの永続化インターフェース。
type VerificationRepository interface {
	// Consume は有効期限内のトークンを削除して返す。
	// 存在しないか期限切れの場合はnilを返す。
	Consume(ctx context.Context, token string) (*model.EmailVerification, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	// DeleteExpired は期限切れのセッションを削除し、削除したセッションを返す。
	DeleteExpired(ctx context.Context) ([]model.Session, error)
}

// ProgressAggregator はユーザーの全チャレンジ進捗からカテゴリ別進捗を計算する。
type ProgressAggregator func(list []model.ChallengeProgress) model.Progress

// AdvanceResult はChallengeProgressRepository.Advanceの結果。
type AdvanceResult struct {
	Current      int
	CompletedNow bool
	UserProgress model.Progress
}

// ChallengeProgressRepository はユーザーごとのチャレンジ進捗の永続化インターフェース。
type ChallengeProgressRepository interface {
	// ListByUserID はユーザーの全チャレンジ進捗を返す。
	ListByUserID(ctx context.Context, userID string) ([]model.ChallengeProgress, error)

	// CountCompleted はチャレンジIDごとの完了ユーザー数を返す。
	CountCompleted(ctx context.Context) (map[string]int, error)

	// Advance は進捗を単調増加で更新する。
	// 今回の更新で初めて100に到達した場合はrewardをusers.coinsに加算し、CompletedNow=trueを返す。
	// 同じトランザクション内でaggregateによりカテゴリ別進捗を再計算し、usersに保存する。
	Advance(ctx context.Context, userID, challengeID string, percent, reward int, aggregate ProgressAggregator) (AdvanceResult, error)

	// DeleteByUserID はユーザーの全進捗を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// NewsFeedRepository はニュースフィードの永続化インターフェース。
type NewsFeedRepository interface {
	// EnsureFeed はフィードURLで登録済みのフィードを返し、未登録なら作成する。
	// 既存フィードのカテゴリは引数の値で更新する。
	EnsureFeed(ctx context.Context, feedURL, category string) (*model.NewsFeed, error)

	// ClaimDueFeeds はnext_fetch_atを過ぎたアクティブなフィードを取得し、
	// 他のワーカーと重複しないようnext_fetch_atをleaseだけ先送りする。
	ClaimDueFeeds(ctx context.Context, lease time.Duration) ([]*model.NewsFeed, error)

	// UpdateFetchState はフィードのフェッチ状態を更新する。
	UpdateFetchState(ctx context.Context, feed *model.NewsFeed) error
}

// NewsItemRepository はニュース記事の永続化インターフェース。
type NewsItemRepository interface {
	// Upsert は(feed_id, guid)で記事を作成または更新する。新規作成時はtrueを返す。
	Upsert(ctx context.Context, item *model.NewsItem) (bool, error)

	// ListLatest は公開日時の新しい順に記事を返す。categoryが空の場合は全カテゴリ。
	ListLatest(ctx context.Context, category string, limit int) ([]model.NewsItem, error)
}

// ContactRepository はお問い合わせメッセージの永続化インターフェース。
type ContactRepository interface {
	// Create はお問い合わせメッセージを保存する。
	Create(ctx context.Context, msg *model.ContactMessage) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
