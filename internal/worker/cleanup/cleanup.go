// Package cleanup は期限切れセッションと古いニュース記事の定期削除ジョブを提供する。
// セッション削除時はユーザーごとにExpiredイベントを配信し、
// 接続中のクライアントを未ログイン状態へ遷移させる。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/session"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExpiredSessionDeleter は期限切れセッションを削除して返すインターフェース。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) ([]model.Session, error)
}

// Scope はRunで削除する対象を表す。
type Scope int

const (
	ScopeAll      Scope = iota // セッションと記事の両方
	ScopeSessions              // 期限切れセッションのみ
	ScopeNews                  // 古い記事のみ
)

// CleanupJob は期限切れセッションと保持期間を超過したニュース記事を削除するジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
//
// Expiredイベントはプロセス内のBrokerにしか届かないため、
// セッションの削除はWebSocketを保持するAPIサーバー側で行う。
type CleanupJob struct {
	sessions          ExpiredSessionDeleter
	db                Executor
	publisher         session.Publisher
	logger            *slog.Logger
	NewsRetentionDays int   // ニュース記事の保持日数（デフォルト: 90）
	Scope             Scope // 削除対象（デフォルト: ScopeAll）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions ExpiredSessionDeleter, db Executor, publisher session.Publisher, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:          sessions,
		db:                db,
		publisher:         publisher,
		logger:            logger,
		NewsRetentionDays: 90,
	}
}

// Start はintervalごとにRunを実行する。起動直後に1回実行する。
// ctxがキャンセルされると終了する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("クリーンアップジョブを開始します",
		slog.Duration("interval", interval),
		slog.Int("news_retention_days", j.NewsRetentionDays),
	)

	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止します")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

// Run はScopeに応じてセッションと記事のクリーンアップを順に実行する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	var sessErr, newsErr error
	if j.Scope != ScopeNews {
		_, sessErr = j.PurgeExpiredSessions(ctx)
	}
	if j.Scope != ScopeSessions {
		_, newsErr = j.PurgeOldNews(ctx)
	}
	return errors.Join(sessErr, newsErr)
}

// PurgeExpiredSessions は期限切れセッションを削除し、ユーザーごとにExpiredを配信する。
// 同一ユーザーの複数セッションが同時に期限切れになってもイベントは1回だけ配信する。
func (j *CleanupJob) PurgeExpiredSessions(ctx context.Context) (int, error) {
	start := time.Now()

	expired, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	notified := make(map[string]struct{}, len(expired))
	now := time.Now()
	for _, s := range expired {
		if _, ok := notified[s.UserID]; ok {
			continue
		}
		notified[s.UserID] = struct{}{}
		j.publisher.Publish(session.Event{Type: session.EventExpired, UserID: s.UserID, At: now})
	}

	if len(expired) > 0 {
		j.logger.Info("期限切れセッションを削除しました",
			slog.Int("deleted_count", len(expired)),
			slog.Int("notified_users", len(notified)),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return len(expired), nil
}

// PurgeOldNews は公開日時がNewsRetentionDays日より古い記事を削除する。
func (j *CleanupJob) PurgeOldNews(ctx context.Context) (int64, error) {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.NewsRetentionDays)

	query := `DELETE FROM news_items WHERE published_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("ニュース記事の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.NewsRetentionDays),
		)
		return 0, fmt.Errorf("ニュース記事の削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("ニュース記事のクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.NewsRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deletedCount, nil
}
