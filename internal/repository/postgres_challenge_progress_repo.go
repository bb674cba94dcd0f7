package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/skillnest/internal/model"
)

// PostgresChallengeProgressRepo はPostgreSQLを使用したチャレンジ進捗リポジトリ。
type PostgresChallengeProgressRepo struct {
	db *sql.DB
}

// NewPostgresChallengeProgressRepo はPostgresChallengeProgressRepoを生成する。
func NewPostgresChallengeProgressRepo(db *sql.DB) *PostgresChallengeProgressRepo {
	return &PostgresChallengeProgressRepo{db: db}
}

// ListByUserID はユーザーの全チャレンジ進捗を返す。
func (r *PostgresChallengeProgressRepo) ListByUserID(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	return listProgress(ctx, r.db, userID)
}

// progressQuerier は*sql.DBと*sql.Txの共通部分。
type progressQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listProgress(ctx context.Context, q progressQuerier, userID string) ([]model.ChallengeProgress, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, challenge_id, percent FROM challenge_progress WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("チャレンジ進捗の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []model.ChallengeProgress
	for rows.Next() {
		var p model.ChallengeProgress
		if err := rows.Scan(&p.UserID, &p.ChallengeID, &p.Percent); err != nil {
			return nil, fmt.Errorf("チャレンジ進捗の読み取りに失敗しました: %w", err)
		}
		p.Completed = p.Percent >= 100
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャレンジ進捗の走査に失敗しました: %w", err)
	}
	return list, nil
}

// CountCompleted はチャレンジIDごとの完了ユーザー数を返す。
func (r *PostgresChallengeProgressRepo) CountCompleted(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT challenge_id, count(*) FROM challenge_progress WHERE percent = 100 GROUP BY challenge_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("完了ユーザー数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("完了ユーザー数の読み取りに失敗しました: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("完了ユーザー数の走査に失敗しました: %w", err)
	}
	return counts, nil
}

// Advance は進捗を単調増加で更新し、初回完了時のみコインを加算する。
// 最初にusersの行をFOR UPDATEでロックするため、同一ユーザーの更新は直列化され、
// 同時完了でも報酬は1回だけ付与され、カテゴリ別進捗もコミット済みの一覧から計算される。
func (r *PostgresChallengeProgressRepo) Advance(ctx context.Context, userID, challengeID string, percent, reward int, aggregate ProgressAggregator) (AdvanceResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&locked); err != nil {
		return AdvanceResult{}, fmt.Errorf("ユーザーのロックに失敗しました: %w", err)
	}

	var prev int
	err = tx.QueryRowContext(ctx,
		`SELECT percent FROM challenge_progress WHERE user_id = $1 AND challenge_id = $2`,
		userID, challengeID,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return AdvanceResult{}, fmt.Errorf("チャレンジ進捗の取得に失敗しました: %w", err)
	}

	current := max(prev, percent)
	completedNow := prev < 100 && current == 100

	if errors.Is(err, sql.ErrNoRows) || current != prev {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO challenge_progress (user_id, challenge_id, percent, completed_at)
			 VALUES ($1, $2, $3, CASE WHEN $3 = 100 THEN now() END)
			 ON CONFLICT (user_id, challenge_id) DO UPDATE
			 SET percent = EXCLUDED.percent,
			     completed_at = COALESCE(challenge_progress.completed_at, EXCLUDED.completed_at),
			     updated_at = now()`,
			userID, challengeID, current,
		); err != nil {
			return AdvanceResult{}, fmt.Errorf("チャレンジ進捗の更新に失敗しました: %w", err)
		}
	}

	if completedNow && reward > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET coins = coins + $2, updated_at = now() WHERE id = $1`,
			userID, reward,
		); err != nil {
			return AdvanceResult{}, fmt.Errorf("コインの加算に失敗しました: %w", err)
		}
	}

	list, err := listProgress(ctx, tx, userID)
	if err != nil {
		return AdvanceResult{}, err
	}
	p := aggregate(list)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET progress_coding = $2, progress_algorithms = $3, progress_frameworks = $4, updated_at = now()
		 WHERE id = $1`,
		userID, p.Coding, p.Algorithms, p.Frameworks,
	); err != nil {
		return AdvanceResult{}, fmt.Errorf("failed to update progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AdvanceResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return AdvanceResult{Current: current, CompletedNow: completedNow, UserProgress: p}, nil
}

// DeleteByUserID はユーザーの全進捗を削除する。
func (r *PostgresChallengeProgressRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM challenge_progress WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("チャレンジ進捗の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChallengeProgressRepository = (*PostgresChallengeProgressRepo)(nil)
