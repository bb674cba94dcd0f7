package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/skillnest/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByUserID はユーザーの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credential, error) {
	c := &model.Credential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, password_hash, updated_at FROM credentials WHERE user_id = $1`,
		userID,
	).Scan(&c.UserID, &c.PasswordHash, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return c, nil
}

// PostgresVerificationRepo はPostgreSQLを使用したメール確認トークンリポジトリ。
type PostgresVerificationRepo struct {
	db *sql.DB
}

// NewPostgresVerificationRepo はPostgresVerificationRepoを生成する。
func NewPostgresVerificationRepo(db *sql.DB) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{db: db}
}

// Consume は有効期限内のトークンを削除して返す。トークンは1回しか使えない。
func (r *PostgresVerificationRepo) Consume(ctx context.Context, token string) (*model.EmailVerification, error) {
	v := &model.EmailVerification{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM email_verifications
		 WHERE token = $1 AND expires_at > now()
		 RETURNING token, user_id, expires_at, created_at`,
		token,
	).Scan(&v.Token, &v.UserID, &v.ExpiresAt, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return v, nil
}

// compile-time interface check
var (
	_ CredentialRepository   = (*PostgresCredentialRepo)(nil)
	_ VerificationRepository = (*PostgresVerificationRepo)(nil)
)
