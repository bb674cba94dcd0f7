package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/skillnest/internal/model"
)

// ErrDuplicateEmail はメールアドレスが登録済みの場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

const userColumns = `id, email, first_name, last_name, profession, bio, github, twitter, linkedin,
	coins, progress_coding, progress_algorithms, progress_frameworks,
	email_verified_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var verifiedAt sql.NullTime
	var profession string
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &profession,
		&u.Bio, &u.GitHub, &u.Twitter, &u.LinkedIn,
		&u.Coins, &u.Progress.Coding, &u.Progress.Algorithms, &u.Progress.Frameworks,
		&verifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Profession = model.Profession(profession)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.EmailVerifiedAt = &t
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, u *model.User) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, profession, coins,
		                    progress_coding, progress_algorithms, progress_frameworks,
		                    email_verified_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Email, u.FirstName, u.LastName, string(u.Profession), u.Coins,
		u.Progress.Coding, u.Progress.Algorithms, u.Progress.Frameworks,
		u.EmailVerifiedAt, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func insertIdentity(ctx context.Context, tx *sql.Tx, identity *model.Identity) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	if err := insertIdentity(ctx, tx, identity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateWithCredential はパスワード登録ユーザーと確認トークンを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithCredential(ctx context.Context, user *model.User, identity *model.Identity, cred *model.Credential, verification *model.EmailVerification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	if err := insertIdentity(ctx, tx, identity); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credentials (user_id, password_hash, updated_at) VALUES ($1, $2, $3)`,
		cred.UserID, cred.PasswordHash, cred.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO email_verifications (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		verification.Token, verification.UserID, verification.ExpiresAt, verification.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert email verification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateProfile は編集可能なプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		    first_name = $2, last_name = $3, profession = $4,
		    bio = $5, github = $6, twitter = $7, linkedin = $8,
		    updated_at = now()
		 WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, string(u.Profession),
		u.Bio, u.GitHub, u.Twitter, u.LinkedIn,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return expectOneRow(result, "user", u.ID)
}

// MarkEmailVerified はメールアドレス確認日時を記録する。
func (r *PostgresUserRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified_at = $2, updated_at = now() WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return expectOneRow(result, "user", userID)
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOneRow(result, "user", id)
}

func expectOneRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// isUniqueViolation はPostgreSQLの一意制約違反(23505)かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
