package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

const newsFeedColumns = `id, feed_url, category, title, etag, last_modified, fetch_status,
	consecutive_errors, error_message, next_fetch_at, created_at, updated_at`

// PostgresNewsFeedRepo はPostgreSQLを使用したニュースフィードリポジトリ。
type PostgresNewsFeedRepo struct {
	db *sql.DB
}

// NewPostgresNewsFeedRepo はPostgresNewsFeedRepoを生成する。
func NewPostgresNewsFeedRepo(db *sql.DB) *PostgresNewsFeedRepo {
	return &PostgresNewsFeedRepo{db: db}
}

func scanNewsFeed(row rowScanner) (*model.NewsFeed, error) {
	f := &model.NewsFeed{}
	var status string
	err := row.Scan(
		&f.ID, &f.FeedURL, &f.Category, &f.Title, &f.ETag, &f.LastModified, &status,
		&f.ConsecutiveErrors, &f.ErrorMessage, &f.NextFetchAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.FetchStatus = model.FetchStatus(status)
	return f, nil
}

// EnsureFeed はフィードを登録し、登録済みの場合はカテゴリを更新して返す。
func (r *PostgresNewsFeedRepo) EnsureFeed(ctx context.Context, feedURL, category string) (*model.NewsFeed, error) {
	f, err := scanNewsFeed(r.db.QueryRowContext(ctx,
		`INSERT INTO news_feeds (feed_url, category)
		 VALUES ($1, $2)
		 ON CONFLICT (feed_url) DO UPDATE SET category = EXCLUDED.category, updated_at = now()
		 RETURNING `+newsFeedColumns,
		feedURL, category,
	))
	if err != nil {
		return nil, fmt.Errorf("ニュースフィードの登録に失敗しました: %w", err)
	}
	return f, nil
}

// ClaimDueFeeds はフェッチ対象のフィードを取得し、next_fetch_atをleaseだけ先送りする。
// SKIP LOCKEDにより複数ワーカーが同じフィードを取得しない。
func (r *PostgresNewsFeedRepo) ClaimDueFeeds(ctx context.Context, lease time.Duration) ([]*model.NewsFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE news_feeds SET next_fetch_at = now() + $1::interval
		 WHERE id IN (
		     SELECT id FROM news_feeds
		     WHERE next_fetch_at <= now() AND fetch_status = 'active'
		     ORDER BY next_fetch_at ASC
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+newsFeedColumns,
		fmt.Sprintf("%d seconds", int(lease.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.NewsFeed
	for rows.Next() {
		f, err := scanNewsFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの走査に失敗しました: %w", err)
	}
	return feeds, nil
}

// UpdateFetchState はフィードのフェッチ状態を更新する。
func (r *PostgresNewsFeedRepo) UpdateFetchState(ctx context.Context, f *model.NewsFeed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE news_feeds SET
		    title = $2,
		    fetch_status = $3,
		    consecutive_errors = $4,
		    error_message = $5,
		    next_fetch_at = $6,
		    etag = $7,
		    last_modified = $8,
		    updated_at = now()
		 WHERE id = $1`,
		f.ID, f.Title, string(f.FetchStatus), f.ConsecutiveErrors, f.ErrorMessage,
		f.NextFetchAt, f.ETag, f.LastModified,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// PostgresNewsItemRepo はPostgreSQLを使用したニュース記事リポジトリ。
type PostgresNewsItemRepo struct {
	db *sql.DB
}

// NewPostgresNewsItemRepo はPostgresNewsItemRepoを生成する。
func NewPostgresNewsItemRepo(db *sql.DB) *PostgresNewsItemRepo {
	return &PostgresNewsItemRepo{db: db}
}

// Upsert は(feed_id, guid)で記事を作成または更新する。新規作成時はtrueを返す。
// xmax = 0 はINSERTされた行であることを示す。
func (r *PostgresNewsItemRepo) Upsert(ctx context.Context, item *model.NewsItem) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO news_items (feed_id, guid, title, description, link, source, image_url, category, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (feed_id, guid) DO UPDATE SET
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     link = EXCLUDED.link,
		     source = EXCLUDED.source,
		     image_url = EXCLUDED.image_url,
		     category = EXCLUDED.category
		 RETURNING id, created_at, (xmax = 0)`,
		item.FeedID, item.GUID, item.Title, item.Description, item.Link,
		item.Source, item.ImageURL, item.Category, item.PublishedAt,
	).Scan(&item.ID, &item.CreatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("ニュース記事の保存に失敗しました: %w", err)
	}
	return inserted, nil
}

// ListLatest は公開日時の新しい順に記事を返す。
func (r *PostgresNewsItemRepo) ListLatest(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, guid, title, description, link, source, image_url, category, published_at, created_at
		 FROM news_items
		 WHERE ($1::text = '' OR category = $1::text)
		 ORDER BY published_at DESC, id
		 LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ニュース記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.NewsItem
	for rows.Next() {
		var it model.NewsItem
		if err := rows.Scan(&it.ID, &it.FeedID, &it.GUID, &it.Title, &it.Description, &it.Link,
			&it.Source, &it.ImageURL, &it.Category, &it.PublishedAt, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("ニュース記事の読み取りに失敗しました: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ニュース記事の走査に失敗しました: %w", err)
	}
	return items, nil
}

// compile-time interface check
var (
	_ NewsFeedRepository = (*PostgresNewsFeedRepo)(nil)
	_ NewsItemRepository = (*PostgresNewsItemRepo)(nil)
)
