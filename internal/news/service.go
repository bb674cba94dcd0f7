// Package news はテックニュースの取り込みと一覧取得を提供する。
package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/repository"
	"github.com/hitoshi/skillnest/internal/security"
)

// 一覧取得件数の既定値と上限。
const (
	DefaultLimit = 12
	MaxLimit     = 50
)

// DescriptionMaxRunes は保存する記事概要の最大文字数。
const DescriptionMaxRunes = 300

// Source は登録するニュースフィードを表す。
type Source struct {
	URL      string
	Category string
}

// FeedResolver はサイトURLをフィードURLに解決するインターフェース。
type FeedResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Service はニュース記事の取り込みと一覧取得を行う。
type Service struct {
	feeds     repository.NewsFeedRepository
	items     repository.NewsItemRepository
	sanitizer security.Sanitizer
	logger    *slog.Logger

	// Resolver が設定されている場合、EnsureFeedsは登録前にフィードURLを自動検出する。
	Resolver FeedResolver
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	feeds repository.NewsFeedRepository,
	items repository.NewsItemRepository,
	sanitizer security.Sanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{feeds: feeds, items: items, sanitizer: sanitizer, logger: logger}
}

// EnsureFeeds は設定されたフィードを登録する。失敗したフィードはログに記録して続行する。
func (s *Service) EnsureFeeds(ctx context.Context, sources []Source) int {
	registered := 0
	for _, src := range sources {
		feed, err := s.feeds.EnsureFeed(ctx, s.resolveFeedURL(ctx, src.URL), src.Category)
		if err != nil {
			s.logger.ErrorContext(ctx, "ニュースフィードの登録に失敗しました",
				slog.String("feed_url", src.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		registered++
		s.logger.InfoContext(ctx, "ニュースフィードを登録しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("category", feed.Category),
			slog.String("fetch_status", string(feed.FetchStatus)),
		)
	}
	return registered
}

// resolveFeedURL はResolverでフィードURLを解決する。失敗時は指定URLをそのまま使う。
func (s *Service) resolveFeedURL(ctx context.Context, rawURL string) string {
	if s.Resolver == nil {
		return rawURL
	}
	resolved, err := s.Resolver.Resolve(ctx, rawURL)
	if err != nil {
		s.logger.WarnContext(ctx, "フィードURLの自動検出に失敗したため、指定URLをそのまま登録します",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return rawURL
	}
	if resolved != rawURL {
		s.logger.InfoContext(ctx, "サイトURLからフィードURLを検出しました",
			slog.String("url", rawURL),
			slog.String("feed_url", resolved),
		)
	}
	return resolved
}

// Ingest はパース済みの記事をサニタイズして保存する。
// 戻り値は挿入数と更新数。
func (s *Service) Ingest(ctx context.Context, feed *model.NewsFeed, items []model.ParsedNewsItem) (inserted, updated int, err error) {
	now := time.Now()
	source := sourceName(feed)

	for _, p := range items {
		desc := p.Description
		if strings.TrimSpace(desc) == "" {
			desc = p.Content
		}

		item := &model.NewsItem{
			FeedID:      feed.ID,
			GUID:        p.GUID,
			Title:       s.sanitizer.Sanitize(p.Title),
			Description: s.sanitizer.Sanitize(desc),
			Link:        p.Link,
			Source:      source,
			ImageURL:    p.ImageURL,
			Category:    feed.Category,
			PublishedAt: now,
		}
		if p.PublishedAt != nil {
			item.PublishedAt = *p.PublishedAt
		}
		if item.Title == "" {
			item.Title = item.Link
		}

		created, upsertErr := s.items.Upsert(ctx, item)
		if upsertErr != nil {
			return inserted, updated, fmt.Errorf("記事の保存に失敗: %w", upsertErr)
		}
		if created {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

// List はカテゴリの最新記事を新しい順に返す。categoryが空の場合は全カテゴリ。
// limitが範囲外の場合は既定値または上限に丸める。
func (s *Service) List(ctx context.Context, category string, limit int) ([]model.NewsItem, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "all" {
		category = ""
	}

	items, err := s.items.ListLatest(ctx, category, limit)
	if err != nil {
		return nil, fmt.Errorf("ニュース一覧の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.NewsItem{}
	}
	return items, nil
}

// sourceName は記事の配信元表示名を返す。フィードタイトルがなければホスト名を使う。
func sourceName(feed *model.NewsFeed) string {
	if t := strings.TrimSpace(feed.Title); t != "" {
		return t
	}
	if u, err := url.Parse(feed.FeedURL); err == nil {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	return feed.FeedURL
}
