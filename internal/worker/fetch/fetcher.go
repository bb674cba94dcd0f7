package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/news"
)

// FeedStateUpdater はフィードのフェッチ状態を保存する。
type FeedStateUpdater interface {
	UpdateFetchState(ctx context.Context, feed *model.NewsFeed) error
}

// Ingester はパース済み記事の保存処理のインターフェース。
type Ingester interface {
	Ingest(ctx context.Context, feed *model.NewsFeed, items []model.ParsedNewsItem) (inserted, updated int, err error)
}

// URLValidator は取得前のURL検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Recorder はフェッチ結果の計測先。
type Recorder interface {
	RecordNewsFetch(result string, duration time.Duration)
	RecordNewsItems(inserted, updated int)
}

// FetcherConfig はFetcherの動作設定。
type FetcherConfig struct {
	Interval    time.Duration // 成功時の次回フェッチまでの間隔
	MaxBodySize int64         // レスポンスボディの最大サイズ
	UserAgent   string
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、URL検証、
// gofeedによるパース、Ingesterによる記事保存を実行する。
type Fetcher struct {
	feedRepo FeedStateUpdater
	ingester Ingester
	guard    URLValidator
	client   *http.Client
	recorder Recorder
	logger   *slog.Logger
	cfg      FetcherConfig
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// clientにはプライベートアドレスへの接続を拒否するクライアントを渡す。recorderはnilでもよい。
func NewFetcher(
	feedRepo FeedStateUpdater,
	ingester Ingester,
	guard URLValidator,
	client *http.Client,
	recorder Recorder,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 5 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "SkillNest/1.0 NewsFetcher"
	}
	return &Fetcher{
		feedRepo: feedRepo,
		ingester: ingester,
		guard:    guard,
		client:   client,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
	}
}

// Fetch はフィードをフェッチし、結果に応じてフィード状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.NewsFeed) error {
	start := time.Now()
	result := "error"
	defer func() {
		if f.recorder != nil {
			f.recorder.RecordNewsFetch(result, time.Since(start))
		}
	}()

	if err := f.guard.ValidateURL(feed.FeedURL); err != nil {
		f.logger.ErrorContext(ctx, "URL検証に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyStopFeed(feed, fmt.Sprintf("URL検証失敗: %s", err.Error()))
		result = FetchResultStop.String()
		f.saveState(ctx, feed)
		return fmt.Errorf("URL検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.ErrorContext(ctx, "HTTPリクエストに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.saveState(ctx, feed)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	status := ClassifyHTTPStatus(resp.StatusCode)
	switch status {
	case FetchResultNotModified:
		f.logger.InfoContext(ctx, "フィードは未変更です（304）",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		result = status.String()
		ApplySuccess(feed, f.cfg.Interval)
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.WarnContext(ctx, "フィードフェッチを停止します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		result = status.String()
		ApplyStopFeed(feed, reason)
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultBackoff:
		f.logger.WarnContext(ctx, "フィードフェッチにバックオフを適用します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		result = status.String()
		ApplyBackoff(feed, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode))
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultOK:
	default:
		f.logger.WarnContext(ctx, "予期しないHTTPステータスコード",
			slog.String("feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		result = status.String()
		ApplyBackoff(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}

	// 上限+1バイトまで読み、超過していればパース失敗として扱う
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		f.logger.WarnContext(ctx, "フィードのサイズが上限を超えています",
			slog.String("feed_id", feed.ID),
			slog.Int64("max_size", f.cfg.MaxBodySize),
		)
		ApplyParseFailure(feed, fmt.Sprintf("レスポンスが%dバイトを超えています", f.cfg.MaxBodySize), f.cfg.Interval)
		result = "parse_error"
		f.saveState(ctx, feed)
		return nil
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}

	parsedFeed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		f.logger.ErrorContext(ctx, "フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyParseFailure(feed, err.Error(), f.cfg.Interval)
		result = "parse_error"
		f.saveState(ctx, feed)
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	if parsedFeed.Title != "" {
		feed.Title = parsedFeed.Title
	}

	items := news.ConvertItems(parsedFeed.Items)
	if parsedFeed.Image != nil {
		for i := range items {
			if items[i].ImageURL == "" {
				items[i].ImageURL = parsedFeed.Image.URL
			}
		}
	}

	inserted, updated, err := f.ingester.Ingest(ctx, feed, items)
	if err != nil {
		f.logger.ErrorContext(ctx, "記事の保存に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("記事保存失敗: %s", err.Error()))
		f.saveState(ctx, feed)
		return fmt.Errorf("記事の保存に失敗: %w", err)
	}

	if f.recorder != nil {
		f.recorder.RecordNewsItems(inserted, updated)
	}

	ApplySuccess(feed, f.cfg.Interval)
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		return fmt.Errorf("フィード状態の更新に失敗: %w", err)
	}
	result = FetchResultOK.String()

	f.logger.InfoContext(ctx, "フィードフェッチが完了しました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_inserted", inserted),
		slog.Int("items_updated", updated),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// saveState はエラー経路でフィード状態を保存する。保存の失敗はログに記録するのみ。
func (f *Fetcher) saveState(ctx context.Context, feed *model.NewsFeed) {
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.ErrorContext(ctx, "フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}
}
