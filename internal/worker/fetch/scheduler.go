// Package fetch はニュースフィードのバックグラウンドフェッチ処理を提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

// DefaultLease はClaimDueFeedsで取得したフィードを他のワーカーから隠す時間。
const DefaultLease = 10 * time.Minute

// FeedClaimer はフェッチ対象フィードを取得する。
type FeedClaimer interface {
	ClaimDueFeeds(ctx context.Context, lease time.Duration) ([]*model.NewsFeed, error)
}

// FeedFetcherService はフィードフェッチの実行インターフェース。
type FeedFetcherService interface {
	// Fetch は指定フィードをフェッチし、結果に応じてフィード状態を更新する。
	Fetch(ctx context.Context, feed *model.NewsFeed) error
}

// Scheduler はフィードフェッチのスケジューリングと並列制御を行う。
// ティッカーでフェッチ対象フィードを取得し、
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	feedRepo       FeedClaimer
	fetcher        FeedFetcherService
	logger         *slog.Logger
	maxConcurrency int
	lease          time.Duration
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(feedRepo FeedClaimer, fetcher FeedFetcherService, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		feedRepo:       feedRepo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		lease:          DefaultLease,
	}
}

// Start はinterval間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("フェッチスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("フェッチスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("フェッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はフェッチ対象フィードを1回取得し、並列でフェッチを実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	feeds, err := s.feedRepo.ClaimDueFeeds(ctx, s.lease)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		s.logger.Debug("フェッチ対象のフィードはありません")
		return nil
	}

	s.logger.Info("フェッチサイクルを開始します", slog.Int("feed_count", len(feeds)))

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, feed := range feeds {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)

		go func(f *model.NewsFeed) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, f); err != nil {
				s.logger.Error("フィードフェッチに失敗しました",
					slog.String("feed_id", f.ID),
					slog.String("feed_url", f.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(feed)
	}

	wg.Wait()

	s.logger.Info("フェッチサイクルが完了しました",
		slog.Int("feed_count", len(feeds)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
