// Package challenge はチャレンジ一覧の絞り込みと進捗管理を提供する。
package challenge

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/repository"
)

// ProgressResult は進捗更新の結果を表す。
type ProgressResult struct {
	Challenge    model.ChallengeView
	CompletedNow bool
	CoinsAwarded int
	UserProgress model.Progress
}

// Service はチャレンジに関するビジネスロジックを提供する。
type Service struct {
	progressRepo repository.ChallengeProgressRepository
	logger       *slog.Logger
}

// NewService はServiceを生成する。
func NewService(progressRepo repository.ChallengeProgressRepository, logger *slog.Logger) *Service {
	return &Service{progressRepo: progressRepo, logger: logger}
}

// List は進捗を付与したチャレンジ一覧をフィルタして返す。
// userIDが空（未ログイン）の場合、進捗はすべて0とする。
func (s *Service) List(ctx context.Context, userID string, f Filter) ([]model.ChallengeView, error) {
	var counts map[string]int
	var progress []model.ChallengeProgress

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.progressRepo.CountCompleted(gctx)
		return err
	})
	if userID != "" {
		g.Go(func() error {
			var err error
			progress, err = s.progressRepo.ListByUserID(gctx, userID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load challenge progress: %w", err)
	}

	percents := make(map[string]int, len(progress))
	for _, p := range progress {
		percents[p.ChallengeID] = p.Percent
	}

	views := make([]model.ChallengeView, len(catalog))
	for i, c := range catalog {
		views[i] = model.ChallengeView{
			Challenge:   c,
			Progress:    percents[c.ID],
			CompletedBy: counts[c.ID],
		}
	}
	return f.Apply(views), nil
}

// Start はチャレンジを開始する。未着手の場合のみ進捗を1にする。
func (s *Service) Start(ctx context.Context, userID, challengeID string) (*ProgressResult, error) {
	return s.advance(ctx, userID, challengeID, 1)
}

// UpdateProgress は進捗を更新する。進捗は減少せず、初回完了時のみ報酬を付与する。
func (s *Service) UpdateProgress(ctx context.Context, userID, challengeID string, percent int) (*ProgressResult, error) {
	if percent < 0 || percent > 100 {
		return nil, model.NewInvalidProgressError(percent)
	}
	return s.advance(ctx, userID, challengeID, percent)
}

func (s *Service) advance(ctx context.Context, userID, challengeID string, percent int) (*ProgressResult, error) {
	c, ok := findChallenge(challengeID)
	if !ok {
		return nil, model.NewChallengeNotFoundError(challengeID)
	}

	// カテゴリ別進捗は進捗と同じトランザクションで再計算される
	adv, err := s.progressRepo.Advance(ctx, userID, challengeID, percent, c.Rewards, CategoryProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to advance challenge progress: %w", err)
	}

	result := &ProgressResult{
		Challenge:    model.ChallengeView{Challenge: c, Progress: adv.Current},
		CompletedNow: adv.CompletedNow,
		UserProgress: adv.UserProgress,
	}
	if adv.CompletedNow {
		result.CoinsAwarded = c.Rewards
		s.logger.InfoContext(ctx, "challenge completed",
			slog.String("user_id", userID),
			slog.String("challenge_id", challengeID),
			slog.Int("coins", c.Rewards),
		)
	}
	return result, nil
}

// CategoryProgress はカテゴリに属する全チャレンジの平均進捗（切り捨て）を計算する。
// 未着手のチャレンジは0として平均に含める。
func CategoryProgress(list []model.ChallengeProgress) model.Progress {
	percents := make(map[string]int, len(list))
	for _, p := range list {
		percents[p.ChallengeID] = p.Percent
	}

	sums := map[model.ChallengeCategory]int{}
	totals := map[model.ChallengeCategory]int{}
	for _, c := range catalog {
		sums[c.Category] += percents[c.ID]
		totals[c.Category]++
	}
	avg := func(cat model.ChallengeCategory) int {
		if totals[cat] == 0 {
			return 0
		}
		return sums[cat] / totals[cat]
	}
	return model.Progress{
		Coding:     avg(model.CategoryProgramming),
		Algorithms: avg(model.CategoryAlgorithms),
		Frameworks: avg(model.CategoryFrameworks),
	}
}

// CompletedCount は完了済みチャレンジ数を返す。
func CompletedCount(list []model.ChallengeProgress) int {
	n := 0
	for _, p := range list {
		if p.Percent >= 100 {
			n++
		}
	}
	return n
}
