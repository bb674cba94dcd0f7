package challenge

import (
	"strings"

	"github.com/hitoshi/skillnest/internal/model"
)

// Status は進捗状態によるフィルタ値。
type Status string

const (
	StatusAll        Status = "all"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// DifficultyAll は難易度で絞り込まないことを表す。
const DifficultyAll = "all"

// Filter はチャレンジ一覧の絞り込み条件。
type Filter struct {
	Status     Status
	Difficulty string // "all" または model.Difficulty の値
}

// ParseFilter はクエリパラメータからFilterを生成する。空の値は"all"として扱う。
func ParseFilter(status, difficulty string) (Filter, error) {
	f := Filter{Status: StatusAll, Difficulty: DifficultyAll}

	switch s := Status(strings.ToLower(strings.TrimSpace(status))); s {
	case "":
	case StatusAll, StatusInProgress, StatusCompleted:
		f.Status = s
	default:
		return Filter{}, model.NewInvalidFilterError("status", status)
	}

	switch d := strings.ToLower(strings.TrimSpace(difficulty)); d {
	case "", DifficultyAll:
	case string(model.DifficultyEasy), string(model.DifficultyMedium),
		string(model.DifficultyHard), string(model.DifficultyExpert):
		f.Difficulty = d
	default:
		return Filter{}, model.NewInvalidFilterError("difficulty", difficulty)
	}
	return f, nil
}

// Match は進捗付きチャレンジが条件に一致するかを返す。
func (f Filter) Match(v model.ChallengeView) bool {
	switch f.Status {
	case StatusInProgress:
		if v.Progress == 0 || v.Progress >= 100 {
			return false
		}
	case StatusCompleted:
		if v.Progress < 100 {
			return false
		}
	}
	if f.Difficulty != "" && f.Difficulty != DifficultyAll && string(v.Difficulty) != f.Difficulty {
		return false
	}
	return true
}

// Apply は条件に一致するチャレンジを元の順序のまま返す。
func (f Filter) Apply(views []model.ChallengeView) []model.ChallengeView {
	out := make([]model.ChallengeView, 0, len(views))
	for _, v := range views {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}
