package model

// Difficulty はチャレンジの難易度を表す。
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// ChallengeCategory はチャレンジが進捗に反映されるカテゴリを表す。
type ChallengeCategory string

const (
	CategoryProgramming ChallengeCategory = "programming"
	CategoryAlgorithms  ChallengeCategory = "algorithms"
	CategoryFrameworks  ChallengeCategory = "frameworks"
)

// Challenge はカタログ上のチャレンジ定義を表す。
type Challenge struct {
	ID           string
	Title        string
	Description  string
	Difficulty   Difficulty
	Type         string
	TimeEstimate string
	Rewards      int
	Category     ChallengeCategory
}

// ChallengeView はユーザーごとの進捗を付与したチャレンジを表す。
type ChallengeView struct {
	Challenge
	Progress    int
	CompletedBy int
}

// ChallengeProgress はユーザーごとのチャレンジ進捗を表す。
type ChallengeProgress struct {
	UserID      string
	ChallengeID string
	Percent     int
	Completed   bool
}
