package challenge

import "github.com/hitoshi/skillnest/internal/model"

// catalog は提供中のチャレンジ一覧。IDは公開URLに含まれるため変更しない。
var catalog = []model.Challenge{
	{
		ID:           "1",
		Title:        "JavaScript Fundamentals",
		Description:  "Test your knowledge of JavaScript basics with this interactive quiz",
		Difficulty:   model.DifficultyEasy,
		Type:         "quiz",
		TimeEstimate: "15 min",
		Rewards:      30,
		Category:     model.CategoryProgramming,
	},
	{
		ID:           "2",
		Title:        "Algorithms Challenge",
		Description:  "Solve complex algorithmic problems with JavaScript",
		Difficulty:   model.DifficultyHard,
		Type:         "puzzle",
		TimeEstimate: "45 min",
		Rewards:      80,
		Category:     model.CategoryAlgorithms,
	},
	{
		ID:           "3",
		Title:        "React Component Building",
		Description:  "Build a reusable React component from scratch",
		Difficulty:   model.DifficultyMedium,
		Type:         "assignment",
		TimeEstimate: "1 hour",
		Rewards:      60,
		Category:     model.CategoryFrameworks,
	},
	{
		ID:           "4",
		Title:        "Full-Stack Certification",
		Description:  "Comprehensive test of your full-stack development skills",
		Difficulty:   model.DifficultyExpert,
		Type:         "exam",
		TimeEstimate: "2 hours",
		Rewards:      150,
		Category:     model.CategoryProgramming,
	},
	{
		ID:           "5",
		Title:        "CSS Grid Mastery",
		Description:  "Master CSS Grid layout through practical exercises",
		Difficulty:   model.DifficultyMedium,
		Type:         "assignment",
		TimeEstimate: "30 min",
		Rewards:      45,
		Category:     model.CategoryProgramming,
	},
	{
		ID:           "6",
		Title:        "Database Design",
		Description:  "Design a robust database schema for a social media platform",
		Difficulty:   model.DifficultyHard,
		Type:         "assignment",
		TimeEstimate: "1.5 hours",
		Rewards:      90,
		Category:     model.CategoryProgramming,
	},
}

// Catalog はチャレンジ定義のコピーを返す。
func Catalog() []model.Challenge {
	out := make([]model.Challenge, len(catalog))
	copy(out, catalog)
	return out
}

func findChallenge(id string) (model.Challenge, bool) {
	for _, c := range catalog {
		if c.ID == id {
			return c, true
		}
	}
	return model.Challenge{}, false
}
