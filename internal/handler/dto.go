package handler

import (
	"time"

	"github.com/hitoshi/skillnest/internal/analyzer"
	"github.com/hitoshi/skillnest/internal/challenge"
	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/user"
)

// progressResponse はカテゴリ別進捗のAPIレスポンス。
type progressResponse struct {
	Coding     int `json:"coding"`
	Algorithms int `json:"algorithms"`
	Frameworks int `json:"frameworks"`
}

func toProgressResponse(p model.Progress) progressResponse {
	return progressResponse{Coding: p.Coding, Algorithms: p.Algorithms, Frameworks: p.Frameworks}
}

// userResponse はユーザープロフィールのAPIレスポンス。
type userResponse struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	FirstName     string           `json:"firstName"`
	LastName      string           `json:"lastName"`
	Profession    string           `json:"profession"`
	Bio           string           `json:"bio"`
	GitHub        string           `json:"github"`
	Twitter       string           `json:"twitter"`
	LinkedIn      string           `json:"linkedin"`
	Coins         int              `json:"coins"`
	Progress      progressResponse `json:"progress"`
	EmailVerified bool             `json:"emailVerified"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Profession:    string(u.Profession),
		Bio:           u.Bio,
		GitHub:        u.GitHub,
		Twitter:       u.Twitter,
		LinkedIn:      u.LinkedIn,
		Coins:         u.Coins,
		Progress:      toProgressResponse(u.Progress),
		EmailVerified: u.EmailVerifiedAt != nil,
		CreatedAt:     u.CreatedAt,
	}
}

// profileResponse はプロフィール画面のAPIレスポンス。
type profileResponse struct {
	userResponse
	CompletedChallenges int `json:"completedChallenges"`
}

func toProfileResponse(p *user.Profile) profileResponse {
	return profileResponse{
		userResponse:        toUserResponse(p.User),
		CompletedChallenges: p.CompletedChallenges,
	}
}

// challengeResponse はチャレンジ一覧の1件分のAPIレスポンス。
type challengeResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Difficulty   string `json:"difficulty"`
	Type         string `json:"type"`
	TimeEstimate string `json:"timeEstimate"`
	Rewards      int    `json:"rewards"`
	Category     string `json:"category"`
	Progress     int    `json:"progress"`
	CompletedBy  int    `json:"completedBy"`
}

func toChallengeResponse(v model.ChallengeView) challengeResponse {
	return challengeResponse{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		Difficulty:   string(v.Difficulty),
		Type:         v.Type,
		TimeEstimate: v.TimeEstimate,
		Rewards:      v.Rewards,
		Category:     string(v.Category),
		Progress:     v.Progress,
		CompletedBy:  v.CompletedBy,
	}
}

// progressResultResponse はチャレンジ進捗更新のAPIレスポンス。
type progressResultResponse struct {
	Challenge    challengeResponse `json:"challenge"`
	CompletedNow bool              `json:"completedNow"`
	CoinsAwarded int               `json:"coinsAwarded"`
	UserProgress progressResponse  `json:"userProgress"`
}

func toProgressResultResponse(r *challenge.ProgressResult) progressResultResponse {
	return progressResultResponse{
		Challenge:    toChallengeResponse(r.Challenge),
		CompletedNow: r.CompletedNow,
		CoinsAwarded: r.CoinsAwarded,
		UserProgress: toProgressResponse(r.UserProgress),
	}
}

// analyzeResponse はコード解析のAPIレスポンス。
type analyzeResponse struct {
	Action string `json:"action"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
}

func toAnalyzeResponse(r *analyzer.Result) analyzeResponse {
	return analyzeResponse{Action: string(r.Action), Text: r.Text, HTML: r.HTML}
}

// newsItemResponse はニュース記事のAPIレスポンス。
type newsItemResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	ImageURL    string    `json:"imageUrl"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"publishedAt"`
}

func toNewsItemResponse(n model.NewsItem) newsItemResponse {
	return newsItemResponse{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Link:        n.Link,
		Source:      n.Source,
		ImageURL:    n.ImageURL,
		Category:    n.Category,
		PublishedAt: n.PublishedAt,
	}
}

// contactResponse はお問い合わせ受付のAPIレスポンス。
type contactResponse struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

func toContactResponse(m *model.ContactMessage) contactResponse {
	return contactResponse{ID: m.ID, Category: string(m.Category), CreatedAt: m.CreatedAt}
}
