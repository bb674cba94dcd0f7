package model

import "time"

// NewsFeed はテックニュースの取得元フィードを表す。
type NewsFeed struct {
	ID                string
	FeedURL           string
	Category          string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	FetchStatusActive  FetchStatus = "active"
	FetchStatusStopped FetchStatus = "stopped"
)

// NewsItem はフィードから取得したニュース記事を表す。
type NewsItem struct {
	ID          string
	FeedID      string
	GUID        string
	Title       string
	Description string // タグを除去したプレーンテキスト
	Link        string
	Source      string
	ImageURL    string
	Category    string
	PublishedAt time.Time
	CreatedAt   time.Time
}

// ParsedNewsItem はパース直後の未保存の記事データを表す。
type ParsedNewsItem struct {
	GUID        string
	Title       string
	Description string // 未サニタイズ
	Content     string // 未サニタイズ
	Link        string
	ImageURL    string
	PublishedAt *time.Time
}
