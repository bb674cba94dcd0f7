package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth (client id と secret が両方そろったプロバイダのみ有効)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Gemini
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiTimeout time.Duration

	// News
	NewsFeeds              []FeedSource
	NewsFetchInterval      time.Duration
	NewsFetchTimeout       time.Duration
	NewsFetchMaxSize       int64
	NewsFetchMaxConcurrent int
	NewsRetentionDays      int

	// Cleanup
	CleanupInterval time.Duration

	// Rate Limit (1分あたりのリクエスト数)
	RateLimitGeneral int
	RateLimitAI      int

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	WorkerMetricsPort string // workerが/metricsを公開するポート
	BaseURL           string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// FeedSource はNEWS_FEEDSで指定された1件のニュースフィードを表す。
type FeedSource struct {
	URL      string
	Category string
}

// GoogleEnabled はGoogle OAuthの設定がそろっているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHub OAuthの設定がそろっているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// LoadDotEnv は指定パスの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.SessionSecret = required("SESSION_SECRET")
	cfg.BaseURL = required("BASE_URL")
	// APIキーはサーバー側でのみ保持し、クライアントには渡さない。
	cfg.GeminiAPIKey = required("GEMINI_API_KEY")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/auth/google/callback")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/auth/github/callback")

	feeds, err := parseFeedSources(os.Getenv("NEWS_FEEDS"))
	if err != nil {
		return nil, err
	}
	cfg.NewsFeeds = feeds

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-pro")
	cfg.GeminiBaseURL = getEnvString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models")
	cfg.GeminiTimeout = getEnvDuration("GEMINI_TIMEOUT", 30*time.Second)
	cfg.NewsFetchInterval = getEnvDuration("NEWS_FETCH_INTERVAL", 30*time.Minute)
	cfg.NewsFetchTimeout = getEnvDuration("NEWS_FETCH_TIMEOUT", 10*time.Second)
	cfg.NewsFetchMaxSize = getEnvInt64("NEWS_FETCH_MAX_SIZE", 5242880)
	cfg.NewsFetchMaxConcurrent = getEnvInt("NEWS_FETCH_MAX_CONCURRENT", 4)
	cfg.NewsRetentionDays = getEnvInt("NEWS_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

// parseFeedSources は "url|category,url|category" 形式を解析する。
// カテゴリ省略時は "technology" とする。
func parseFeedSources(raw string) ([]FeedSource, error) {
	var sources []FeedSource
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		u, category, _ := strings.Cut(entry, "|")
		u = strings.TrimSpace(u)
		category = strings.TrimSpace(category)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("NEWS_FEEDS: invalid feed url %q", u)
		}
		if category == "" {
			category = "technology"
		}
		sources = append(sources, FeedSource{URL: u, Category: category})
	}
	return sources, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
