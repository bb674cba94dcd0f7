package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skillnest/internal/metrics"
	"github.com/hitoshi/skillnest/internal/middleware"
	"github.com/hitoshi/skillnest/internal/typewriter"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 監視
	HealthPinger Pinger
	Metrics      *metrics.Collector
	MetricsPath  http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Events      EventSubscriber

	// 機能
	ChatService      ChatServiceInterface
	AnalyzerService  AnalyzerServiceInterface
	ChallengeService ChallengeServiceInterface
	UserService      UserServiceInterface
	NewsService      NewsServiceInterface
	ContactService   ContactServiceInterface
	HeroConfig       typewriter.Config
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//
// /api配下のミドルウェアの実行順序:
//
//	(Optional)Session → CSRF → RateLimit(General) [→ RateLimit(AI)]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	var tracker ConnTracker
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		tracker = deps.Metrics
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	eventsHandler := NewEventsHandler(deps.Events, tracker, deps.CORSAllowedOrigin)
	heroHandler := NewHeroHandler(deps.HeroConfig, tracker, deps.CORSAllowedOrigin)
	chatHandler := NewChatHandler(deps.ChatService)
	analyzeHandler := NewAnalyzeHandler(deps.AnalyzerService)
	challengeHandler := NewChallengeHandler(deps.ChallengeService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.CookieDomain, deps.AuthConfig.CookieSecure)
	newsHandler := NewNewsHandler(deps.NewsService)
	contactHandler := NewContactHandler(deps.ContactService)

	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)
	sessionRequired := middleware.NewSessionMiddleware(deps.SessionFinder)

	// --- 監視 ---
	r.Get("/health", NewHealthHandler(deps.HealthPinger))
	if deps.MetricsPath != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsPath)
	}

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Get("/verify", authHandler.VerifyEmail)
		r.Get("/providers", authHandler.Providers)
		r.Get("/{provider}/login", authHandler.OAuthLogin)
		r.Get("/{provider}/callback", authHandler.OAuthCallback)
		r.With(csrf).Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.With(sessionRequired).Get("/events", eventsHandler.ServeHTTP)
	})

	// CSRFトークンの発行
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証不要のルート ---
	// ミドルウェアスタック: OptionalSession → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/hero", heroHandler.Get)
		r.Get("/api/hero/typewriter", heroHandler.Typewriter)
		r.Get("/api/news", newsHandler.List)
		r.Post("/api/contact", contactHandler.Submit)
		r.Get("/api/challenges", challengeHandler.List)

		// AIチャット（AI用レート制限を追加）
		r.With(deps.RateLimiter.AIMiddleware()).Post("/api/chat", chatHandler.Reply)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(sessionRequired)
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.With(deps.RateLimiter.AIMiddleware()).Post("/api/analyze", analyzeHandler.Analyze)

		r.Route("/api/challenges/{id}", func(r chi.Router) {
			r.Post("/start", challengeHandler.Start)
			r.Post("/progress", challengeHandler.UpdateProgress)
		})

		r.Get("/api/profile", userHandler.GetProfile)
		r.Patch("/api/profile", userHandler.UpdateProfile)
		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
