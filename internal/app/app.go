package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/skillnest/internal/analyzer"
	"github.com/hitoshi/skillnest/internal/auth"
	"github.com/hitoshi/skillnest/internal/challenge"
	"github.com/hitoshi/skillnest/internal/chat"
	"github.com/hitoshi/skillnest/internal/config"
	"github.com/hitoshi/skillnest/internal/contact"
	"github.com/hitoshi/skillnest/internal/database"
	"github.com/hitoshi/skillnest/internal/gemini"
	"github.com/hitoshi/skillnest/internal/handler"
	"github.com/hitoshi/skillnest/internal/logger"
	"github.com/hitoshi/skillnest/internal/metrics"
	"github.com/hitoshi/skillnest/internal/middleware"
	"github.com/hitoshi/skillnest/internal/news"
	"github.com/hitoshi/skillnest/internal/repository"
	"github.com/hitoshi/skillnest/internal/security"
	"github.com/hitoshi/skillnest/internal/session"
	"github.com/hitoshi/skillnest/internal/typewriter"
	"github.com/hitoshi/skillnest/internal/user"
	"github.com/hitoshi/skillnest/internal/worker/cleanup"
	"github.com/hitoshi/skillnest/internal/worker/fetch"
)

const (
	dbPingTimeout          = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	oauthHTTPTimeout       = 10 * time.Second
	healthcheckTimeout     = 5 * time.Second
	eventSubscriberBuf     = 8
	defaultHealthcheckPort = "8080"
	newsFetchUserAgent     = "SkillNest/1.0 NewsFetcher (+https://github.com/hitoshi/skillnest)"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前のエラーもJSONで出力できるようにする
	logger.SetupDefault(w, "info")

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信するとグレースフルに終了する。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultHealthcheckPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はランタイムとプロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// apiServer はAPIサーバーモードで組み立てた依存関係。
type apiServer struct {
	router      http.Handler
	rateLimiter *middleware.RateLimiter
	cleanup     *cleanup.CleanupJob
}

// buildAPI はリポジトリからルーターまでの依存関係をワイヤリングする。
// DBへの接続は行わないため、到達できないDBでも組み立てられる。
func buildAPI(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) *apiServer {
	collector := metrics.NewCollector(reg)
	broker := session.NewBroker(eventSubscriberBuf, log, collector)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identityRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	credentialRepo := repository.NewPostgresCredentialRepo(db)
	verificationRepo := repository.NewPostgresVerificationRepo(db)
	progressRepo := repository.NewPostgresChallengeProgressRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)
	newsFeedRepo := repository.NewPostgresNewsFeedRepo(db)
	newsItemRepo := repository.NewPostgresNewsItemRepo(db)

	// 認証
	var providers []auth.OAuthProvider
	oauthClient := &http.Client{Timeout: oauthHTTPTimeout}
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(oauthClient, auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(oauthClient, auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	authService := auth.NewService(providers, auth.Repositories{
		Users:         userRepo,
		Identities:    identityRepo,
		Credentials:   credentialRepo,
		Verifications: verificationRepo,
		Sessions:      sessionRepo,
	}, auth.NewLogMailer(log), broker, log, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BaseURL:       cfg.BaseURL,
	})

	// AI
	geminiClient := gemini.NewClient(&http.Client{Timeout: cfg.GeminiTimeout}, log, collector, gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})

	// ジョブ。Expiredイベントをこのプロセスの購読者へ届けるため、セッション削除はここで行う。
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, db, broker, log)
	cleanupJob.Scope = cleanup.ScopeSessions

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAI))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthPinger: db,
		Metrics:      collector,
		MetricsPath:  metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Events: broker,

		ChatService:      chat.NewService(geminiClient, log),
		AnalyzerService:  analyzer.NewService(geminiClient, security.NewMarkdownSanitizer()),
		ChallengeService: challenge.NewService(progressRepo, log),
		UserService:      user.NewService(userRepo, progressRepo, sessionRepo, broker, log),
		NewsService:      news.NewService(newsFeedRepo, newsItemRepo, security.NewPlainTextSanitizer(news.DescriptionMaxRunes), log),
		ContactService:   contact.NewService(contactRepo, log),
		HeroConfig:       typewriter.HeroConfig(),
	})

	return &apiServer{
		router:      router,
		rateLimiter: rateLimiter,
		cleanup:     cleanupJob,
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	api := buildAPI(cfg, db, newRegistry(), slog.Default())
	defer api.rateLimiter.Stop()

	go api.cleanup.Start(ctx, cfg.CleanupInterval)

	// WebSocket接続を保持するため、書き込みタイムアウトは設けない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はサーバーを起動し、ctxがキャンセルされるまで待ってからシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// newsWorker はワーカーモードで組み立てた依存関係。
type newsWorker struct {
	news      *news.Service
	scheduler *fetch.Scheduler
	cleanup   *cleanup.CleanupJob
}

// buildWorker はニュース取り込みと記事削除の依存関係をワイヤリングする。
func buildWorker(cfg *config.Config, db *sql.DB, collector *metrics.Collector, log *slog.Logger) *newsWorker {
	feedRepo := repository.NewPostgresNewsFeedRepo(db)
	itemRepo := repository.NewPostgresNewsItemRepo(db)

	newsService := news.NewService(feedRepo, itemRepo, security.NewPlainTextSanitizer(news.DescriptionMaxRunes), log)

	guard := security.NewURLGuard()
	client := guard.NewClient(cfg.NewsFetchTimeout)
	newsService.Resolver = news.NewDiscoverer(guard, client, newsFetchUserAgent)

	fetcher := fetch.NewFetcher(
		feedRepo, newsService, guard, client,
		collector, log,
		fetch.FetcherConfig{
			Interval:    cfg.NewsFetchInterval,
			MaxBodySize: cfg.NewsFetchMaxSize,
			UserAgent:   newsFetchUserAgent,
		},
	)
	scheduler := fetch.NewScheduler(feedRepo, fetcher, log, cfg.NewsFetchMaxConcurrent)

	// セッション削除はAPIサーバー側で行うため、ここでは記事のみを対象にする
	cleanupJob := cleanup.NewCleanupJob(nil, db, nil, log)
	cleanupJob.Scope = cleanup.ScopeNews
	cleanupJob.NewsRetentionDays = cfg.NewsRetentionDays

	return &newsWorker{news: newsService, scheduler: scheduler, cleanup: cleanupJob}
}

// feedSources は設定値のフィード一覧を登録用の型に変換する。
func feedSources(feeds []config.FeedSource) []news.Source {
	sources := make([]news.Source, 0, len(feeds))
	for _, f := range feeds {
		sources = append(sources, news.Source{URL: f.URL, Category: f.Category})
	}
	return sources
}

// runWorker はワーカーモードで起動する。
// 設定されたフィードを登録し、フェッチスケジューラ、クリーンアップ、メトリクス公開を並行実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newRegistry()
	w := buildWorker(cfg, db, metrics.NewCollector(reg), slog.Default())

	registered := w.news.EnsureFeeds(ctx, feedSources(cfg.NewsFeeds))
	slog.Info("worker starting",
		slog.Int("feeds", registered),
		slog.Duration("fetch_interval", cfg.NewsFetchInterval),
		slog.Int("max_concurrent", cfg.NewsFetchMaxConcurrent),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.cleanup.Start(gctx, cfg.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		w.scheduler.Start(gctx, cfg.NewsFetchInterval)
		return nil
	})
	g.Go(func() error {
		return serveUntilDone(gctx, metricsServer, "worker metrics server")
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", database.RedactURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: healthcheckTimeout}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
