package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pgRepo "pulsefeed/internal/infra/adapter/persistence/postgres"
	"pulsefeed/internal/infra/ai"
	"pulsefeed/internal/infra/category"
	"pulsefeed/internal/infra/db"
	"pulsefeed/internal/infra/db/migrations"
	"pulsefeed/internal/infra/extraction"
	"pulsefeed/internal/infra/extractor"
	"pulsefeed/internal/infra/httpclient"
	"pulsefeed/internal/infra/notifier"
	"pulsefeed/internal/infra/scraper"
	workerPkg "pulsefeed/internal/infra/worker"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
	"pulsefeed/internal/usecase/filter"
	"pulsefeed/internal/usecase/orchestrator"
	"pulsefeed/internal/usecase/persistence"
	"pulsefeed/internal/usecase/schedule"
	"pulsefeed/pkg/ratelimit"
)

func main() {
	logger := initLogger()

	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerCfg, _ := workerPkg.LoadConfigFromEnv(logger, workerMetrics)

	orch := buildOrchestrator(database, logger)
	sched := buildScheduler(database, orch, logger)

	healthServer := workerPkg.NewHealthServer(":"+strconv.Itoa(workerCfg.HealthPort), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startMetricsServer(workerCfg.HealthPort+1, logger)

	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	healthServer.SetReady(true)

	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler stopped", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker...")
	cancel()
}

// initLogger mirrors cmd/api's structured JSON logger setup.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the pool and runs every registered migration before
// the worker accepts any scheduled task.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	manager := db.NewManager(database, migrations.All())
	if err := manager.Run(context.Background()); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// buildOrchestrator wires C1 through C9 plus the output adapters into one
// orchestrator.Orchestrator, the composition root's equivalent of the
// teacher's setupFetchService.
func buildOrchestrator(database *sql.DB, logger *slog.Logger) *orchestrator.Orchestrator {
	sourceRepo := pgRepo.NewSourceRepo(database)
	articleRepo := pgRepo.NewArticleRepo(database)
	categoryRepo := pgRepo.NewCategoryRepo(database)
	statsRepo := pgRepo.NewStatsRepo(database)
	summaryRepo := pgRepo.NewDailySummaryRepo(database)
	extractionRepo := pgRepo.NewExtractionRepo(database)

	// writeQueue is C9: every article upsert/update and the batched
	// article_categories write go through it instead of straight to the
	// pool, so shard-serialized writes, deadlock retry, and backpressure
	// to source ingestion actually run in the live pipeline.
	writeQueue := persistence.New(database, persistence.DefaultConfig())

	httpCfg, err := httpclient.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("http client configuration invalid, using defaults", slog.Any("error", err))
		httpCfg = httpclient.DefaultConfig()
	}
	fetcher := httpclient.New(httpCfg)
	registry := scraper.NewRegistry(&fetcherAdapter{fetcher: fetcher})

	clock := &ratelimit.SystemClock{}
	extractionMemory := extraction.New(extractionRepo, clock)

	geminiCfg := ai.LoadGeminiConfig()
	openaiCfg := ai.LoadOpenAIConfig()
	gemini := ai.NewGemini(geminiCfg)
	openaiProvider := ai.NewOpenAIProvider(openaiCfg)
	bucket := ai.NewTokenBucket(ai.LoadRPSFromEnv())
	aiClient, err := ai.New(gemini, openaiProvider, bucket, clock)
	if err != nil {
		logger.Error("failed to build AI client", slog.Any("error", err))
		os.Exit(1)
	}

	// extractor's AI-discovery strategy (strategy 6) reuses the same
	// client that drives C7's analysis calls; no dedicated Renderer
	// (strategy 5, headless browser) has been built, so it is nil and
	// the chain fails over to ErrQualityFail past strategy 4.
	ext := extractor.New(extractionMemory, nil, aiClient)

	categoryEngine := category.New(categoryRepo, defaultCategoryFromEnv()).
		WithQueue(writeQueue, func(tx *sql.Tx) repository.CategoryRepository {
			return pgRepo.NewCategoryRepo(tx)
		})

	publishers := buildPublishers(logger)

	recentHashes := filter.NewRecentHashes(24 * time.Hour)
	smartFilter := filter.New(recentHashes, allowedLanguagesFromEnv())

	fetchPage := func(ctx context.Context, rawURL string) ([]byte, error) {
		resp, err := fetcher.Fetch(ctx, rawURL, httpclient.Options{
			Method:     http.MethodGet,
			AcceptGzip: true,
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	orchMetrics := orchestrator.NewMetrics()
	orchCfg := orchestrator.LoadConfigFromEnv(logger, orchMetrics)

	return orchestrator.New(
		sourceRepo, articleRepo, categoryRepo, statsRepo, summaryRepo,
		registry, smartFilter, ext, fetchPage, aiClient, categoryEngine,
		publishers, orchCfg, orchMetrics, logger,
	).WithWriteQueue(writeQueue, func(tx *sql.Tx) repository.ArticleRepository {
		return pgRepo.NewArticleRepo(tx)
	})
}

// buildScheduler wires C11 over C12's single cycle entry point, the
// "news_processing"/"news_digest" runners mirroring what the teacher's
// cron job used to invoke directly.
func buildScheduler(database *sql.DB, orch *orchestrator.Orchestrator, logger *slog.Logger) *schedule.Scheduler {
	scheduleRepo := pgRepo.NewScheduleRepo(database)
	queueRepo := pgRepo.NewTaskQueueRepo(database)

	runners := map[string]schedule.TaskFunc{
		string(entity.TaskNewsProcessing): func(ctx context.Context) error {
			_, err := orch.RunCycle(ctx, false)
			return err
		},
		string(entity.TaskNewsDigest): func(ctx context.Context) error {
			_, err := orch.RunCycle(ctx, true)
			return err
		},
	}

	metrics := schedule.NewMetrics()
	cfg := schedule.LoadConfigFromEnv(logger, metrics)
	return schedule.New(scheduleRepo, queueRepo, runners, cfg, metrics, logger)
}

// buildPublishers assembles the enabled DigestPublisher set from
// TELEGRAM_*/TELEGRAPH_* environment variables, in the same
// validate-then-disable style as the teacher's loadDiscordConfig.
func buildPublishers(logger *slog.Logger) []notifier.DigestPublisher {
	var publishers []notifier.DigestPublisher

	if tg := loadTelegramConfig(logger); tg.Enabled {
		publishers = append(publishers, notifier.NewTelegramPublisher(tg))
	}
	if tp := loadTelegraphConfig(logger); tp.Enabled {
		publishers = append(publishers, notifier.NewTelegraphPublisher(tp))
	}
	return publishers
}

func loadTelegramConfig(logger *slog.Logger) notifier.TelegramConfig {
	enabled := os.Getenv("TELEGRAM_ENABLED") == "true"
	if !enabled {
		return notifier.TelegramConfig{Enabled: false}
	}
	botToken := os.Getenv("TELEGRAM_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID_NEWS")
	if botToken == "" || chatID == "" {
		logger.Warn("Telegram bot token or chat id missing, disabling digest publishing")
		return notifier.TelegramConfig{Enabled: false}
	}
	return notifier.TelegramConfig{
		Enabled:  true,
		BotToken: botToken,
		ChatID:   chatID,
		Timeout:  30 * time.Second,
	}
}

func loadTelegraphConfig(logger *slog.Logger) notifier.TelegraphConfig {
	enabled := os.Getenv("TELEGRAPH_ENABLED") == "true"
	if !enabled {
		return notifier.TelegraphConfig{Enabled: false}
	}
	accessToken := os.Getenv("TELEGRAPH_ACCESS_TOKEN")
	if accessToken == "" {
		logger.Warn("Telegraph access token missing, disabling digest publishing")
		return notifier.TelegraphConfig{Enabled: false}
	}
	authorName := os.Getenv("TELEGRAPH_AUTHOR_NAME")
	if authorName == "" {
		authorName = "pulsefeed"
	}
	return notifier.TelegraphConfig{
		Enabled:     true,
		AccessToken: accessToken,
		AuthorName:  authorName,
		Timeout:     30 * time.Second,
	}
}

func defaultCategoryFromEnv() string {
	if v := os.Getenv("DEFAULT_CATEGORY"); v != "" {
		return v
	}
	return "general"
}

func allowedLanguagesFromEnv() []string {
	v := os.Getenv("ALLOWED_LANGUAGES")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// startMetricsServer exposes Prometheus metrics, replacing the
// notify.Service-dependent channel-health endpoint the teacher's
// metrics server used to serve alongside them.
func startMetricsServer(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := ":" + strconv.Itoa(port)
	logger.Info("metrics server starting", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}

// fetcherAdapter satisfies scraper.Fetcher by delegating to C1's
// httpclient.Fetcher and translating between the two packages' local
// Options/Response shapes, the same decoupling scraper.Fetcher's own
// doc comment calls out.
type fetcherAdapter struct {
	fetcher *httpclient.Fetcher
}

func (a *fetcherAdapter) Fetch(ctx context.Context, rawURL string, opts scraper.FetchOptions) (*scraper.FetchResponse, error) {
	resp, err := a.fetcher.Fetch(ctx, rawURL, httpclient.Options{
		Method:     http.MethodGet,
		AcceptGzip: opts.AcceptGzip,
	})
	if err != nil {
		return nil, err
	}
	return &scraper.FetchResponse{Status: resp.Status, Body: resp.Body}, nil
}
