package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"meddoc-assistant/internal/chat"
	"meddoc-assistant/internal/config"
	"meddoc-assistant/internal/domain/ports/adapter"
	aiAdapters "meddoc-assistant/internal/infra/adapters/ai"
	"meddoc-assistant/internal/infra/api"
	pg "meddoc-assistant/internal/infra/db/postgres"
	"meddoc-assistant/internal/infra/logging"
	"meddoc-assistant/internal/infra/markdown"
	"meddoc-assistant/internal/infra/metrics"
	red "meddoc-assistant/internal/infra/redis"
	"meddoc-assistant/internal/infra/sched"
	"meddoc-assistant/internal/infra/security"
	"meddoc-assistant/internal/infra/worker"
	"meddoc-assistant/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	patientRepo := pg.NewPatientRepo(pool)
	sessionRepo := pg.NewChatSessionRepo(pool)
	historyRepo := pg.NewChatHistoryRepo(pool, encSvc)
	documentRepo := pg.NewDocumentRepo(pool)

	// ---- In-memory chat state ----
	contexts := chat.NewRegistry()
	store := chat.NewMessageStore()

	// ---- AI streamer ----
	var ai adapter.AssistantStreamer
	switch cfg.AI.Provider {
	case "backend":
		ai, err = aiAdapters.NewBackendSSEAdapter(cfg.AI.BackendURL, cfg.AI.BackendKey)
	case "openai":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
	case "gemini":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutTokens)
	case "noop":
		ai = aiAdapters.NewNoopAdapter()
	default:
		logger.Fatal().Str("provider", cfg.AI.Provider).Msg("unknown ai.provider")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("ai adapter")
	}
	logger.Info().
		Str("provider", ai.Name()).
		Str("backend_key", logging.Redact(cfg.AI.BackendKey, cfg.Runtime.Dev)).
		Msg("assistant streamer ready")

	// ---- Background workers ----
	jobPool := worker.NewPool(cfg.Storage.ExtractWorkers, logger)
	jobPool.Start(ctx)
	defer jobPool.Stop()

	// ---- Use cases ----
	patientUC := usecase.NewPatientUseCase(patientRepo)
	sessionUC := usecase.NewSessionUseCase(contexts, store, sessionRepo, patientRepo, historyRepo, sessionCache, locker, cfg.Chat.HistoryLimit, logger)
	chatUC := usecase.NewChatUseCase(contexts, store, ai, historyRepo, rateLimiter, cfg.AI.TurnTimeout, cfg.Chat.RateLimitPerMin, logger)
	documentUC := usecase.NewDocumentUseCase(documentRepo, patientRepo, jobPool, cfg.Storage.UploadDir, cfg.Storage.MaxUploadMB, logger)

	// ---- Retention worker ----
	retention := sched.NewRetentionWorker(6*time.Hour, cfg.Chat.RetentionDays, historyRepo, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP server ----
	authMgr := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Secure, cfg.Auth.Domain, cfg.Auth.SessionTTL)
	srv := api.NewServer(
		":"+strconv.Itoa(cfg.Server.Port),
		authMgr,
		cfg.Auth.AdminKey,
		patientUC,
		sessionUC,
		chatUC,
		documentUC,
		markdown.NewRenderer(),
		cfg.Storage.MaxUploadMB*1024*1024,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
