package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"reelforge-backend/internal/analysis"
	"reelforge-backend/internal/config"
	"reelforge-backend/internal/database"
	"reelforge-backend/internal/handlers"
	"reelforge-backend/internal/llm"
	"reelforge-backend/internal/middleware"
	"reelforge-backend/internal/orchestrator"
	"reelforge-backend/internal/planchat"
	"reelforge-backend/internal/providers"
	"reelforge-backend/internal/storage"
	"reelforge-backend/internal/store"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Project store: PostgreSQL when DATABASE_URL is set, otherwise an
	// in-memory store that does not survive restarts.
	var projectStore store.ProjectStore
	if cfg.DatabaseURL != "" {
		migrator, err := database.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize migrator: %v", err)
		}
		if err := migrator.Run(); err != nil {
			migrator.Close()
			log.Fatalf("Migration failed: %v", err)
		}
		migrator.Close()

		dbClient, err := database.NewClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize database client: %v", err)
		}
		defer dbClient.Close()
		projectStore = dbClient
		logger.Info("using postgresql project store")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory project store")
		projectStore = store.NewMemoryStore()
	}

	objects, err := storage.NewR2Store(storage.R2Config{
		Endpoint:  cfg.R2Endpoint,
		AccessKey: cfg.R2AccessKey,
		SecretKey: cfg.R2SecretKey,
		Bucket:    cfg.R2Bucket,
		UseSSL:    cfg.R2UseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Gemini backs analysis, plan chat and the Veo providers. Missing key
	// means those features report themselves unavailable.
	var analysisLLM, chatLLM *llm.GeminiClient
	var geminiRaw *genai.Client
	if cfg.GeminiAPIKey != "" {
		analysisLLM, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.AnalysisModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini analysis client: %v", err)
		}
		chatLLM, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ChatModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini chat client: %v", err)
		}
		geminiRaw = analysisLLM.Raw()
	} else {
		logger.Warn("GEMINI_API_KEY not set, analysis, chat and veo providers disabled")
	}

	var analyzer *analysis.Analyzer
	var mutator *planchat.Mutator
	if analysisLLM != nil {
		analyzer = analysis.New(analysisLLM)
		mutator = planchat.New(chatLLM)
	}

	// All providers are always registered; availability is decided by
	// their credentials.
	registry, err := providers.NewRegistry([]providers.Adapter{
		providers.NewRunwayClient("runway-gen4", "gen4_turbo", cfg.RunwayAPIBaseURL, cfg.RunwayAPIKey),
		providers.NewRunwayClient("runway-gen3", "gen3a_turbo", cfg.RunwayAPIBaseURL, cfg.RunwayAPIKey),
		providers.NewVeoClient("veo-3", "veo-3.0-generate-preview", geminiRaw),
		providers.NewVeoClient("veo-2", "veo-2.0-generate-001", geminiRaw),
	}, cfg.FallbackOrder)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	orch := orchestrator.New(projectStore, registry, orchestrator.Config{
		Backoff: orchestrator.BackoffPolicy{
			Initial:    cfg.PollInitialInterval,
			Multiplier: cfg.PollMultiplier,
			Cap:        cfg.PollMaxInterval,
		},
		MaxTransientRetries: cfg.MaxTransientRetries,
		MaxJobStall:         cfg.MaxJobStall,
	}, nil, logger, objects)
	defer orch.Stop()

	// Pick up generation jobs left running by a previous process.
	if err := orch.Reattach(ctx); err != nil {
		logger.Error("failed to re-attach generation jobs", "error", err)
	}

	locks := orch.Locks()
	healthHandler := handlers.NewHealthHandler()
	projectsHandler := handlers.NewProjectsHandler(projectStore, objects)
	uploadHandler := handlers.NewUploadHandler(projectStore, objects, locks)
	analyzeHandler := handlers.NewAnalyzeHandler(projectStore, analyzer, locks)
	chatHandler := handlers.NewChatHandler(projectStore, mutator, locks)
	generateHandler := handlers.NewGenerateHandler(projectStore, orch)
	statusHandler := handlers.NewStatusHandler(projectStore)
	downloadHandler := handlers.NewDownloadHandler(projectStore, objects)
	webhookHandler := handlers.NewWebhookHandler(projectStore, orch, cfg.WebhookToken)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check (no auth)
	router.GET("/health", healthHandler.Health)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	api.POST("/projects", projectsHandler.CreateProject)
	api.GET("/projects", projectsHandler.ListProjects)
	api.GET("/projects/:project_id", projectsHandler.GetProject)
	api.DELETE("/projects/:project_id", projectsHandler.DeleteProject)

	api.POST("/projects/:project_id/upload/:kind", uploadHandler.Upload)
	api.POST("/projects/:project_id/analyze", analyzeHandler.Analyze)
	api.POST("/projects/:project_id/chat", chatHandler.Chat)
	api.POST("/projects/:project_id/generate", generateHandler.Generate)

	api.GET("/projects/:project_id/status", statusHandler.GetStatus)
	api.GET("/projects/:project_id/result", downloadHandler.GetResult)

	// Webhook (no auth middleware, uses its own shared token)
	router.POST("/api/v1/webhooks/generation", webhookHandler.HandleGeneration)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	logger.Info("server starting", "port", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
