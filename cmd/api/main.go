package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/api/handlers"
	rediscache "github.com/civic-agent/backend/internal/cache/redis"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/escalation"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/improve"
	"github.com/civic-agent/backend/internal/kg"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/metrics"
	"github.com/civic-agent/backend/internal/middleware/ratelimit"
	"github.com/civic-agent/backend/internal/middleware/security"
	"github.com/civic-agent/backend/internal/middleware/validation"
	"github.com/civic-agent/backend/internal/pipeline"
	"github.com/civic-agent/backend/internal/regression"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/internal/retrieval/web"
	"github.com/civic-agent/backend/internal/routing"
	"github.com/civic-agent/backend/internal/storage/sqlite"
	"github.com/civic-agent/backend/pkg/config"
	appLogger "github.com/civic-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Civic Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *rediscache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embeddings will not be cached", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	var regulations answer.RegulationLookup
	if cfg.Neo4j.Enabled {
		kgClient, err := kg.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, regulation tagging disabled", zap.Error(err))
		} else {
			defer kgClient.Close(context.Background())
			regulations = kgClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	milvusRetriever, err := retrieval.NewMilvusRetriever(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
		llmClient,
		cacheClient,
	)
	if err != nil {
		appLogger.Fatal("Failed to create vector retriever", zap.Error(err))
	}
	defer milvusRetriever.Close()

	err = milvusRetriever.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Warn("Vector collection unavailable, retrieval degraded", zap.Error(err))
	}

	var retriever retrieval.Retriever = milvusRetriever
	if cfg.WebSearch.Enabled {
		retriever = retrieval.WithFallback(milvusRetriever, web.NewClient(cfg.WebSearch.PortalURL, cfg.WebSearch.TimeoutSec))
	}

	configStore := configstore.New(cfg.Pipeline, sqliteClient)
	classifier := routing.NewClassifier()
	generator := answer.NewGenerator(llmClient, regulations)
	evaluator := evaluation.NewEvaluator(llmClient, configStore)
	improver := improve.NewImprover(llmClient, evaluator, configStore)
	gate := escalation.NewGate(configStore)
	queue := escalation.NewQueue(sqliteClient)

	orchestrator := pipeline.NewOrchestrator(
		classifier,
		retriever,
		generator,
		evaluator,
		improver,
		gate,
		queue,
		configStore,
		sqliteClient,
	)

	goldens := regression.NewGoldens(sqliteClient)
	harness := regression.NewHarness(goldens, func(ctx context.Context, question string) (string, error) {
		response, err := orchestrator.Process(ctx, question)
		if err != nil {
			return "", err
		}
		return response.Answer, nil
	}, configStore)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(30)
	defer limiter.Stop()

	askHandler := handlers.NewAskHandler(orchestrator, queue, goldens, harness)
	streamHandler := handlers.NewStreamHandler(orchestrator)
	configHandler := handlers.NewConfigHandler(configStore)
	reviewHandler := handlers.NewReviewHandler(queue, goldens)
	regressionHandler := handlers.NewRegressionHandler(harness, goldens)

	api := app.Group("/api/v1")

	api.Post("/ask", limiter.Middleware(), validation.Middleware(validation.Config{}), askHandler.HandleAsk)
	api.Get("/stats", askHandler.GetStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/ask", websocket.New(streamHandler.HandleConnection))

	admin := api.Group("/admin")
	admin.Get("/config", configHandler.GetConfig)
	admin.Put("/config/:key", configHandler.UpdateConfig)
	admin.Delete("/config/:key", configHandler.ResetConfig)
	admin.Delete("/config", configHandler.ResetAllConfig)
	admin.Get("/config-audit", configHandler.GetAudit)

	admin.Get("/reviews", reviewHandler.ListPending)
	admin.Get("/reviews/:id", reviewHandler.GetReview)
	admin.Post("/reviews/:id/approve", reviewHandler.Approve)
	admin.Post("/reviews/:id/reject", reviewHandler.Reject)
	admin.Post("/reviews/:id/correct", reviewHandler.Correct)
	admin.Post("/reviews/:id/promote", reviewHandler.Promote)

	admin.Get("/goldens", regressionHandler.ListGoldens)
	admin.Post("/goldens", regressionHandler.AddGolden)
	admin.Delete("/goldens/:id", regressionHandler.DeactivateGolden)
	admin.Post("/regression/run", regressionHandler.RunRegression)
	admin.Get("/regression/last", regressionHandler.LastResult)

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if !retriever.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "retriever not ready",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
