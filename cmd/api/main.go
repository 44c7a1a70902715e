package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/config"
	"github.com/noah-isme/gema-exam-grader/internal/database"
	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
	"github.com/noah-isme/gema-exam-grader/internal/router"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
	"github.com/noah-isme/gema-exam-grader/pkg/ocr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, using in-process locks and no response cache")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	guideRepo := repository.NewGuideRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	gradingRepo := repository.NewGradingRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	retryPolicy := ai.RetryPolicy{MaxAttempts: cfg.LLMRetries, BaseDelay: cfg.LLMRetryDelay}
	annotators := &annotatorHolder{}

	registry := service.NewServiceRegistry([]service.ServiceInitializer{
		{
			Name: service.ServiceOCR,
			Init: func(ctx context.Context, _ *service.ServiceRegistry) (interface{}, error) {
				extractor, annotator, err := buildExtractor(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				annotators.replace(annotator, logger)
				return extractor, nil
			},
		},
		{
			Name: service.ServiceLLM,
			Init: func(_ context.Context, _ *service.ServiceRegistry) (interface{}, error) {
				return ai.NewLanguageModel(ai.ProviderConfig{
					Provider:        cfg.AIProvider,
					OpenAIAPIKey:    cfg.OpenAIAPIKey,
					OpenAIModel:     cfg.OpenAIModel,
					OpenAIBaseURL:   cfg.OpenAIBaseURL,
					AnthropicAPIKey: cfg.AnthropicAPIKey,
					AnthropicModel:  cfg.AnthropicModel,
					Retry:           retryPolicy,
					Cache:           ai.CachePolicy{TTL: cfg.LLMCacheTTL},
					Timeout:         cfg.LLMTimeout,
				}, redisClient, logger)
			},
		},
		{
			Name: service.ServiceMapping,
			Init: func(_ context.Context, registry *service.ServiceRegistry) (interface{}, error) {
				model, err := languageModel(registry)
				if err != nil {
					return nil, err
				}
				return service.NewAnswerMapper(model, service.MapperConfig{
					UnknownPolicy:   cfg.UnknownPolicy,
					UnknownMaxScore: cfg.UnknownMaxScore,
				}, logger), nil
			},
		},
		{
			Name: service.ServiceGrading,
			Init: func(_ context.Context, registry *service.ServiceRegistry) (interface{}, error) {
				model, err := languageModel(registry)
				if err != nil {
					return nil, err
				}
				return service.NewGradingEngine(model, logger), nil
			},
		},
	}, ai.RetryPolicy{MaxAttempts: cfg.ServiceInitAttempts, BaseDelay: cfg.ServiceInitDelay}, logger)

	initCtx, cancelInit := context.WithTimeout(context.Background(), time.Minute)
	registry.Initialize(initCtx)
	cancelInit()
	defer annotators.replace(nil, logger)

	var locks service.LockManager
	if redisClient != nil {
		locks = service.NewRedisLockManager(redisClient, cfg.LockPrefix, cfg.LockTTL, logger)
	} else {
		locks = service.NewMemoryLockManager()
	}

	activityService := service.NewActivityService(activityRepo, logger)
	events := service.NewEventPublisher(redisClient, cfg.EventChannel, natsConn, logger)

	orchestrator := service.NewProcessingOrchestrator(
		service.ProcessingRepositories{
			Guides:      guideRepo,
			Submissions: submissionRepo,
			Mappings:    mappingRepo,
		},
		service.ProcessingComponents{
			Validator: service.NewMappingValidator(mappingRepo, logger),
			Persister: service.NewResultPersister(gradingRepo, logger),
			Registry:  registry,
		},
		locks,
		activityService,
		events,
		validate,
		service.OrchestratorConfig{EnforceOwnership: cfg.EnforceOwnership},
		logger,
	)
	batchProcessor := service.NewBatchProcessor(orchestrator, cfg.BatchConcurrency, logger)
	queryService := service.NewGradingQueryService(submissionRepo, gradingRepo, mappingRepo, cfg.EnforceOwnership, logger)
	seedService := service.NewSeedService(guideRepo, submissionRepo, cfg.SeedEnabled, cfg.SeedToken, logger)

	gradingHandler := handler.NewGradingHandler(orchestrator, batchProcessor, queryService, activityService, validate, logger)
	healthHandler := handler.NewHealthHandler(registry, cfg.AppName, cfg.AppEnv, logger)
	seedHandler := handler.NewSeedHandler(seedService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    8 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
		HealthHandler:  healthHandler,
		SeedHandler:    seedHandler,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

// buildExtractor assembles the MIME router for the configured OCR provider.
// The returned annotator is non-nil when a Vision client was opened.
func buildExtractor(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ocr.TextExtractor, ocr.Annotator, error) {
	var openAIVision ocr.TextExtractor
	if extractor := ocr.NewOpenAIVisionExtractor(ocr.OpenAIVisionConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIVisionModel,
	}, logger); extractor != nil {
		openAIVision = extractor
	}

	text := ocr.NewPlainTextExtractor()

	switch cfg.OCRProvider {
	case "text":
		return ocr.NewRouter(text, nil, nil, logger), nil, nil
	case "gcp_vision":
		annotator, err := ocr.NewVisionAnnotator(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open vision client: %w", err)
		}
		vision := ocr.NewVisionExtractor(annotator, cfg.OCRTimeout, logger)
		images := ocr.NewFallbackExtractor(logger, vision, openAIVision)
		return ocr.NewRouter(text, images, vision, logger), annotator, nil
	default:
		if openAIVision == nil {
			return nil, nil, fmt.Errorf("openai api key required for the openai ocr provider")
		}
		return ocr.NewRouter(text, openAIVision, nil, logger), nil, nil
	}
}

// annotatorHolder owns the Vision client of the current OCR instance. The OCR
// initializer can rerun on a request goroutine after a restart.
type annotatorHolder struct {
	mu      sync.Mutex
	current ocr.Annotator
}

// replace swaps in next and closes the previous client.
func (h *annotatorHolder) replace(next ocr.Annotator, logger zerolog.Logger) {
	h.mu.Lock()
	previous := h.current
	h.current = next
	h.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close vision client")
		}
	}
}

func languageModel(registry *service.ServiceRegistry) (ai.LanguageModel, error) {
	instance, ok := registry.Instance(service.ServiceLLM)
	if !ok {
		return nil, fmt.Errorf("language model not initialised")
	}
	model, ok := instance.(ai.LanguageModel)
	if !ok {
		return nil, fmt.Errorf("language model has unexpected type %T", instance)
	}
	return model, nil
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
