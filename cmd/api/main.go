package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/config"
	"github.com/noah-isme/autoeval-api/internal/database"
	"github.com/noah-isme/autoeval-api/internal/handler"
	"github.com/noah-isme/autoeval-api/internal/middleware"
	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/repository"
	"github.com/noah-isme/autoeval-api/internal/router"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/pkg/ai"
	"github.com/noah-isme/autoeval-api/pkg/extract"
	"github.com/noah-isme/autoeval-api/pkg/filecodec"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.BatchConcurrency + 20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.Topic{}, &models.Submission{}, &models.Correction{}, &models.CorrectionFailure{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	checks := map[string]handler.DependencyCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	// Redis and NATS are optional; without them grading markers and events are skipped.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	codec := filecodec.New(cfg.EncryptionKey)
	files, err := service.NewFileStore(cfg.UploadDir, codec, cfg.UploadMaxBytes, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	var documents extract.Extractor
	if tika := extract.NewTika(extract.TikaConfig{BaseURL: cfg.ExtractorURL, Timeout: cfg.ExtractorTimeout}); tika != nil {
		documents = tika
	} else {
		logger.Warn().Msg("no extractor url configured; pdf and word submissions cannot be graded")
	}
	extractor := extract.NewRouter(documents)

	generator, err := ai.NewInferenceClient(ai.InferenceConfig{
		Provider:  cfg.InferenceProvider,
		BaseURL:   cfg.InferenceBaseURL,
		APIKey:    cfg.InferenceAPIKey,
		MaxTokens: cfg.InferenceMaxTokens,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create inference client")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	topicRepo := repository.NewTopicRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	correctionRepo := repository.NewCorrectionRepository(db)

	tracker := service.NewGradingTracker(redisClient, cfg.GradingMarkerTTL, logger)
	events := service.NewCorrectionPublisher(natsConn, redisClient, cfg.NATSSubject, logger)

	authService := service.NewAuthService(userRepo, validate, cfg.JWTSecret, cfg.JWTExpiry, logger)
	topicService := service.NewTopicService(topicRepo, files, validate, logger)
	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Submissions: submissionRepo,
		Topics:      topicRepo,
		Users:       userRepo,
		Corrections: correctionRepo,
		Files:       files,
		Tracker:     tracker,
	}, validate, logger)
	correctionService := service.NewCorrectionService(service.CorrectionDependencies{
		Corrections: correctionRepo,
		Submissions: submissionRepo,
		Topics:      topicRepo,
		Files:       files,
		Extractor:   extractor,
		Generator:   generator,
		Tracker:     tracker,
		Events:      events,
	}, service.CorrectionConfig{
		Model:            cfg.InferenceModel,
		Timeout:          cfg.InferenceTimeout,
		BatchConcurrency: cfg.BatchConcurrency,
	}, validate, logger)

	if cfg.AdminEmail != "" {
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := authService.EnsureAdmin(seedCtx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure admin account")
		}
		cancel()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.ClientURL,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(authService, logger),
		TopicHandler:      handler.NewTopicHandler(topicService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		CorrectionHandler: handler.NewCorrectionHandler(correctionService, logger),
		HealthChecks:      checks,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		StaffOnly:         middleware.RequireRole(models.RoleTeacher, models.RoleAdmin),
		AuthLimiter:       middleware.RateLimit("auth", cfg.RateLimitMax, cfg.RateLimitWindow),
		GenerateLimiter:   middleware.RateLimit("generate", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("server listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// In-flight grading runs are bounded by the inference timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
