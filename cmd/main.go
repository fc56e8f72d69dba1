package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/manuscript-backend/internal/db"
	"github.com/yungbote/manuscript-backend/internal/handlers"
	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/middleware"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/server"
	"github.com/yungbote/manuscript-backend/internal/services"
	"github.com/yungbote/manuscript-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	baseModelRef := utils.GetEnv("BASE_MODEL_REF", "models/base/latest", log)
	trainWorkerCount := utils.GetEnvAsInt("TRAIN_WORKER_COUNT", 2, log)
	trainJobTimeout := utils.GetEnvAsInt("TRAIN_JOB_TIMEOUT_SECONDS", 1800, log)
	minFeedback := utils.GetEnvAsInt("MIN_FEEDBACK_FOR_TRAINING", 5, log)
	maxImageSizeMB := utils.GetEnvAsInt("MAX_IMAGE_SIZE_MB", 10, log)
	autoTrain := utils.GetEnv("AUTO_TRAIN_ENABLED", "true", log) == "true"

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Redis (optional, serving continues without the cache)
	redisClient, err := db.NewRedisClient(log)
	if err != nil {
		log.Warn("Redis init failed, active-model caching disabled", "error", err)
		redisClient = nil
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	projectRepo := repos.NewProjectRepo(thePG, log)
	permissionRepo := repos.NewProjectPermissionRepo(thePG, log)
	pageImageRepo := repos.NewPageImageRepo(thePG, log)
	modelVersionRepo := repos.NewModelVersionRepo(thePG, log)
	feedbackRepo := repos.NewFeedbackRepo(thePG, log)
	trainingJobRepo := repos.NewTrainingJobRepo(thePG, log)
	recognitionRepo := repos.NewRecognitionRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	avatarService, err := services.NewAvatarService(log, bucketService)
	if err != nil {
		log.Warn("Could not init AvatarService, registration proceeds without avatars", "error", err)
		avatarService = nil
	}

	var recognitionEngine services.RecognitionEngine
	var trainingEngine services.TrainingEngine
	if os.Getenv("TRAINER_BASE_URL") != "" {
		engineClient, ecErr := services.NewEngineClientFromEnv(log)
		if ecErr != nil {
			log.Error("Could not init EngineClient", "error", ecErr)
			os.Exit(1)
		}
		recognitionEngine = engineClient
		trainingEngine = engineClient
	} else {
		log.Info("TRAINER_BASE_URL unset, using Vision OCR engine (base model only)")
		visionEngine, veErr := services.NewVisionEngine(log, baseModelRef)
		if veErr != nil {
			log.Error("Could not init Vision engine", "error", veErr)
			os.Exit(1)
		}
		recognitionEngine = visionEngine
	}

	permissionService := services.NewPermissionService(thePG, log, permissionRepo, projectRepo)
	registryService := services.NewModelRegistryService(thePG, log, modelVersionRepo, bucketService, redisClient, baseModelRef)
	corpusService := services.NewFeedbackCorpusService(thePG, log, feedbackRepo, recognitionRepo, permissionService)
	trainingService := services.NewTrainingService(
		thePG,
		log,
		trainingJobRepo,
		pageImageRepo,
		corpusService,
		registryService,
		trainingEngine,
		services.TrainingServiceOptions{
			MinFeedback: minFeedback,
			JobTimeout:  time.Duration(trainJobTimeout) * time.Second,
		},
	)
	recognitionService := services.NewRecognitionService(thePG, log, recognitionRepo, pageImageRepo, permissionService, registryService, bucketService, recognitionEngine)
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, avatarService, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	userService := services.NewUserService(thePG, log, userRepo)
	projectService := services.NewProjectService(thePG, log, projectRepo, permissionRepo, userRepo, permissionService)
	uploadService := services.NewUploadService(thePG, log, pageImageRepo, permissionService, bucketService, maxImageSizeMB)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if trainingEngine != nil {
		trainingService.StartWorkers(rootCtx, trainWorkerCount)
	} else {
		log.Warn("No training engine configured, training workers not started")
		autoTrain = false
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	pageHandler := handlers.NewPageHandler(uploadService)
	recognitionHandler := handlers.NewRecognitionHandler(recognitionService)
	feedbackHandler := handlers.NewFeedbackHandler(corpusService, trainingService, autoTrain)
	trainingHandler := handlers.NewTrainingHandler(trainingService)
	modelHandler := handlers.NewModelHandler(registryService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		UserHandler:        userHandler,
		ProjectHandler:     projectHandler,
		PageHandler:        pageHandler,
		RecognitionHandler: recognitionHandler,
		FeedbackHandler:    feedbackHandler,
		TrainingHandler:    trainingHandler,
		ModelHandler:       modelHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}
	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", "error", err)
	}
	if err := trainingService.Shutdown(shutdownCtx); err != nil {
		log.Warn("Training worker shutdown error", "error", err)
	}
	log.Info("Shutdown complete")
}
