package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/verdantcare/verdant-backend/internal/clients/gcs"
	"github.com/verdantcare/verdant-backend/internal/clients/openai"
	redisclient "github.com/verdantcare/verdant-backend/internal/clients/redis"
	"github.com/verdantcare/verdant-backend/internal/db"
	httpH "github.com/verdantcare/verdant-backend/internal/http/handlers"
	httpMW "github.com/verdantcare/verdant-backend/internal/http/middleware"
	"github.com/verdantcare/verdant-backend/internal/observability"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
	"github.com/verdantcare/verdant-backend/internal/server"
	"github.com/verdantcare/verdant-backend/internal/services"
)

const serviceName = "verdant-backend"

func main() {
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

	ctx := context.Background()
	if shutdown := observability.InitTracing(ctx, log, serviceName); shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("trace shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	threadRepo := repos.NewThreadRepo(thePG, log)
	profileRepo := repos.NewProfileRepo(thePG, log)
	orgRepo := repos.NewOrgRepo(thePG, log)
	patientRepo := repos.NewPatientRepo(thePG, log)
	encounterRepo := repos.NewEncounterRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	sessionStore, err := redisclient.NewSessionStore(log)
	if err != nil {
		log.Warn("Could not init SessionStore, soft memory disabled", "error", err)
		sessionStore = nil
	} else {
		defer sessionStore.Close()
	}
	bucketService, err := gcs.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService, upload archiving disabled", "error", err)
		bucketService = nil
	}
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAIClient", "error", err)
	}

	// Services
	log.Info("Setting up Services from main...")
	profileService := services.NewProfileService(log, profileRepo)
	threadService := services.NewThreadService(log, threadRepo)
	summarizer := services.NewFileSummarizer(log, openaiClient, bucketService)
	completionDriver := services.NewCompletionDriver(log, openaiClient)
	chatService := services.NewChatService(log, sessionStore, profileService, threadService, summarizer, completionDriver)
	authService := services.NewAuthService(log, thePG, userRepo, userTokenRepo, profileService)
	kioskService, err := services.NewKioskTokenService(log)
	if err != nil {
		log.Fatal("Could not init KioskTokenService", "error", err)
	}
	triageService, err := services.NewTriageService(log, openaiClient, orgRepo, patientRepo, encounterRepo)
	if err != nil {
		log.Fatal("Could not init TriageService", "error", err)
	}
	encounterService := services.NewEncounterService(log, orgRepo, encounterRepo)

	// Handlers
	log.Info("Setting up Handlers from main...")
	authHandler := httpH.NewAuthHandler(log, authService)
	chatHandler := httpH.NewChatHandler(log, chatService)
	triageHandler := httpH.NewTriageHandler(log, triageService, kioskService)
	portalHandler := httpH.NewPortalHandler(log, encounterService, kioskService)

	authMiddleware := httpMW.NewAuthMiddleware(log, authService)

	router := server.NewRouter(server.RouterConfig{
		Log:            log,
		AuthMiddleware: authMiddleware,
		AuthHandler:    authHandler,
		ChatHandler:    chatHandler,
		TriageHandler:  triageHandler,
		PortalHandler:  portalHandler,
		ServiceName:    serviceName,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
