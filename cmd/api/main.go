package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/likhity/photohunter-backend/internal/ai"
	"github.com/likhity/photohunter-backend/internal/config"
	"github.com/likhity/photohunter-backend/internal/database"
	"github.com/likhity/photohunter-backend/internal/handlers"
	"github.com/likhity/photohunter-backend/internal/leaderboard"
	"github.com/likhity/photohunter-backend/internal/middleware"
	"github.com/likhity/photohunter-backend/internal/storage"
	"github.com/likhity/photohunter-backend/internal/submission"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to the database")
	}

	ctx := context.Background()

	var gateway *storage.S3Gateway
	if cfg.S3Enabled() {
		gateway, err = storage.NewS3Gateway(ctx, cfg.S3, log.With().Str("component", "storage").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize object store gateway")
		}
	} else {
		log.Warn().Msg("no S3 bucket configured, all media goes to local storage")
	}
	local := storage.NewLocalStore(cfg.Media, log.With().Str("component", "storage").Logger())

	if cfg.Gemini.APIKey == "" {
		log.Fatal().Msg("Gemini API key not found in config")
	}
	comparator, err := ai.NewService(ctx, cfg.Gemini)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize AI comparator")
	}

	var board *leaderboard.Board
	if cfg.Redis.Addr != "" {
		board = leaderboard.New(cfg.Redis, log.With().Str("component", "leaderboard").Logger())
	}

	var store submission.Gateway
	if gateway != nil {
		store = gateway
	}
	var counter submission.Counter
	if board != nil {
		counter = board
	}
	orchestrator := submission.New(
		db, store, local, comparator, counter,
		cfg.Server.BaseURL, cfg.Submission.PresignTTL,
		log.With().Str("component", "submission").Logger(),
	)

	var blobStore handlers.BlobStore
	if gateway != nil {
		blobStore = gateway
	}
	h := handlers.New(db, orchestrator, blobStore, local, board, cfg, log.With().Str("component", "handlers").Logger())

	limiter := middleware.NewSubmissionLimiter(cfg.Submission.RatePerMin, cfg.Submission.Burst)

	router := gin.Default()
	router.Static(cfg.Media.URLPrefix, cfg.Media.Root)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.RegisterHandler)
		v1.POST("/auth/login", h.LoginHandler)
		v1.POST("/auth/google", h.GoogleAuthHandler)

		authorized := v1.Group("/")
		authorized.Use(middleware.JWTMiddleware(cfg.Auth.JWTSecret))
		{
			authorized.GET("/challenges", h.ListChallengesHandler)
			authorized.POST("/challenges", h.CreateChallengeHandler)
			authorized.GET("/challenges/nearby", h.NearbyChallengesHandler)
			authorized.GET("/challenges/my", h.MyChallengesHandler)
			authorized.GET("/challenges/:id", h.ChallengeDetailHandler)
			authorized.PUT("/challenges/:id", h.UpdateChallengeHandler)
			authorized.DELETE("/challenges/:id", h.DeleteChallengeHandler)
			authorized.GET("/challenges/:id/download", h.DownloadReferenceImageHandler)

			authorized.POST("/photos/submit", limiter.Middleware(), h.SubmitPhotoHandler)

			authorized.GET("/completions", h.CompletionsHandler)
			authorized.GET("/profile", h.ProfileHandler)
			authorized.PUT("/profile", h.UpdateProfileHandler)
			authorized.GET("/leaderboard", h.LeaderboardHandler)
		}
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
