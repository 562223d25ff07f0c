package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/cache"
	"github.com/GTDGit/marketplace_api/internal/config"
	"github.com/GTDGit/marketplace_api/internal/database"
	"github.com/GTDGit/marketplace_api/internal/handler"
	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/sse"
	"github.com/GTDGit/marketplace_api/internal/storage"
	"github.com/GTDGit/marketplace_api/internal/utils"
	"github.com/GTDGit/marketplace_api/internal/worker"
)

// main is the application entrypoint for the marketplace API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting marketplace api")
	utils.SetJWTSecret(cfg.JWTSecret, cfg.JWTTTL)

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.Migrate(db.DB, "migrations"); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	idempotency := cache.NewIdempotencyCache(redisClient, cfg.Idempotency.TTL)
	balances := cache.NewBalanceCache(redisClient, cfg.Idempotency.BalanceTTL)

	// 4. Payment proof storage
	var proofs service.ProofStorage
	var s3Ping handler.Pinger
	if cfg.S3.Enabled() {
		s3Store, err := storage.NewS3Storage(context.Background(), &cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 storage initialization failed - payment proof upload will be disabled")
		} else {
			proofs = s3Store
			s3Ping = s3Store
		}
	} else {
		log.Warn().Msg("S3_BUCKET not set - payment proof upload is disabled")
	}

	// 5. Store and notifications
	store := repository.NewSQLStore(db)
	hub := sse.NewHub()
	enqueuer := notify.NewEnqueuer(&cfg.Redis, cfg.Notify)
	defer enqueuer.Close()
	processor := notify.NewProcessor(&cfg.Redis, cfg.Notify, sse.NewHubNotifier(hub), store.Repos().Users)

	// 6. Initialize services
	ledgerSvc := service.NewLedgerService(store, balances)
	entitlementSvc := service.NewEntitlementService(store)
	requestSvc := service.NewRequestService(store, entitlementSvc, ledgerSvc, enqueuer, idempotency)
	subscriptionSvc := service.NewSubscriptionService(store, ledgerSvc, balances)
	paymentSvc := service.NewPaymentService(store, ledgerSvc, proofs, enqueuer, cfg.S3.MaxProofBytes)
	catalogSvc := service.NewCatalogService(store)
	authSvc := service.NewAuthService(store, subscriptionSvc)

	if cfg.Admin.Email != "" {
		if err := authSvc.EnsureAdmin(context.Background(), cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
			log.Error().Err(err).Msg("bootstrap admin failed")
		}
	}

	// 7. Initialize handlers
	handlers := &handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Catalog:      handler.NewCatalogHandler(catalogSvc),
		Request:      handler.NewRequestHandler(requestSvc),
		Subscription: handler.NewSubscriptionHandler(subscriptionSvc, paymentSvc),
		Payment:      handler.NewPaymentHandler(paymentSvc),
		SSE:          handler.NewSSEHandler(hub),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
			"redis":    redisClient,
			"s3":       s3Ping,
		}),
	}

	// 8. Initialize middleware
	jwtMw := middleware.NewJWTMiddleware()
	loginLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.LoginPerMinute)

	// 9. Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSHosts))
	router.Use(middleware.LoggingMiddleware())
	router.MaxMultipartMemory = cfg.S3.MaxProofBytes
	handler.SetupRoutes(router, handlers, jwtMw, loginLimiter)

	// 10. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 11. Start workers
	go loginLimiter.Start(ctx)
	go processor.Start(ctx)
	go worker.NewSubscriptionExpiryWorker(store.Repos().Subscriptions, cfg.Worker.ExpiryInterval).Start(ctx)
	go worker.NewStaleRequestWorker(requestSvc, cfg.Worker.StaleInterval, cfg.Worker.StaleRequestAfter).Start(ctx)

	// 12. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 13. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 14. Cancel context to stop workers
	cancel()

	// 15. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
