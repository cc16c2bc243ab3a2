package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homeonmap/backend/internal/auth"
	"github.com/homeonmap/backend/internal/authz"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/config"
	"github.com/homeonmap/backend/internal/enhance"
	"github.com/homeonmap/backend/internal/listing"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/server"
	"github.com/homeonmap/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("postgres connect")
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("postgres migrate")
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logging.Fatal().Err(err).Msg("mongo connect")
	}
	defer mongoClient.Disconnect(ctx)
	events := store.NewMongoEventStore(mongoClient.Database(cfg.MongoDB))

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, store.RedisOptions{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("redis connect")
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)
	intents := auth.NewIntentStore(rdb)

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL,
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("minio connect")
	}

	// ── OIDC ─────────────────────────────────────────────────
	provider, err := auth.NewOIDCProvider(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
	if err != nil {
		logging.Fatal().Err(err).Str("issuer", cfg.OIDCIssuer).Msg("oidc discovery")
	}

	// ── Policy ───────────────────────────────────────────────
	enforcer, err := authz.NewEnforcer(cfg.AdminEmails)
	if err != nil {
		logging.Fatal().Err(err).Msg("casbin enforcer")
	}

	// ── Handlers ─────────────────────────────────────────────
	repo := listing.NewRepository(pgStore, enforcer,
		listing.WithQuota(cfg.ListingQuota),
		listing.WithEventLog(events),
		listing.WithBlobRemover(minioStore),
	)
	handlers := server.Handlers{
		Auth:     auth.NewHandler(provider, pgStore, sessions, intents, cfg.CookieSecure),
		Listings: listing.NewHandler(repo, blob.NewUploader(minioStore), events, enforcer),
		Enhance:  enhance.NewHandler(enhance.NewClient(cfg.AIServiceURL, nil, enhance.BreakerSettings{})),
	}

	// ── Router ───────────────────────────────────────────────
	r := server.NewRouter(handlers, server.Options{
		Sessions:       sessions,
		AllowedOrigins: cfg.AllowedOrigins,
		WriteLimit:     30,
		WriteWindow:    time.Minute,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
	}

	go func() {
		logging.Info().Str("port", cfg.Port).Msg("backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown")
	}
}
