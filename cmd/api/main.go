package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mobilia/backoffice/internal/di"
	"github.com/mobilia/backoffice/internal/handlers"
	"github.com/mobilia/backoffice/internal/platform/auth"
	"github.com/mobilia/backoffice/internal/platform/config"
	pfirestore "github.com/mobilia/backoffice/internal/platform/firestore"
	"github.com/mobilia/backoffice/internal/platform/idempotency"
	"github.com/mobilia/backoffice/internal/platform/jobs"
	"github.com/mobilia/backoffice/internal/platform/observability"
	"github.com/mobilia/backoffice/internal/platform/secrets"
	platformstorage "github.com/mobilia/backoffice/internal/platform/storage"
	"github.com/mobilia/backoffice/internal/repositories"
	"github.com/mobilia/backoffice/internal/repositories/cache"
	firestoreRepo "github.com/mobilia/backoffice/internal/repositories/firestore"
	"github.com/mobilia/backoffice/internal/services"
)

const (
	idempotencyCollection = "idempotencyKeys"
	uploadCacheControl    = "public, max-age=31536000, immutable"
	shutdownTimeout       = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	bootLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	fetcher := newSecretFetcher(ctx, bootLogger)
	loadOpts := []config.Option{}
	if fetcher != nil {
		loadOpts = append(loadOpts, config.WithSecretResolver(fetcher))
		defer func() {
			if err := fetcher.Close(); err != nil {
				bootLogger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			bootLogger.Fatal("invalid configuration", zap.Strings("fields", verr.Fields()))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := observability.NewLogger(cfg.Server.LogLevel)
	if err != nil {
		bootLogger.Fatal("failed to initialise logger", zap.Error(err))
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)
	metrics := observability.NewMetrics()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(cfg.Firestore.DialTimeout))
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var googleOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		googleOpts = append(googleOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	gcsClient, err := cloudstorage.NewClient(ctx, googleOpts...)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	objects, err := platformstorage.NewClient(gcsClient, cfg.Storage.UploadsBucket,
		platformstorage.WithPublicBaseURL(cfg.Storage.PublicBaseURL),
		platformstorage.WithCacheControl(uploadCacheControl),
	)
	if err != nil {
		logger.Fatal("failed to initialise upload storage", zap.Error(err))
	}

	registryOpts := []firestoreRepo.RegistryOption{
		firestoreRepo.WithCloser(gcsClient.Close),
	}

	var publisher services.SpecialProductEventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.SpecialProductTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, googleOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicName)
		pub, err := jobs.NewPubSubSpecialProductPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise special product publisher", zap.Error(err))
		}
		publisher = pub
		registryOpts = append(registryOpts, firestoreRepo.WithCloser(func() error {
			topic.Stop()
			return pubsubClient.Close()
		}))
	} else {
		logger.Info("special product events disabled; no pubsub topic configured")
	}

	if addr := strings.TrimSpace(cfg.Cache.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		cacheLogger := observability.EventLogger(logger.Named("cache"))
		registryOpts = append(registryOpts,
			firestoreRepo.WithProductDecorator(func(inner repositories.ProductRepository) (repositories.ProductRepository, error) {
				return cache.NewProductCache(inner, rdb,
					cache.WithTTL(cfg.Cache.ProductTTL),
					cache.WithLogger(cacheLogger),
				)
			}),
			firestoreRepo.WithHealthChecks(repositories.DependencyCheck{
				Name:    "redis",
				Timeout: time.Second,
				Check: func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				},
			}),
			firestoreRepo.WithCloser(rdb.Close),
		)
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, registry, di.Infrastructure{
		Objects:   objects,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    observability.EventLogger(logger.Named("services")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithRoleClaim(cfg.Security.RoleClaim),
		auth.WithDefaultRoles(cfg.Security.AdminRoles...),
	)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient, idempotencyCollection)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		idempotency.NewJanitor(idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency")).Run(janitorCtx)
	}()

	productHandlers := handlers.NewProductHandlers(authenticator, container.Services.Catalog)
	specialProductHandlers := handlers.NewSpecialProductHandlers(authenticator, container.Services.SpecialProducts,
		handlers.WithCreateMiddlewares(idempotencyMiddleware),
	)
	uploadHandlers := handlers.NewUploadHandlers(authenticator, container.Services.Uploads,
		handlers.WithUploadMaxBytes(cfg.Storage.MaxUploadBytes),
		handlers.WithUploadRateLimit(cfg.Storage.UploadRateLimit, cfg.Storage.UploadRateWindow, time.Now),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg)),
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithHealthRepository(registry.Health()),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(metrics),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithSpecialProductRoutes(specialProductHandlers.Routes),
		handlers.WithUploadRoutes(uploadHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("back office api listening", zap.String("environment", cfg.Security.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJanitor()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("resource close error", zap.Error(err))
	}
}

// newSecretFetcher returns nil when Secret Manager is not reachable, in which case secret references in
// the configuration fail to resolve.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) *secrets.Fetcher {
	project := strings.TrimSpace(os.Getenv("API_SECRET_PROJECT_ID"))
	if project == "" {
		project = strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID"))
	}
	if project == "" {
		return nil
	}
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if file := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); file != "" && !strings.Contains(file, "://") {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	fetcher, err := secrets.NewFetcher(ctx, project, opts...)
	if err != nil {
		logger.Warn("secret manager unavailable", zap.Error(err))
		return nil
	}
	return fetcher
}

func buildInfoFromEnv(cfg config.Config) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
