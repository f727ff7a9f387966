package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-issue-service/internal/api/http"
	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/blob"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/persistence"
	"github.com/spec-kit/civic-issue-service/internal/ratelimit"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	checks := []handlers.HealthCheck{store.health}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		redis, err := persistence.NewRedis(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to configure redis", zap.Error(err))
		}
		defer redis.Close()
		limiter = ratelimit.NewRedisLimiter(redis.Client, "civic:submissions", cfg.RateLimit.Submissions, cfg.RateLimit.Window())
		checks = append(checks, handlers.HealthCheck{Name: "redis", Ping: redis.Ping})
	} else {
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimit.Submissions, cfg.RateLimit.Window())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var forwarder *events.KafkaForwarder
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := events.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("failed to create kafka client", zap.Error(err))
		}
		defer client.Close()
		forwarder = events.NewKafkaForwarder(client, cfg.Kafka.Topic, logger)
		checks = append(checks, handlers.HealthCheck{Name: "kafka", Ping: client.Ping})
	}
	worker.StartNotificationWorker(dispatcher, service.NewNotificationService(dispatcher, logger, metrics), forwarder)

	blobs, err := blob.NewLocalStore(cfg.Blob.UploadDir, cfg.Blob.MaxBytes)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	identityService := service.NewIdentityService(service.IdentityDependencies{
		UserRepo: store.users,
		Logger:   logger,
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  store.issues,
		UserRepo:   store.users,
		Handles:    identityService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	votingService := service.NewVotingService(service.VotingDependencies{
		IssueRepo:  store.issues,
		UserRepo:   store.users,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTL())
	authService, err := service.NewAuthService(cfg.Auth, identityService, tokens)
	if err != nil {
		logger.Fatal("failed to init auth", zap.Error(err))
	}
	if cfg.Auth.ModeratorPassword == "" {
		logger.Warn("AUTH_MODERATOR_PASSWORD not set; moderator login disabled")
	}

	app := httptransport.NewApp(cfg.App)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Issues:         handlers.NewIssuesHandler(issueService, votingService, blobs, logger),
		Users:          handlers.NewUsersHandler(authService),
		Moderators:     handlers.NewModeratorsHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.users),
		SubmitLimiter:  limiter,
		Metrics:        metrics,
		UploadDir:      blobs.Dir(),
		UploadPrefix:   blobs.Prefix(),
		Logger:         logger,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("storage", cfg.Storage.Backend))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

type storage struct {
	issues repository.IssueRepository
	users  repository.UserRepository
	health handlers.HealthCheck
	close  func()
}

func (s storage) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return storage{}, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return storage{}, err
			}
		}
		pool := pg.PoolHandle()
		return storage{
			issues: repository.NewIssueRepository(pool),
			users:  repository.NewUserRepository(pool),
			health: handlers.HealthCheck{Name: "postgres", Ping: pg.Ping},
			close:  pg.Close,
		}, nil
	case config.StorageBackendMemory:
		logger.Warn("memory storage selected; data is lost on restart")
		return storage{
			issues: repository.NewMemoryIssueRepository(),
			users:  repository.NewMemoryUserRepository(),
		}, nil
	default:
		issues, err := repository.NewFileIssueRepository(cfg.Storage.DataDir, logger)
		if err != nil {
			return storage{}, err
		}
		users, err := repository.NewFileUserRepository(cfg.Storage.DataDir)
		if err != nil {
			return storage{}, err
		}
		return storage{
			issues: issues,
			users:  users,
			health: handlers.HealthCheck{Name: "storage", Ping: dirCheck(cfg.Storage.DataDir)},
		}, nil
	}
}

func dirCheck(dir string) func(context.Context) error {
	return func(context.Context) error {
		_, err := os.Stat(dir)
		return err
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
