package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/handlers"
	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/middleware"
	"github.com/erpcore/erp/internal/repository"
	"github.com/erpcore/erp/internal/service"
	"github.com/erpcore/erp/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userRepo, closeUsers, err := initUserRepository(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize user store")
	}
	defer closeUsers()

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Redis")
	}
	defer redisClient.Close()

	keys, err := service.LoadKeyMaterial(&cfg.Keys)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load token keys")
	}

	publisher := initPublisher(cfg, logger)
	defer publisher.Close()

	m := metrics.New()
	pool := worker.NewPool(cfg.Password.Workers)
	store := cache.NewRedisStore(redisClient, logger)

	// Initialize services
	jwtService, err := service.NewJWTService(keys, &cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	passwordService := service.NewPasswordService(&cfg.Password, pool, m, logger)
	sessionService := service.NewSessionService(store, logger)
	authService := service.NewAuthService(userRepo, passwordService, sessionService, jwtService, publisher, m, logger)
	refreshTokenService := service.NewRefreshTokenService(userRepo, sessionService, jwtService, publisher, m, logger)
	resetCodeService := service.NewResetCodeService(store, userRepo, passwordService, sessionService, pool, publisher, &cfg.Password, logger)
	userService := service.NewUserService(userRepo, passwordService, publisher, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:           handlers.NewAuthHandlers(authService, refreshTokenService, resetCodeService, logger),
		Users:          handlers.NewUserHandlers(userService, logger),
		Server:         handlers.NewServerHandlers(userRepo, store, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService, sessionService, logger),
		Metrics:        m,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":       cfg.Server.Port,
			"user_store": cfg.UserStore,
			"workers":    pool.Size(),
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initUserRepository(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (service.UserRepository, func(), error) {
	switch cfg.UserStore {
	case config.UserStoreDynamoDB:
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoUserRepository(client, cfg.DynamoDB.TableName, logger), func() {}, nil

	case config.UserStoreMemory:
		logger.Warn("Using in-memory user store, accounts are lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil

	default:
		db, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close postgres")
			}
		}
		return repository.NewPostgresUserRepository(db, logger), closeDB, nil
	}
}

func initPostgres(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*sql.DB, error) {
	db, err := repository.OpenPostgres(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	if err := repository.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Postgres connected and migrated")
	return db, nil
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Endpoint},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis connected")
	return client, nil
}

func initPublisher(cfg *config.Config, logger *logrus.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, audit events go to the log")
		return events.NewLogPublisher(logger)
	}
	logger.WithField("topic", cfg.Kafka.AuditTopic).Info("Publishing audit events to Kafka")
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, logger)
}
