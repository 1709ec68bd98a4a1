package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	attemptController "codearena/internal/attempt/controller"
	attemptRepo "codearena/internal/attempt/repository"
	"codearena/internal/attempt/service"
	"codearena/internal/auth"
	"codearena/internal/common/cache"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/ratelimit"
	"codearena/internal/common/storage"
	"codearena/internal/execution/client"
	"codearena/internal/execution/poller"
	gradingService "codearena/internal/grading/service"
	"codearena/internal/platform/challengeclient"
	"codearena/internal/platform/credential"
	"codearena/internal/platform/submissionclient"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/grader_service.yaml"
	defaultEnvPath    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Path to dotenv file, skipped when missing")
	flag.Parse()

	if err := loadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	var redisCache *cache.RedisCache
	if appCfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
	}

	execCredentials, err := credential.FromConfig(appCfg.Execution.AuthMode, appCfg.Execution.Token, appCfg.Execution.APIKey, appCfg.Execution.APIHost)
	if err != nil {
		logger.Error(ctx, "init execution credentials failed", zap.Error(err))
		return
	}
	execClient, err := client.New(client.Config{
		BaseURL:     appCfg.Execution.BaseURL,
		Timeout:     appCfg.Execution.Timeout,
		Encoding:    client.Encoding(appCfg.Execution.Encoding),
		Credentials: execCredentials,
	})
	if err != nil {
		logger.Error(ctx, "init execution client failed", zap.Error(err))
		return
	}
	grader := gradingService.NewGrader(execClient, poller.New(execClient, appCfg.Execution.Poll))

	var platformFallback credential.Provider
	if appCfg.Platform.ServiceToken != "" {
		platformFallback = credential.Bearer(appCfg.Platform.ServiceToken)
	}
	platformCredentials := credential.Forwarded(platformFallback)
	challenges, err := challengeclient.New(appCfg.Platform.BaseURL, appCfg.Platform.Timeout, platformCredentials)
	if err != nil {
		logger.Error(ctx, "init challenge client failed", zap.Error(err))
		return
	}
	recorder, err := submissionclient.New(appCfg.Platform.BaseURL, appCfg.Platform.Timeout, platformCredentials)
	if err != nil {
		logger.Error(ctx, "init submission client failed", zap.Error(err))
		return
	}

	attemptCfg := service.Config{
		Grader:       grader,
		TestCases:    challenges,
		Recorder:     recorder,
		MaxCodeBytes: appCfg.Attempt.MaxCodeBytes,
		RunTimeout:   appCfg.Attempt.RunTimeout,
		WatchBuffer:  appCfg.Attempt.WatchBuffer,
		Timeouts:     appCfg.Attempt.Timeouts,
	}
	var revoked cache.Cache
	if redisCache != nil {
		revoked = redisCache
		attemptCfg.TestCases = challengeclient.NewCachedSource(challenges, redisCache, appCfg.Platform.CasesTTL, appCfg.Platform.CasesEmptyTTL)
		attemptCfg.Store = attemptRepo.NewRedisObservationRepository(redisCache, appCfg.Attempt.ObservationTTL)
	}

	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		attemptCfg.Events = attemptRepo.NewMQEventPublisher(producer, appCfg.Attempt.EventTopic)
	}

	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Attempt.SourceBucket); err != nil {
			logger.Error(ctx, "ensure source bucket failed", zap.Error(err))
			return
		}
		attemptCfg.Archive = attemptRepo.NewObjectSourceArchive(objStorage, appCfg.Attempt.SourceBucket, appCfg.Attempt.SourceKeyPrefix)
	}

	attemptService, err := service.NewAttemptService(attemptCfg)
	if err != nil {
		logger.Error(ctx, "init attempt service failed", zap.Error(err))
		return
	}

	var authService *auth.Service
	if appCfg.Auth.JWTSecret != "" {
		authService = auth.NewService(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer, revoked)
	}

	var limiter *ratelimit.Limiter
	if redisCache != nil {
		limiter = ratelimit.NewLimiter(redisCache, appCfg.RateLimit.Window, appCfg.Redis.ReadTimeout)
	}

	httpServer := buildHTTPServer(appCfg, authService, limiter, attemptService)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grader http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Bool("redis", redisCache != nil),
			zap.Bool("kafka", attemptCfg.Events != nil),
			zap.Bool("archive", attemptCfg.Archive != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if err := attemptService.Shutdown(drainCtx); err != nil {
		logger.Warn(ctx, "background attempts still running at shutdown", zap.Error(err))
	}
}

func buildHTTPServer(cfg *AppConfig, authService *auth.Service, limiter *ratelimit.Limiter, attemptService *service.AttemptService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.CORS(cfg.CORS))
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", auth.Middleware(authService, cfg.Auth.Mode))
	attemptController.NewAttemptController(attemptService,
		attemptController.WithOriginCheck(cfg.CORS.CheckOrigin),
	).RegisterRoutes(api,
		commonmw.RateLimit(limiter, "attempt.run", cfg.RateLimit),
	)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
