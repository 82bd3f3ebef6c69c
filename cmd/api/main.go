package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/linkhub/internal/config"
	"github.com/SergeiKhy/linkhub/internal/geo"
	"github.com/SergeiKhy/linkhub/internal/handler"
	"github.com/SergeiKhy/linkhub/internal/middleware"
	"github.com/SergeiKhy/linkhub/internal/repository"
	"github.com/SergeiKhy/linkhub/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Геолокация: без базы GeoLite2 визиты помечаются как unknown
	locator, err := geo.NewLocator(cfg.Geo.GeoLitePath)
	if err != nil {
		logger.Fatal("Failed to open GeoLite2 database", zap.Error(err))
	}
	defer locator.Close()

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	orgRepo := repository.NewOrgRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)

	// Инициализация сервисов
	aclService := service.NewACLService(linkRepo, grantRepo, orgRepo, logger)
	safetyChecker := service.NewSafetyChecker(cfg.Safety)
	generator := service.NewShortIDGenerator(cfg.ShortID.Length)
	linkService := service.NewLinkService(linkRepo, cacheRepo, aclService, safetyChecker, generator, cfg.Safety, cfg.ShortID, logger)
	statsService := service.NewStatsService(visitRepo, linkRepo, aclService)

	// Инициализация процессора визитов (Worker Pool)
	visitProcessor := service.NewVisitProcessor(visitRepo, linkRepo, cacheRepo, locator, cfg.Visits, logger)
	visitProcessor.Start()
	defer visitProcessor.Stop()

	// Дренаж канала отказов: события, не записанные после всех попыток
	go func() {
		for failure := range visitProcessor.Failures() {
			logger.Error("Visit permanently lost",
				zap.String("alias", failure.Event.AliasName),
				zap.Error(failure.Err),
			)
		}
	}()

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	auth := middleware.NewAuth(middleware.AuthConfig{Secret: cfg.Auth.JWTSecret})

	// Настройка роутера
	router := handler.NewRouter(linkService, statsService, aclService, visitProcessor, rateLimiter, auth, cfg.App.BaseURL, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
