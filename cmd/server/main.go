package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/handler"
	"github.com/faltrading/FAL-chat-service/internal/middleware"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	"github.com/faltrading/FAL-chat-service/internal/repository/memory"
	"github.com/faltrading/FAL-chat-service/internal/service"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	checks := map[string]handler.Pinger{}

	// Подключение к Redis (необязательно)
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	// Инициализация репозиториев
	var repos *repository.Repositories
	switch cfg.Database.Driver {
	case config.DatabaseDriverMemory:
		store := memory.NewStore()
		lobby := uuid.New()
		store.AddGroup(lobby, true)
		appLogger.Warn("Using in-memory storage, data is lost on restart", "default_group_id", lobby)
		repos = store.Repositories(
			repository.NewPresenceRepository(rdb, appLogger),
			repository.NewRateLimitRepository(rdb, appLogger),
		)
	default:
		dbPool := connectPostgres(cfg.Database, appLogger)
		defer dbPool.Close()
		checks["postgres"] = dbPool.Ping
		repos = repository.NewRepositories(dbPool, rdb, appLogger)
	}

	// Реестр соединений и рассылка событий
	registry := realtime.NewRegistry()
	metrics := realtime.NewMetrics(prometheus.DefaultRegisterer, registry)
	broadcasterOpts := []realtime.BroadcasterOption{realtime.WithMetrics(metrics)}
	if cfg.Kafka.Enabled() {
		mirror := realtime.NewKafkaMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic, appLogger)
		defer mirror.Close()
		broadcasterOpts = append(broadcasterOpts, realtime.WithMirror(mirror))
		appLogger.Info("Kafka event mirror enabled", "topic", cfg.Kafka.Topic)
	}
	broadcaster := realtime.NewBroadcaster(registry, appLogger, broadcasterOpts...)

	// Инициализация сервисов
	services := service.NewServices(repos, broadcaster, cfg, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, registry, broadcaster, checks, cfg, appLogger)

	// Настройка роутера
	router := handler.SetupRouter(handlers, authMiddleware, rateLimitMiddleware, promhttp.Handler(), cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Shutdown не ждет hijacked-соединения, закрываем их сами
	registry.CloseAll(websocket.CloseGoingAway, "Server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(cfg config.DatabaseConfig, log logger.Logger) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		log.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping database", "error", err)
	}
	log.Info("Database connection established")

	if cfg.Migrate {
		if err := repository.Migrate(context.Background(), dbPool, log); err != nil {
			log.Fatal("Failed to apply schema", "error", err)
		}
	}

	return dbPool
}
