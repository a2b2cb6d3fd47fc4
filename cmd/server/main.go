package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/api"
	"github.com/honeynil/p2p-marketplace/internal/config"
	"github.com/honeynil/p2p-marketplace/internal/handler"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/kafka"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/notify"
	"github.com/honeynil/p2p-marketplace/internal/observability"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	"github.com/honeynil/p2p-marketplace/internal/repository/memory"
	"github.com/honeynil/p2p-marketplace/internal/repository/postgres"
	service "github.com/honeynil/p2p-marketplace/internal/services"
	_ "github.com/lib/pq"
)

const consumerGroup = "marketplace-notifications"

type repositories struct {
	listings     repository.ListingRepository
	offers       repository.OfferRepository
	transactions repository.TransactionRepository
	close        func() error
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.StorageDriver == config.StorageMemory {
		slog.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			listings:     store.Listings(),
			offers:       store.Offers(),
			transactions: store.Transactions(),
			close:        func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &repositories{
		listings:     postgres.NewListingRepository(db),
		offers:       postgres.NewOfferRepository(db),
		transactions: postgres.NewTransactionRepository(db),
		close:        db.Close,
	}, nil
}

func main() {
	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdown := observability.Setup("p2p-marketplace", cfg)
	defer shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к хранилищу
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer repos.close()

	redisClient, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		os.Exit(1)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	notifier := notify.NewKafkaNotifier(producer, cfg.NotificationsTopic)

	// Инициализируем сервисы
	listings := service.NewListingService(repos.listings, redisClient)
	offers := service.NewOfferService(repos.listings, repos.offers, redisClient, notifier)
	transactions := service.NewTransactionService(repos.transactions, notifier)

	// Настраиваем Kafka-консьюмер уведомлений
	inbox := notify.NewInbox(redisClient)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.NotificationsTopic, consumerGroup, inbox)
	defer consumer.Close()
	go consumer.Consume(ctx)

	// Настраиваем роутер
	h := handler.NewHandler(listings, offers, transactions, inbox, redisClient)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	// Запускаем сервер
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
