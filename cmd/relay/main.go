package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathima-sithara/relay-service/internal/api"
	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/events"
	"github.com/fathima-sithara/relay-service/internal/logger"
	"github.com/fathima-sithara/relay-service/internal/metrics"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/fathima-sithara/relay-service/internal/repository"
	"github.com/fathima-sithara/relay-service/internal/service"
	"github.com/fathima-sithara/relay-service/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	log, err := logger.New(cfg.App.Development(), cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, users, mc, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if mc != nil {
		defer func() { _ = mc.Disconnect(context.Background()) }()
	}

	var tracker presence.Tracker = presence.NewMemoryTracker()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed, presence may lag", zap.Error(err))
		}
		tracker = presence.NewRedisTracker(rdb, cfg.Redis.Prefix, cfg.Redis.PresenceTTL)
	}

	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka, log)
		log.Info("publishing message events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.TopicMessageCreated))
	}

	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		return fmt.Errorf("jwt verifier: %w", err)
	}

	m := metrics.New()
	messages := service.NewMessageService(store, users, pub, log)
	conversations := service.NewConversationService(store, users, log)
	registry := ws.NewRegistry()
	relay := ws.NewRelay(messages, registry, m, log)
	wsServer := ws.NewServer(registry, relay, tracker, m, ws.OptionsFromConfig(cfg.WS), log)

	app := api.NewServer(ctx, api.Deps{
		Config:        cfg,
		Messages:      messages,
		Conversations: conversations,
		Users:         users,
		Presence:      tracker,
		Verifier:      verifier,
		WS:            wsServer,
		Relay:         relay,
		Metrics:       m,
		Log:           log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.App.Addr())
	}()
	log.Info("relay started", zap.String("addr", cfg.App.Addr()), zap.String("storage", cfg.Storage.Driver))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen: %w", err)
		}
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := wsServer.Shutdown(sctx); err != nil {
		log.Warn("websocket shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithContext(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := pub.Close(); err != nil {
		log.Warn("publisher close", zap.Error(err))
	}
	log.Info("relay stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.MessageStore, repository.UserDirectory, *mongo.Client, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, messages are lost on restart", zap.Int("seed_users", len(cfg.Storage.SeedUsers)))
		return repository.NewMemoryMessageStore(), repository.NewMemoryUserDirectory(cfg.Storage.SeedUsers...), nil, nil
	}

	mc, err := repository.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout, cfg.Mongo.RetryMaxElapsed, log)
	if err != nil {
		return nil, nil, nil, err
	}
	db := mc.Database(cfg.Mongo.DB)
	store := repository.NewMongoMessageStore(db.Collection(cfg.Mongo.MessagesCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
	}
	users := repository.NewMongoUserDirectory(db.Collection(cfg.Mongo.UsersCollection))
	log.Info("mongo connected", zap.String("db", cfg.Mongo.DB))
	return store, users, mc, nil
}
