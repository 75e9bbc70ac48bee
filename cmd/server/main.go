package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/socialstack/moderation-service/internal/broker"
	"github.com/socialstack/moderation-service/internal/classifier"
	"github.com/socialstack/moderation-service/internal/config"
	"github.com/socialstack/moderation-service/internal/logger"
	"github.com/socialstack/moderation-service/internal/model"
	"github.com/socialstack/moderation-service/internal/moderation"
	"github.com/socialstack/moderation-service/internal/repo"
	httptransport "github.com/socialstack/moderation-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. env + config
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.ViolationRecord{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. event publisher (connects lazily on first publish)
	fallback := broker.NewFallbackLog(cfg.RabbitMQ.FallbackLog, log)
	pub := broker.NewPublisher(cfg.RabbitMQ.URL(), broker.Dial, fallback, log)
	defer pub.Close()

	// 6. repo & engine
	repository := repo.NewRepository(gdb, rdb, log)
	engine := moderation.NewEngine(repository, pub, log)

	// 7. classifier (optional: /moderation/check returns 503 without it)
	var cls *classifier.Client
	if cfg.Classifier.APIKey != "" {
		cls, err = classifier.New(classifier.Options{
			BaseURL: cfg.Classifier.BaseURL,
			APIKey:  cfg.Classifier.APIKey,
			Model:   cfg.Classifier.Model,
			Timeout: 15 * time.Second,
		})
		if err != nil {
			log.Fatalf("init classifier: %v", err)
		}
	} else {
		log.Warn("classifier API key not set, /v1/moderation/check disabled")
	}

	// 8. gin router
	router := httptransport.NewRouter(engine, cls, repository, cfg.RateLimit, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("moderation-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
