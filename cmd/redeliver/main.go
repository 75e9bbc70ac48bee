// Command redeliver drains the local fallback log back into the broker. Run it
// once the broker is reachable again; events that still fail are re-appended
// to the fallback log by the publisher itself.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/socialstack/moderation-service/internal/broker"
	"github.com/socialstack/moderation-service/internal/config"
	"github.com/socialstack/moderation-service/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	path := cfg.RabbitMQ.FallbackLog
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Infof("no fallback log at %s, nothing to redeliver", path)
		return
	}

	// Move the log aside first so retries that fail again land in a fresh
	// file instead of growing the one being drained.
	processing := path + ".redeliver"
	if err := os.Rename(path, processing); err != nil {
		log.Fatalf("stage fallback log: %v", err)
	}

	entries, err := broker.ReadEntries(processing, log)
	if err != nil {
		log.Fatalf("read fallback log: %v", err)
	}

	fallback := broker.NewFallbackLog(path, log)
	pub := broker.NewPublisher(cfg.RabbitMQ.URL(), broker.Dial, fallback, log)
	defer pub.Close()

	ctx := context.Background()
	delivered := 0
	for _, e := range entries {
		res := pub.Publish(ctx, e.Key, e.Data)
		if res.Delivered {
			delivered++
		} else {
			log.Errorf("redeliver %s failed: %s", e.Key, res.Detail)
		}
	}
	if err := os.Remove(processing); err != nil {
		log.Warnf("remove staged log: %v", err)
	}
	log.Infof("redelivered %d/%d events", delivered, len(entries))
}
