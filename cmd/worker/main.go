// Worker consumes position_fix events from Kafka and records each driver's last known
// position in Postgres. With LOKI_URL set every consumed event is also pushed to Loki.
// Set DATABASE_URL, KAFKA_BROKERS, POSITION_KAFKA_TOPIC, and KAFKA_GROUP_ID.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db"
	locrepo "fleet-tracker/internal/location/repository"
	"fleet-tracker/internal/location/worker"
	"fleet-tracker/internal/logging"
	"fleet-tracker/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB, MaxBackups: cfg.LogMaxBackups})
	defer logCloser.Close()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer database.Close()

	var logs worker.LogPusher
	if cfg.LokiURL != "" {
		logs = loki.NewClient(cfg.LokiURL, "fleet-position-worker", nil)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.PositionKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Printf("worker: consuming from %s (group %s)", cfg.PositionKafkaTopic, cfg.KafkaGroupID)
	if err := worker.New(locrepo.NewPostgresRepository(database), logs).Run(ctx, reader); err != nil {
		log.Printf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
