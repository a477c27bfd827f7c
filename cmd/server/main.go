package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bazaar/infra/catalog"
	"bazaar/infra/config"
	kafkainfra "bazaar/infra/kafka"
	"bazaar/infra/outbox"
	"bazaar/infra/store"
	"bazaar/jobs/broadcaster"
	"bazaar/service"
)

func main() {
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// ---------------- Storage ----------------

	listings, err := store.Open(filepath.Join(cfg.DataDir, "listings"))
	if err != nil {
		log.Fatal("listing store init failed", zap.Error(err))
	}
	defer listings.Close()

	items, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog"))
	if err != nil {
		log.Fatal("catalog init failed", zap.Error(err))
	}
	defer items.Close()
	log.Info("catalog loaded", zap.Int("items", items.Len()))

	ob, err := outbox.Open(filepath.Join(cfg.DataDir, "outbox"))
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer ob.Close()

	// ---------------- Kafka ----------------

	events := kafkainfra.NewProducer(cfg.Brokers, cfg.EventsTopic)
	defer events.Close()

	// ---------------- Engine ----------------

	engine := service.NewEngine(listings, items, events, ob, log,
		service.WithSessionTTL(cfg.SessionTimeout))

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.SweepExpired(ctx)
			}
		}
	}()

	bc, err := broadcaster.New(ob, cfg.Brokers, cfg.MatchesTopic, cfg.BroadcastInterval, log)
	if err != nil {
		log.Fatal("broadcaster init failed", zap.Error(err))
	}
	defer bc.Close()
	go bc.Run(ctx)

	// ---------------- Command intake ----------------

	consumer := kafkainfra.NewConsumer(cfg.Brokers, cfg.CommandsTopic, cfg.ConsumerGroup, engine, items, log)
	defer consumer.Close()

	errc := make(chan error, 1)
	go func() { errc <- consumer.Run(ctx) }()

	log.Info("bazaar engine running",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("commands", cfg.CommandsTopic))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-errc:
		if err != nil {
			log.Error("command consumer exited", zap.Error(err))
		}
	}
	cancel()
}
