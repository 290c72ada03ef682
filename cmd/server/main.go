package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"freyr/api/rest"
	"freyr/config"
	"freyr/infra/kafka"
	"freyr/infra/outbox"
	"freyr/jobs/broadcaster"
	"freyr/jobs/marketdata"
	"freyr/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	httpAddr := flag.String("http", "", "override HTTP listen address")
	flag.Parse()

	cfg := config.Load()
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		logger.Fatal("outbox init failed", zap.Error(err))
	}
	defer ob.Close()

	// ---------------- Service (snapshot + WAL replay) ----------------

	svc, err := service.New(service.Config{
		WALDir:      cfg.WALDir,
		SnapshotDir: cfg.SnapshotDir,
		Admin:       cfg.Admin,
	}, ob, logger)
	if err != nil {
		logger.Fatal("service init failed", zap.Error(err))
	}
	defer svc.Close()

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartSnapshotJob(ctx, cfg.SnapshotInterval)

	bc, err := broadcaster.New(ob, cfg.KafkaBrokers, cfg.EventsTopic, logger)
	if err != nil {
		logger.Fatal("broadcaster init failed", zap.Error(err))
	}
	defer bc.Close()
	bc.Start(ctx)

	ticks := kafka.NewProducer(cfg.KafkaBrokers, cfg.TicksTopic)
	defer ticks.Close()

	cache := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer cache.Close()

	md := marketdata.New(svc, ticks, cache, marketdata.Config{
		Interval:   cfg.MarketDataInterval,
		DepthLimit: cfg.DepthLimit,
	}, logger)
	md.Start(ctx)

	// ---------------- HTTP ----------------

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      rest.NewServer(svc, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server exited", zap.Error(err))
		}
	}()

	// ---------------- Shutdown ----------------

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
