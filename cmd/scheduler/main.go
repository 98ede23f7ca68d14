package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itskum47/FeedForge/config"
	"github.com/itskum47/FeedForge/observability"
	"github.com/itskum47/FeedForge/scheduler"
	"github.com/itskum47/FeedForge/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("scheduler: connecting to postgres: %v", err)
	}
	defer pg.Close()
	log.Printf("scheduler: connected to postgres")

	go serveMetrics(cfg.MetricsListenAddr)
	go observability.PollJobStates(ctx, pg, 15*time.Second)

	sched := scheduler.New(pg, cfg.SchedulerInterval, cfg.FeedUpdateFrequency, cfg.SchedulerBatchSize)
	sched.Run(ctx)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	log.Printf("scheduler: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("scheduler: metrics server: %v", err)
	}
}
