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
	"github.com/itskum47/FeedForge/feed"
	"github.com/itskum47/FeedForge/observability"
	"github.com/itskum47/FeedForge/store"
	"github.com/itskum47/FeedForge/worker"
)

const reclaimInterval = time.Minute

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: connecting to postgres: %v", err)
	}
	defer pg.Close()
	log.Printf("worker: connected to postgres")

	go serveMetrics(cfg.MetricsListenAddr)
	go observability.PollJobStates(ctx, pg, 15*time.Second)

	reclaimer := worker.NewReclaimer(pg, reclaimInterval, cfg.WorkerReclaimAfter, cfg.WorkerBatchSize)
	go reclaimer.Run(ctx)

	fetcher := feed.NewFetcher(cfg.FeedMaxBodySize)
	w := worker.New(pg, fetcher, cfg.WorkerInterval, cfg.WorkerBatchSize,
		cfg.FeedUpdateFetchTimeout, cfg.FeedUpdateRetryDelays)
	w.Run(ctx)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	log.Printf("worker: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("worker: metrics server: %v", err)
	}
}
