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
	"github.com/redis/go-redis/v9"

	"github.com/itskum47/FeedForge/api"
	"github.com/itskum47/FeedForge/config"
	"github.com/itskum47/FeedForge/idempotency"
	"github.com/itskum47/FeedForge/middleware"
	"github.com/itskum47/FeedForge/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("api: connecting to postgres: %v", err)
	}
	defer pg.Close()
	log.Printf("api: connected to postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("api: connecting to redis at %s: %v", cfg.RedisAddr, err)
	}
	defer redisClient.Close()
	log.Printf("api: connected to redis at %s", cfg.RedisAddr)

	service := api.NewService(pg)
	hub := api.NewStatusHub(service)
	go hub.Run(ctx)

	// 5 requests/sec with burst 10 per user.
	limiter := middleware.NewTokenBucketLimiter(5, 10)

	a := api.NewAPI(service, idempotency.NewStore(redisClient), hub)
	mux := http.NewServeMux()
	a.Register(mux, limiter)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      middleware.CORS(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the stream endpoint holds connections open
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("api: shutdown: %v", err)
		}
	}()

	log.Printf("api: listening on %s", cfg.APIListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("api: server: %v", err)
	}
	log.Printf("api: stopped")
}
