package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/tmash55/unjuiced/internal/config"
	"github.com/tmash55/unjuiced/internal/feed"
	"github.com/tmash55/unjuiced/internal/fetcher"
	"github.com/tmash55/unjuiced/internal/handlers"
	"github.com/tmash55/unjuiced/internal/sgp"
	"github.com/tmash55/unjuiced/internal/stream"
	"github.com/tmash55/unjuiced/internal/writer"
	"github.com/tmash55/unjuiced/pkg/models"
)

func main() {
	fmt.Println("=== Unjuiced v0 ===")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fmt.Printf("❌ Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Connected to Redis")

	// Postgres history writing is optional
	var historyWriter *writer.HistoryWriter
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			fmt.Printf("❌ Failed to open Postgres: %v\n", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			fmt.Printf("❌ Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		historyWriter = writer.NewHistoryWriter(db)
		fmt.Println("✓ Connected to Postgres")
	} else {
		fmt.Println("⚠️  POSTGRES_DSN not set - opportunity history disabled")
	}

	// Opportunity stream session
	oppFetcher := fetcher.NewHTTPFetcher(cfg.Fetch.BaseURL, cfg.Fetch.APIKey)
	session := stream.NewSession(oppFetcher, fetcher.Filters{}, nil, stream.Config{
		Debounce:        time.Duration(cfg.Stream.DebounceMS) * time.Millisecond,
		FlashWindow:     time.Duration(cfg.Stream.FlashWindowMS) * time.Millisecond,
		HighlightWindow: time.Duration(cfg.Stream.HighlightWindowMS) * time.Millisecond,
	})
	if historyWriter != nil {
		session.SetOnAdded(func(added []*models.Opportunity) {
			if _, err := historyWriter.WriteOpportunities(context.Background(), added); err != nil {
				fmt.Printf("⚠️  Failed to write opportunity history: %v\n", err)
			}
		})
	}

	sessionCtx, cancelSession := context.WithCancel(context.Background())
	defer cancelSession()

	if err := session.Start(sessionCtx); err != nil {
		// Not fatal: the session retries on the next signal or manual refresh.
		fmt.Printf("⚠️  Initial opportunity load failed: %v\n", err)
	} else {
		fmt.Printf("✓ Opportunity session loaded (version %d)\n", session.Version())
	}

	// Change-signal feed
	if cfg.Feed.URL != "" {
		consumer := feed.NewConsumer(cfg.Feed.URL, session, cfg.Feed.ReconnectBase)
		go consumer.Run(sessionCtx)
		fmt.Printf("✓ Signal feed consumer started: %s\n", cfg.Feed.URL)
	} else {
		fmt.Println("⚠️  FEED_URL not set - refresh is manual only")
	}

	// SGP aggregator
	quoteCache := sgp.NewRedisQuoteCache(redisClient, cfg.Sgp.CacheTTL)
	quoteProvider := sgp.NewHTTPQuoteProvider(cfg.Sgp.BaseURL, cfg.Sgp.APIKey, cfg.Sgp.RequestsPerSecond)
	aggregator := sgp.NewAggregator(quoteCache, quoteProvider, cfg.Sgp.StreamTimeout)

	handler := handlers.NewHandler(session, aggregator)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handler.HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/opportunities", handler.Opportunities)
		r.Post("/opportunities/refresh", handler.RefreshOpportunities)
		r.Post("/sgp/odds", handler.SgpOdds)
		r.Post("/sgp/stream", handler.SgpStream)
		r.Post("/devig", handler.Devig)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Printf("✓ HTTP server listening on :%s\n", cfg.Server.Port)
		fmt.Println("    GET  /health")
		fmt.Println("    GET  /api/v1/opportunities")
		fmt.Println("    POST /api/v1/opportunities/refresh")
		fmt.Println("    POST /api/v1/sgp/odds")
		fmt.Println("    POST /api/v1/sgp/stream")
		fmt.Println("    POST /api/v1/devig")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		fmt.Printf("❌ Server error: %v\n", err)
		os.Exit(1)

	case sig := <-shutdown:
		fmt.Printf("\n⚠️  Received signal: %v\n", sig)
		cancelSession()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("⚠️  Graceful shutdown failed: %v\n", err)
			if err := srv.Close(); err != nil {
				fmt.Printf("❌ Could not stop server: %v\n", err)
			}
		}
	}

	if err := redisClient.Close(); err != nil {
		fmt.Printf("⚠️  Error closing Redis: %v\n", err)
	}

	fmt.Println("✓ Shutdown complete")
}
