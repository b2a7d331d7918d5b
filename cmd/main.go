package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"insightdash/internal/classifier"
	"insightdash/internal/gateway"
	"insightdash/internal/infrastructure"
	httpiface "insightdash/internal/interfaces/http"
	"insightdash/internal/session"
	"insightdash/internal/usecases"
)

func main() {
	// Load .env file (optional; real deployments set env directly)
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment")
	}

	apiBaseURL := envOr("API_BASE_URL", "http://localhost:8000")
	wsURL := envOr("WEBHOOK_WS_URL", "ws://localhost:8000/ws")
	listenAddr := envOr("LISTEN_ADDR", "0.0.0.0:8080")

	metrics := infrastructure.Registry("insightdash")

	// Optional redis cache for table fetches
	gwOpts := []gateway.Option{
		gateway.WithObserver(func(path, status string) {
			metrics.UpstreamRequests.WithLabelValues(path, status).Inc()
			if path == "/send-message" {
				outcome := "ok"
				if status != "200" && status != "201" {
					outcome = "error"
				}
				metrics.MessagesSent.WithLabelValues(outcome).Inc()
			}
		}),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisCache := infrastructure.NewRedis(infrastructure.RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envIntOr("REDIS_DB", 0),
		})
		if err := redisCache.Ping(context.Background()); err != nil {
			fmt.Println("Warning: Redis unreachable, caching disabled:", err)
		} else {
			ttl := time.Duration(envIntOr("CACHE_TTL_SECONDS", 30)) * time.Second
			gwOpts = append(gwOpts, gateway.WithCache(redisCache, ttl))
			defer redisCache.Close()
		}
	}

	gw := gateway.NewClient(apiBaseURL, gwOpts...)
	ranges := classifier.NewStore()
	analysis := usecases.NewAnalysisUsecase(gw, ranges)

	sessions := session.NewManager(gw,
		func(ctx context.Context) (session.Stream, error) {
			return infrastructure.DialStream(ctx, wsURL, nil)
		},
		session.WithSendRate(rate.Every(time.Second), 5),
		session.WithEventObserver(func(eventType string) {
			metrics.StreamEvents.WithLabelValues(eventType).Inc()
		}),
	)
	defer sessions.Shutdown()

	// Segment blasts go out at most one message per second
	segments := usecases.NewSegmentMessenger(gw, rate.NewLimiter(rate.Every(time.Second), 1))

	// Setup HTTP server
	r := gin.Default()
	handler := httpiface.NewHandler(analysis, gw, sessions, segments, ranges)
	httpiface.SetupRoutes(r, handler, httpiface.NewMiddleware())

	fmt.Println("insightdash listening on", listenAddr, "upstream", apiBaseURL)
	if err := r.Run(listenAddr); err != nil {
		fmt.Printf("FAILED to start HTTP Server: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: invalid %s=%q, using %d\n", key, v, fallback)
		return fallback
	}
	return n
}
