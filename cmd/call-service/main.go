package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meetsense-backend/internal/detection"
	wsHandler "meetsense-backend/internal/handler/ws"
	"meetsense-backend/internal/history"
	"meetsense-backend/internal/middleware"
	redisRepo "meetsense-backend/internal/repository/redis"
	"meetsense-backend/internal/session"
	"meetsense-backend/internal/summary"
	pkgDatabase "meetsense-backend/pkg/database"
	"meetsense-backend/pkg/env"
	"meetsense-backend/pkg/jwt"
	"meetsense-backend/pkg/logger"
	"meetsense-backend/pkg/metrics"
)

func main() {
	// 1. Setup logging
	logger.InitDefault()
	defer logger.Sync()

	// 2. Setup JWT Manager and mint the token used to call the history service
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewManager(jwtSecret, env.GetDuration("JWT_TOKEN_DURATION", 24*time.Hour))
	serviceToken, err := jwtManager.GenerateServiceToken("call-service")
	if err != nil {
		log.Fatalf("Failed to generate service token: %v", err)
	}

	// 3. Connect to Redis for the live-call registry
	redisConfig := &pkgDatabase.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
	}

	var callRepo *redisRepo.CallRepository
	redisDB, err := pkgDatabase.NewRedisDB(redisConfig)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running in limited mode without the live-call registry")
	} else {
		log.Println("✅ Connected to Redis")
		defer redisDB.Close()
		callRepo = redisRepo.NewCallRepository(redisDB)

		// Mirror lifecycle events from other instances into the service log
		go func() {
			pubsub := callRepo.SubscribeEvents(context.Background())
			defer pubsub.Close()
			for msg := range pubsub.Channel() {
				var event redisRepo.CallEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				logger.Info("call lifecycle event",
					zap.String("call_id", event.CallID.String()),
					zap.String("state", event.State),
				)
			}
		}()
	}

	// 4. Initialize the history client and per-call persistence bridge
	historyURL := env.GetString("HISTORY_SERVICE_URL", "http://localhost:8082")
	historyClient := history.NewClient(historyURL, history.WithToken(serviceToken))

	bridgeFactory := func(notifier session.Notifier) *summary.Bridge {
		return summary.NewBridge(historyClient, notifier, logger.Log)
	}

	// 5. Initialize Metrics
	appMetrics := metrics.New("call-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 6. Initialize the call hub
	callHub := wsHandler.NewCallHub(callRepo, bridgeFactory, appMetrics, detection.DefaultConfig())

	// 7. Setup Gin Router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "call-service",
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// 8. Call routes
	v1 := router.Group("/v1/calls")
	{
		// WebSocket endpoint hosting live call sessions
		v1.GET("/ws", callHub.ServeWS)
	}

	// 9. Start server
	port := env.GetString("PORT", "8083")
	addr := fmt.Sprintf(":%s", port)

	log.Printf("🚀 Call Service starting on port %s\n", port)
	log.Println("📡 Live calls: /v1/calls/ws")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
