package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	meetingHandler "meetsense-backend/internal/handler/http/meeting"
	"meetsense-backend/internal/middleware"
	"meetsense-backend/internal/repository/postgres"
	historyService "meetsense-backend/internal/service/history"
	pkgDatabase "meetsense-backend/pkg/database"
	"meetsense-backend/pkg/env"
	"meetsense-backend/pkg/jwt"
	"meetsense-backend/pkg/logger"
	"meetsense-backend/pkg/metrics"
	"meetsense-backend/pkg/response"
)

func main() {
	ctx := context.Background()

	// 1. Setup logging
	logger.InitDefault()
	defer logger.Sync()

	// 2. Setup JWT Manager for service-to-service auth
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewManager(jwtSecret, env.GetDuration("JWT_TOKEN_DURATION", 24*time.Hour))

	// 3. Connect to Postgres with exponential backoff retry
	dbConfig := &pkgDatabase.PostgresConfig{
		Host:     env.GetString("DB_HOST", "localhost"),
		Port:     env.GetInt("DB_PORT", 5432),
		User:     env.GetString("DB_USER", "postgres"),
		Password: env.GetStringFromFile("DB_PASSWORD", ""),
		Database: env.GetString("DB_NAME", "meetsense"),
		SSLMode:  env.GetString("DB_SSLMODE", "disable"),
	}

	var db *pkgDatabase.PostgresDB
	var err error

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err = pkgDatabase.NewPostgresDB(ctx, dbConfig)
	if err != nil {
		for attempt := 2; attempt <= maxRetries; attempt++ {
			delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > maxDelay {
				delay = maxDelay
			}
			log.Printf("⚠️  Postgres connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
			time.Sleep(delay)

			db, err = pkgDatabase.NewPostgresDB(ctx, dbConfig)
			if err == nil {
				break
			}
		}
	}

	var meetingRepo *postgres.MeetingRepository
	if err != nil {
		log.Printf("Warning: Failed to connect to Postgres after %d attempts: %v", maxRetries, err)
		log.Println("Running in limited mode without meeting persistence")
	} else {
		log.Println("✅ Connected to Postgres")
		defer db.Close()

		meetingRepo = postgres.NewMeetingRepository(db.Pool)
		if err := meetingRepo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure meetings schema: %v", err)
		}
	}

	// 4. Initialize Metrics
	appMetrics := metrics.New("history-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 5. Setup Gin Router
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
			"service": "history-service",
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// 6. Meeting routes (all require a service token)
	v1 := router.Group("/v1/meetings")
	v1.Use(middleware.ServiceAuth(jwtManager))
	if meetingRepo != nil {
		historySvc := historyService.NewService(meetingRepo)
		meetingHdlr := meetingHandler.NewHandler(historySvc)

		v1.POST("", meetingHdlr.SaveMeeting)
		v1.GET("", meetingHdlr.ListMeetings)
		v1.GET("/:id", meetingHdlr.GetMeeting)
		v1.DELETE("/:id", meetingHdlr.DeleteMeeting)
	} else {
		v1.Any("/*any", func(c *gin.Context) {
			response.ServiceUnavailable(c, "Meeting persistence is unavailable")
		})
	}

	// 7. Start server
	port := env.GetString("PORT", "8082")
	addr := fmt.Sprintf(":%s", port)

	log.Printf("🚀 History Service starting on port %s\n", port)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
