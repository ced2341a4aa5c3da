package main

import (
	"log"
	"net/http"
	"time"

	"demand-trend/internal/api"
	"demand-trend/internal/config"
	"demand-trend/internal/database"
	"demand-trend/internal/history"
	"demand-trend/internal/services"
	"demand-trend/internal/services/remote"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	log.Printf("🗄️  %s store ready", cfg.DBDriver)

	maxUpload := int64(cfg.MaxUploadMB) << 20
	store := history.NewStore(db, cfg.InsertBatchSize)
	svc := services.NewDemandService(store, cfg.CompareWindowDays)
	fetcher := remote.NewFetcher(time.Duration(cfg.RemoteTimeoutSec)*time.Second, maxUpload)

	hub := api.NewHub()
	go hub.Run()
	svc.SetNotifier(hub)

	r := gin.Default()
	r.MaxMultipartMemory = maxUpload
	r.Use(api.RequestID(), api.CORS())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", hub.Serve)

	// API routes
	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(apiGroup, svc, fetcher, maxUpload)

	log.Printf("Server starting on port %s (compare window %d days)", cfg.Port, cfg.CompareWindowDays)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
