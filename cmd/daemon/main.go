package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"demand-trend/internal/config"
	"demand-trend/internal/database"
	"demand-trend/internal/history"
	"demand-trend/internal/services"
	"demand-trend/internal/services/remote"

	"github.com/joho/godotenv"
)

var (
	checkInterval = flag.Duration("interval", time.Hour, "time between polls")
	urls          = flag.String("urls", "", "comma-separated extract URLs (default EXTRACT_URLS)")
	sheet         = flag.String("sheet", "", "worksheet name for xlsx extracts")
)

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	targets := cfg.ExtractURLs
	if *urls != "" {
		targets = nil
		for _, u := range strings.Split(*urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				targets = append(targets, u)
			}
		}
	}
	if len(targets) == 0 {
		log.Fatal("no extract URLs: pass -urls or set EXTRACT_URLS")
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Printf("✅ database connected")

	svc := services.NewDemandService(history.NewStore(db, cfg.InsertBatchSize), cfg.CompareWindowDays)
	fetcher := remote.NewFetcher(time.Duration(cfg.RemoteTimeoutSec)*time.Second, int64(cfg.MaxUploadMB)<<20)
	poller := services.NewPoller(svc, fetcher, targets, *sheet)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("✅ daemon started (PID %d), polling %d extract(s) every %v", os.Getpid(), len(targets), *checkInterval)
	poller.Run(ctx, *checkInterval)
	log.Printf("🛑 shutting down")
}
