package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"demand-trend/internal/config"
	"demand-trend/internal/database"
	"demand-trend/internal/history"
	"demand-trend/internal/ingest"
	"demand-trend/internal/services"
	"demand-trend/internal/services/remote"

	"github.com/joho/godotenv"
)

var (
	file    = flag.String("file", "", "extract to load (csv or xlsx)")
	url     = flag.String("url", "", "download the extract from this URL instead")
	date    = flag.String("date", "", "nominal date of the extract (default today)")
	sheet   = flag.String("sheet", "", "worksheet name for xlsx extracts")
	timeout = flag.Duration("timeout", 2*time.Minute, "overall timeout")
)

func main() {
	flag.Parse()
	if (*file == "") == (*url == "") {
		log.Fatal("exactly one of -file or -url is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	var nominal time.Time
	if *date != "" {
		d, err := ingest.ParseDate(*date)
		if err != nil {
			log.Fatalf("invalid -date %q", *date)
		}
		nominal = d
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req := services.IngestRequest{Sheet: *sheet, NominalDate: nominal}
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		req.Source, req.Data = filepath.Base(*file), data
	} else {
		maxBytes := int64(cfg.MaxUploadMB) << 20
		ext, err := remote.NewFetcher(time.Duration(cfg.RemoteTimeoutSec)*time.Second, maxBytes).Fetch(ctx, *url)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		req.Source, req.Data = ext.Name, ext.Data
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	svc := services.NewDemandService(history.NewStore(db, cfg.InsertBatchSize), cfg.CompareWindowDays)

	res, err := svc.Ingest(ctx, req)
	if err != nil {
		log.Fatalf("❌ ingest %s: %v", req.Source, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal(err)
	}
	if res.Stored == 0 && !res.Duplicate {
		os.Exit(2)
	}
}
