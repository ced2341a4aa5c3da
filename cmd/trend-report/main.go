package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"demand-trend/internal/config"
	"demand-trend/internal/database"
	"demand-trend/internal/history"
	"demand-trend/internal/report"
	"demand-trend/internal/services"
	"demand-trend/internal/trend"

	"github.com/joho/godotenv"
	"github.com/xuri/excelize/v2"
)

var (
	mode     = flag.String("mode", "compare", "compare | trend")
	customer = flag.String("customer", "", "customer code")
	product  = flag.String("product", "", "customer part number")
	batchA   = flag.String("a", "", "first batch (RFC 3339 or unix seconds); default: the one before -b")
	batchB   = flag.String("b", "", "second batch, or the batch to chart in trend mode; default: latest")
	window   = flag.Int("window", -1, "trailing window in days (default from COMPARE_WINDOW_DAYS)")
	lagFlag  = flag.String("lag", "rows", "week-over-week lag: rows | calendar")
	xlsxOut  = flag.String("xlsx", "", "also write the report to this .xlsx file")
)

func parseBatch(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := history.ParseBatchID(s)
	if err != nil {
		log.Fatal(err)
	}
	return t
}

func main() {
	flag.Parse()
	if *customer == "" || *product == "" {
		log.Fatal("-customer and -product are required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()
	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	svc := services.NewDemandService(history.NewStore(db, cfg.InsertBatchSize), cfg.CompareWindowDays)
	ctx := context.Background()

	switch *mode {
	case "compare":
		q := services.ComparisonQuery{
			Customer: *customer,
			Product:  *product,
			BatchA:   parseBatch(*batchA),
			BatchB:   parseBatch(*batchB),
		}
		if *window >= 0 {
			q.WindowDays = window
		}
		cmp, err := svc.GetComparison(ctx, q)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if err := report.WriteComparison(os.Stdout, cmp); err != nil {
			log.Fatal(err)
		}
		if *xlsxOut != "" {
			f, err := report.ComparisonWorkbook(cmp)
			if err != nil {
				log.Fatal(err)
			}
			saveWorkbook(f)
		}
	case "trend":
		lag, ok := trend.ParseLag(*lagFlag)
		if !ok {
			log.Fatalf("unknown -lag %q", *lagFlag)
		}
		tr, err := svc.GetDailyTrend(ctx, *customer, *product, parseBatch(*batchB), lag)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if err := report.WriteTrend(os.Stdout, tr); err != nil {
			log.Fatal(err)
		}
		if *xlsxOut != "" {
			f, err := report.TrendWorkbook(tr)
			if err != nil {
				log.Fatal(err)
			}
			saveWorkbook(f)
		}
	default:
		log.Fatalf("unknown -mode %q", *mode)
	}
}

func saveWorkbook(f *excelize.File) {
	defer f.Close()
	if err := f.SaveAs(*xlsxOut); err != nil {
		log.Fatalf("save %s: %v", *xlsxOut, err)
	}
	log.Printf("📄 report written to %s", *xlsxOut)
}
