package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"demand-trend/internal/models"
	"demand-trend/internal/services"
	"demand-trend/internal/trend"

	"github.com/xuri/excelize/v2"
)

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func sampleComparison() *services.Comparison {
	return &services.Comparison{
		Customer:   "CUST1",
		Product:    "PART1",
		BatchA:     time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC),
		BatchB:     time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
		WindowDays: 150,
		Rows: []models.ComparisonRow{
			{Date: day(1), SeriesA: 10, SeriesB: 0, Diff: -10},
			{Date: day(2), SeriesA: 0, SeriesB: 20, Diff: 20},
		},
	}
}

func sampleTrend() *services.DailyTrend {
	var series []models.DailyAggregate
	for i := 1; i <= 9; i++ {
		series = append(series, models.DailyAggregate{Date: day(i), Quantity: int64(i * 10)})
	}
	pts := trend.Deltas(series, trend.LagRows)
	sum, _ := trend.Summarize(pts)
	return &services.DailyTrend{
		Customer: "CUST1",
		Product:  "PART1",
		Batch:    time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		WeekLag:  trend.LagRows,
		Points:   pts,
		Summary:  &sum,
	}
}

func TestWriteComparison(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteComparison(&buf, sampleComparison()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"CUST1 / PART1", "2024-01-04T09:00:00Z", "2024-01-01", "-10", "+20", "total"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTrend(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrend(&buf, sampleTrend()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "week lag: rows") || !strings.Contains(out, "latest 2024-01-09: 90 (day 10, week 70)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestComparisonWorkbook(t *testing.T) {
	f, err := ComparisonWorkbook(sampleComparison())
	if err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	f.Close()
	if err != nil {
		t.Fatal(err)
	}

	back, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatal(err)
	}
	defer back.Close()
	rows, err := back.GetRows("Comparison")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][1] != "batch 2024-01-04T09:00:00Z" || rows[2][0] != "2024-01-02" || rows[2][3] != "20" {
		t.Errorf("rows = %v", rows)
	}
}

func TestTrendWorkbookLeavesMissingDiffsBlank(t *testing.T) {
	f, err := TrendWorkbook(sampleTrend())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	first, _ := f.GetCellValue("Trend", "C2")
	if first != "" {
		t.Errorf("first day diff = %q, want blank", first)
	}
	week, _ := f.GetCellValue("Trend", "D9")
	if week != "70" {
		t.Errorf("week diff at row 9 = %q, want 70", week)
	}
	header, _ := f.GetCellValue("Trend", "D1")
	if header != "week_diff (rows)" {
		t.Errorf("header = %q", header)
	}
}
