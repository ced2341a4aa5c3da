// Package report renders comparisons and trends for the command line and as
// spreadsheets.
package report

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"demand-trend/internal/history"
	"demand-trend/internal/models"
	"demand-trend/internal/services"

	"github.com/xuri/excelize/v2"
)

func optInt(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}

// WriteComparison prints a comparison as an aligned table.
func WriteComparison(w io.Writer, cmp *services.Comparison) error {
	fmt.Fprintf(w, "%s / %s\n", cmp.Customer, cmp.Product)
	fmt.Fprintf(w, "A = %s   B = %s   window = %d days\n\n",
		history.FormatBatchID(cmp.BatchA), history.FormatBatchID(cmp.BatchB), cmp.WindowDays)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tA\tB\tdiff\t")
	var totalA, totalB int64
	for _, r := range cmp.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%+d\t\n", r.Date.Format(models.DateLayout), r.SeriesA, r.SeriesB, r.Diff)
		totalA += r.SeriesA
		totalB += r.SeriesB
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%+d\t\n", totalA, totalB, totalB-totalA)
	return tw.Flush()
}

// WriteTrend prints a daily trend as an aligned table.
func WriteTrend(w io.Writer, tr *services.DailyTrend) error {
	fmt.Fprintf(w, "%s / %s   batch %s   week lag: %s\n\n",
		tr.Customer, tr.Product, history.FormatBatchID(tr.Batch), tr.WeekLag)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tqty\tvs day\tvs week\t")
	for _, p := range tr.Points {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", p.Date.Format(models.DateLayout), p.Quantity, optInt(p.DayDiff), optInt(p.WeekDiff))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if tr.Summary != nil {
		fmt.Fprintf(w, "\nlatest %s: %d (day %s, week %s)\n",
			tr.Summary.LatestDate.Format(models.DateLayout), tr.Summary.LatestQuantity,
			optInt(tr.Summary.ChangeVsPrevDay), optInt(tr.Summary.ChangeVsPrevWeek))
	}
	return nil
}

const (
	comparisonSheet = "Comparison"
	trendSheet      = "Trend"
)

func newWorkbook(sheet string, header []interface{}) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", "A", 12); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func cellInt(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// ComparisonWorkbook builds a one-sheet workbook of a comparison.
func ComparisonWorkbook(cmp *services.Comparison) (*excelize.File, error) {
	f, err := newWorkbook(comparisonSheet, []interface{}{
		"date",
		"batch " + history.FormatBatchID(cmp.BatchA),
		"batch " + history.FormatBatchID(cmp.BatchB),
		"diff",
	})
	if err != nil {
		return nil, err
	}
	for i, r := range cmp.Rows {
		if err := setRow(f, comparisonSheet, i+2, []interface{}{
			r.Date.Format(models.DateLayout), r.SeriesA, r.SeriesB, r.Diff,
		}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// TrendWorkbook builds a one-sheet workbook of a daily trend.
func TrendWorkbook(tr *services.DailyTrend) (*excelize.File, error) {
	f, err := newWorkbook(trendSheet, []interface{}{"date", "quantity", "day_diff", "week_diff (" + string(tr.WeekLag) + ")"})
	if err != nil {
		return nil, err
	}
	for i, p := range tr.Points {
		if err := setRow(f, trendSheet, i+2, []interface{}{
			p.Date.Format(models.DateLayout), p.Quantity, cellInt(p.DayDiff), cellInt(p.WeekDiff),
		}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
