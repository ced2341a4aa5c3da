// Package trend turns history entries into daily series and compares them.
package trend

import (
	"sort"
	"time"

	"demand-trend/internal/models"
)

// Daily sums order quantity per ship date. The result is sorted by date and
// does not depend on the order of entries.
func Daily(entries []models.HistoryEntry) []models.DailyAggregate {
	sums := make(map[time.Time]int64, len(entries))
	for _, e := range entries {
		sums[models.Day(e.ShipDate)] += e.OrderQty
	}
	return fromMap(sums)
}

// DailyByBatch aggregates each upload batch separately.
func DailyByBatch(entries []models.HistoryEntry) map[time.Time][]models.DailyAggregate {
	grouped := make(map[time.Time][]models.HistoryEntry)
	for _, e := range entries {
		grouped[e.UploadBatch] = append(grouped[e.UploadBatch], e)
	}
	out := make(map[time.Time][]models.DailyAggregate, len(grouped))
	for batch, es := range grouped {
		out[batch] = Daily(es)
	}
	return out
}

func fromMap(sums map[time.Time]int64) []models.DailyAggregate {
	out := make([]models.DailyAggregate, 0, len(sums))
	for d, q := range sums {
		out = append(out, models.DailyAggregate{Date: d, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Compare full-outer-joins two daily series on date. A date missing from one
// side counts as zero there. Each date appears once, ascending.
func Compare(a, b []models.DailyAggregate) []models.ComparisonRow {
	rows := make(map[time.Time]*models.ComparisonRow, len(a)+len(b))
	get := func(d time.Time) *models.ComparisonRow {
		d = models.Day(d)
		r, ok := rows[d]
		if !ok {
			r = &models.ComparisonRow{Date: d}
			rows[d] = r
		}
		return r
	}
	for _, p := range a {
		get(p.Date).SeriesA += p.Quantity
	}
	for _, p := range b {
		get(p.Date).SeriesB += p.Quantity
	}

	out := make([]models.ComparisonRow, 0, len(rows))
	for _, r := range rows {
		r.Diff = r.SeriesB - r.SeriesA
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Window keeps rows dated on or after max(date) - days. rows must be sorted
// ascending. days <= 0 returns rows unchanged.
//
// For joined rows from Compare, max(date) is the latest date in either
// series, so when one batch runs further ahead the cutoff follows it and
// the earlier tail of the shorter series may fall outside the window.
func Window(rows []models.ComparisonRow, days int) []models.ComparisonRow {
	if days <= 0 || len(rows) == 0 {
		return rows
	}
	cutoff := rows[len(rows)-1].Date.AddDate(0, 0, -days)
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(cutoff) })
	return rows[i:]
}

// Lag selects how Deltas finds the previous day and previous week.
type Lag string

const (
	// LagRows compares with the point 1 and 7 positions earlier in the
	// series. With gaps in the ship dates, "week" is then 7 data points back,
	// not 7 calendar days.
	LagRows Lag = "rows"
	// LagCalendar compares with exactly the previous calendar day and the
	// same weekday a week earlier; a missing date yields no diff.
	LagCalendar Lag = "calendar"
)

// ParseLag maps a query value to a Lag, defaulting to LagRows.
func ParseLag(s string) (Lag, bool) {
	switch Lag(s) {
	case "", LagRows, "index":
		return LagRows, true
	case LagCalendar:
		return LagCalendar, true
	}
	return LagRows, false
}

// Deltas attaches day-over-day and week-over-week differences to a sorted
// daily series.
func Deltas(series []models.DailyAggregate, lag Lag) []models.TrendPoint {
	out := make([]models.TrendPoint, len(series))
	byDate := make(map[time.Time]int64, len(series))
	if lag == LagCalendar {
		for _, p := range series {
			byDate[models.Day(p.Date)] = p.Quantity
		}
	}
	for i, p := range series {
		pt := models.TrendPoint{Date: p.Date, Quantity: p.Quantity}
		switch lag {
		case LagCalendar:
			d := models.Day(p.Date)
			if prev, ok := byDate[d.AddDate(0, 0, -1)]; ok {
				pt.DayDiff = diff(p.Quantity, prev)
			}
			if prev, ok := byDate[d.AddDate(0, 0, -7)]; ok {
				pt.WeekDiff = diff(p.Quantity, prev)
			}
		default:
			if i >= 1 {
				pt.DayDiff = diff(p.Quantity, series[i-1].Quantity)
			}
			if i >= 7 {
				pt.WeekDiff = diff(p.Quantity, series[i-7].Quantity)
			}
		}
		out[i] = pt
	}
	return out
}

func diff(cur, prev int64) *int64 {
	d := cur - prev
	return &d
}

// Summary holds the headline numbers for the latest point of a trend.
type Summary struct {
	LatestDate       time.Time `json:"latest_date"`
	LatestQuantity   int64     `json:"latest_quantity"`
	ChangeVsPrevDay  *int64    `json:"change_vs_prev_day"`
	ChangeVsPrevWeek *int64    `json:"change_vs_prev_week"`
}

// Summarize reports the last point of a trend. ok is false for an empty one.
func Summarize(points []models.TrendPoint) (s Summary, ok bool) {
	if len(points) == 0 {
		return Summary{}, false
	}
	last := points[len(points)-1]
	return Summary{
		LatestDate:       last.Date,
		LatestQuantity:   last.Quantity,
		ChangeVsPrevDay:  last.DayDiff,
		ChangeVsPrevWeek: last.WeekDiff,
	}, true
}
