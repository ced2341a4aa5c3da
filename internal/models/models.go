package models

import (
	"time"

	"gorm.io/datatypes"
)

// CanonicalRecord is one validated extract row in the canonical schema.
type CanonicalRecord struct {
	ShipDate       time.Time `json:"ship_date"`
	CustomerCode   string    `json:"customer_code"`
	CustomerPartNo string    `json:"customer_part_no"`
	OrderQty       int64     `json:"order_qty"`
}

// DemandHistory is the persisted form of a history entry. Rows are
// append-only: written once per upload batch and never updated.
type DemandHistory struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	UploadDate     time.Time `json:"upload_date" gorm:"not null;index:idx_dh_slice,priority:3;index"`
	ShipDate       time.Time `json:"ship_date" gorm:"type:date;not null;index"`
	CustomerCode   string    `json:"customer_code" gorm:"size:64;not null;index:idx_dh_slice,priority:1"`
	CustomerPartNo string    `json:"customer_part_no" gorm:"size:128;not null;index:idx_dh_slice,priority:2"`
	OrderQty       int64     `json:"order_qty" gorm:"not null"`
}

func (DemandHistory) TableName() string { return "demand_history" }

// Record returns the canonical part of the entry.
func (h DemandHistory) Record() CanonicalRecord {
	return CanonicalRecord{
		ShipDate:       Day(h.ShipDate),
		CustomerCode:   h.CustomerCode,
		CustomerPartNo: h.CustomerPartNo,
		OrderQty:       h.OrderQty,
	}
}

// UploadBatch records one successful ingestion. The idempotency key
// (content hash + nominal date) is unique, so re-sending the same extract
// for the same day cannot create a second batch.
type UploadBatch struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	UploadID       string         `json:"upload_id" gorm:"size:36;uniqueIndex;not null"`
	BatchID        time.Time      `json:"batch_id" gorm:"uniqueIndex;not null"`
	NominalDate    time.Time      `json:"nominal_date" gorm:"type:date;not null;index"`
	IdempotencyKey string         `json:"idempotency_key" gorm:"size:64;uniqueIndex;not null"`
	SourceName     string         `json:"source_name" gorm:"size:255"`
	Variant        string         `json:"variant" gorm:"size:32"`
	RowsRead       int            `json:"rows_read"`
	RowsStored     int            `json:"rows_stored"`
	RowsExcluded   int            `json:"rows_excluded"`
	Warnings       datatypes.JSON `json:"warnings,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// HistoryEntry is a canonical record tagged with the batch that ingested it.
type HistoryEntry struct {
	CanonicalRecord
	UploadBatch time.Time `json:"upload_batch"`
}

// DailyAggregate is the summed order quantity for one calendar day.
type DailyAggregate struct {
	Date     time.Time `json:"date"`
	Quantity int64     `json:"quantity"`
}

// ComparisonRow aligns two daily series on one date. Diff is SeriesB - SeriesA.
type ComparisonRow struct {
	Date    time.Time `json:"date"`
	SeriesA int64     `json:"series_a"`
	SeriesB int64     `json:"series_b"`
	Diff    int64     `json:"diff"`
}

// TrendPoint is a daily aggregate with its lagged differences. A nil diff
// means there is no earlier point to compare against.
type TrendPoint struct {
	Date     time.Time `json:"date"`
	Quantity int64     `json:"quantity"`
	DayDiff  *int64    `json:"day_diff"`
	WeekDiff *int64    `json:"week_diff"`
	// MA7 is the mean quantity of this point and the six before it.
	MA7 *float64 `json:"ma7,omitempty"`
}

// Day truncates t to its calendar date, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"
