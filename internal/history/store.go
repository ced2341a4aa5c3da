// Package history is the append-only store of ingested demand rows.
package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"demand-trend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageWriteError wraps any failure to persist a batch. Nothing from the
// failed batch is visible afterwards.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string { return fmt.Sprintf("storage write (%s): %v", e.Op, e.Err) }
func (e *StorageWriteError) Unwrap() error { return e.Err }

// StorageReadError wraps any failure to read history.
type StorageReadError struct {
	Op  string
	Err error
}

func (e *StorageReadError) Error() string { return fmt.Sprintf("storage read (%s): %v", e.Op, e.Err) }
func (e *StorageReadError) Unwrap() error { return e.Err }

const defaultInsertBatchSize = 500

// Store persists DemandHistory rows through gorm. It never retries.
type Store struct {
	db        *gorm.DB
	batchSize int
}

func NewStore(db *gorm.DB, insertBatchSize int) *Store {
	if insertBatchSize <= 0 {
		insertBatchSize = defaultInsertBatchSize
	}
	return &Store{db: db, batchSize: insertBatchSize}
}

// BatchID normalises an ingestion instant to the identifier stored in
// upload_date.
func BatchID(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// AppendBatch inserts records tagged with batchID in a single transaction
// and returns how many were written.
func (s *Store) AppendBatch(ctx context.Context, records []models.CanonicalRecord, batchID time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = s.insertRows(tx, records, batchID)
		return err
	})
	if err != nil {
		return 0, &StorageWriteError{Op: "append_batch", Err: err}
	}
	return n, nil
}

// AppendUpload writes the upload record and its rows in one transaction.
// upload.BatchID tags every row.
func (s *Store) AppendUpload(ctx context.Context, upload *models.UploadBatch, records []models.CanonicalRecord) (int, error) {
	upload.BatchID = BatchID(upload.BatchID)
	var n int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload.RowsStored = len(records)
		if err := tx.Create(upload).Error; err != nil {
			return fmt.Errorf("create upload record: %w", err)
		}
		var err error
		n, err = s.insertRows(tx, records, upload.BatchID)
		return err
	})
	if err != nil {
		return 0, &StorageWriteError{Op: "append_upload", Err: err}
	}
	return n, nil
}

func (s *Store) insertRows(tx *gorm.DB, records []models.CanonicalRecord, batchID time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	batchID = BatchID(batchID)
	rows := make([]models.DemandHistory, len(records))
	for i, r := range records {
		rows[i] = models.DemandHistory{
			UploadDate:     batchID,
			ShipDate:       models.Day(r.ShipDate),
			CustomerCode:   r.CustomerCode,
			CustomerPartNo: r.CustomerPartNo,
			OrderQty:       r.OrderQty,
		}
	}
	res := tx.CreateInBatches(rows, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert demand rows: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// QueryRange returns entries shipping on or after minDate, ordered by ship
// date then batch. Empty customer or product means no filter on it.
func (s *Store) QueryRange(ctx context.Context, minDate time.Time, customer, product string) ([]models.HistoryEntry, error) {
	q := s.db.WithContext(ctx).Model(&models.DemandHistory{})
	if !minDate.IsZero() {
		q = q.Where("ship_date >= ?", models.Day(minDate))
	}
	q = sliceFilter(q, customer, product)
	return s.find(q, "query_range")
}

// QueryBatch returns one batch's entries for a slice, ordered by ship date.
func (s *Store) QueryBatch(ctx context.Context, batchID time.Time, customer, product string) ([]models.HistoryEntry, error) {
	q := s.db.WithContext(ctx).Model(&models.DemandHistory{}).Where("upload_date = ?", BatchID(batchID))
	q = sliceFilter(q, customer, product)
	return s.find(q, "query_batch")
}

func (s *Store) find(q *gorm.DB, op string) ([]models.HistoryEntry, error) {
	var rows []models.DemandHistory
	if err := q.Order("ship_date ASC, upload_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, &StorageReadError{Op: op, Err: err}
	}
	out := make([]models.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = models.HistoryEntry{CanonicalRecord: r.Record(), UploadBatch: r.UploadDate.UTC()}
	}
	return out, nil
}

func sliceFilter(q *gorm.DB, customer, product string) *gorm.DB {
	if customer != "" {
		q = q.Where("customer_code = ?", customer)
	}
	if product != "" {
		q = q.Where("customer_part_no = ?", product)
	}
	return q
}

// DistinctBatches lists the upload batches holding rows for a slice, oldest
// first.
func (s *Store) DistinctBatches(ctx context.Context, customer, product string) ([]time.Time, error) {
	var batches []time.Time
	q := sliceFilter(s.db.WithContext(ctx).Model(&models.DemandHistory{}), customer, product)
	if err := q.Distinct("upload_date").Order("upload_date ASC").Pluck("upload_date", &batches).Error; err != nil {
		return nil, &StorageReadError{Op: "distinct_batches", Err: err}
	}
	for i := range batches {
		batches[i] = batches[i].UTC()
	}
	return batches, nil
}

// Customers lists every customer code with history.
func (s *Store) Customers(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.DemandHistory{}).
		Distinct("customer_code").Order("customer_code ASC").Pluck("customer_code", &out).Error
	if err != nil {
		return nil, &StorageReadError{Op: "customers", Err: err}
	}
	return out, nil
}

// Products lists the part numbers recorded for a customer.
func (s *Store) Products(ctx context.Context, customer string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.DemandHistory{}).
		Where("customer_code = ?", customer).
		Distinct("customer_part_no").Order("customer_part_no ASC").Pluck("customer_part_no", &out).Error
	if err != nil {
		return nil, &StorageReadError{Op: "products", Err: err}
	}
	return out, nil
}

// FindUpload looks up a previous upload by idempotency key. It returns
// (nil, nil) when there is none.
func (s *Store) FindUpload(ctx context.Context, key string) (*models.UploadBatch, error) {
	var u models.UploadBatch
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageReadError{Op: "find_upload", Err: err}
	}
	return &u, nil
}

// Uploads returns the most recent upload records, newest first.
func (s *Store) Uploads(ctx context.Context, limit int) ([]models.UploadBatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []models.UploadBatch
	if err := s.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "batch_id"}, Desc: true}).Limit(limit).Find(&out).Error; err != nil {
		return nil, &StorageReadError{Op: "uploads", Err: err}
	}
	return out, nil
}

// BatchExists reports whether any upload or row already uses batchID.
func (s *Store) BatchExists(ctx context.Context, batchID time.Time) (bool, error) {
	batchID = BatchID(batchID)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UploadBatch{}).Where("batch_id = ?", batchID).Count(&n).Error; err != nil {
		return false, &StorageReadError{Op: "batch_exists", Err: err}
	}
	if n > 0 {
		return true, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.DemandHistory{}).Where("upload_date = ?", batchID).Count(&n).Error; err != nil {
		return false, &StorageReadError{Op: "batch_exists", Err: err}
	}
	return n > 0, nil
}

// Count returns the number of stored history rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.DemandHistory{}).Count(&n).Error; err != nil {
		return 0, &StorageReadError{Op: "count", Err: err}
	}
	return n, nil
}

// ParseBatchID reads a batch identifier as written by FormatBatchID (RFC 3339)
// or as unix seconds.
func ParseBatchID(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return BatchID(t), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return BatchID(time.Unix(secs, 0)), nil
	}
	return time.Time{}, fmt.Errorf("invalid batch id %q", s)
}

// FormatBatchID renders a batch identifier for URLs and reports.
func FormatBatchID(t time.Time) string {
	return BatchID(t).Format(time.RFC3339)
}
