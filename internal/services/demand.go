package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"demand-trend/internal/history"
	"demand-trend/internal/ingest"
	"demand-trend/internal/metrics"
	"demand-trend/internal/models"
	"demand-trend/internal/trend"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InsufficientHistoryError is returned when a comparison needs two upload
// batches and the slice has fewer.
type InsufficientHistoryError struct {
	Customer string
	Product  string
	Batches  int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("customer %s product %s has %d upload batch(es); comparison needs two",
		e.Customer, e.Product, e.Batches)
}

var (
	// ErrBatchNotFound means the requested batch holds no rows for the slice.
	ErrBatchNotFound = errors.New("upload batch not found")
	// ErrNoHistory means the slice has never been ingested.
	ErrNoHistory = errors.New("no history for customer/product")
)

// Notifier is told about every stored upload.
type Notifier interface {
	BatchIngested(upload models.UploadBatch)
}

// DemandService runs the upload pipeline and answers trend queries.
type DemandService struct {
	store      *history.Store
	windowDays int
	notifier   Notifier
	now        func() time.Time
}

func NewDemandService(store *history.Store, compareWindowDays int) *DemandService {
	return &DemandService{
		store:      store,
		windowDays: compareWindowDays,
		now:        time.Now,
	}
}

// SetNotifier registers the receiver of ingestion events.
func (s *DemandService) SetNotifier(n Notifier) { s.notifier = n }

// IngestRequest is one extract to load.
type IngestRequest struct {
	Source string
	Data   []byte
	Sheet  string
	// NominalDate is the day the extract represents; zero means today.
	NominalDate time.Time
}

// IngestResult reports what happened to an extract. Excluded rows are always
// counted, whether or not anything was stored.
type IngestResult struct {
	UploadID    string                   `json:"upload_id,omitempty"`
	BatchID     *time.Time               `json:"batch_id,omitempty"`
	NominalDate time.Time                `json:"nominal_date"`
	Variant     string                   `json:"variant"`
	RowsRead    int                      `json:"rows_read"`
	Stored      int                      `json:"stored"`
	Excluded    int                      `json:"excluded"`
	Warnings    []ingest.InvalidRowError `json:"warnings,omitempty"`
	Shadowed    []string                 `json:"shadowed_columns,omitempty"`
	Duplicate   bool                     `json:"duplicate"`
}

const maxLoggedWarnings = 20

// Ingest parses, validates and stores one extract as a new upload batch.
// Re-sending identical content for the same nominal date stores nothing and
// returns the earlier batch with Duplicate set.
func (s *DemandService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	now := s.now()
	nominal := req.NominalDate
	if nominal.IsZero() {
		nominal = now
	}
	nominal = models.Day(nominal)

	tbl, err := ingest.Parse(req.Data, req.Source, req.Sheet)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultRejected, 0, 0)
		return nil, err
	}
	res, err := ingest.Validate(tbl)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultRejected, 0, 0)
		return nil, err
	}
	for i, w := range res.Warnings {
		if i == maxLoggedWarnings {
			log.Printf("⚠️  %s: %d more excluded rows not shown", req.Source, len(res.Warnings)-i)
			break
		}
		log.Printf("⚠️  %s: excluded %s", req.Source, w.Error())
	}

	out := &IngestResult{
		NominalDate: nominal,
		Variant:     res.Variant,
		RowsRead:    res.RowsRead,
		Excluded:    res.Excluded,
		Warnings:    res.Warnings,
		Shadowed:    res.Shadowed,
	}

	key := ingest.IdempotencyKey(req.Data, nominal)
	prev, err := s.store.FindUpload(ctx, key)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultFailed, 0, 0)
		return nil, err
	}
	if prev != nil {
		batch := prev.BatchID.UTC()
		out.UploadID = prev.UploadID
		out.BatchID = &batch
		out.Duplicate = true
		metrics.ObserveUpload(metrics.ResultDuplicate, 0, 0)
		log.Printf("ℹ️  %s already ingested as batch %s, skipping", req.Source, history.FormatBatchID(batch))
		return out, nil
	}

	if len(res.Records) == 0 {
		metrics.ObserveUpload(metrics.ResultEmpty, 0, res.Excluded)
		log.Printf("⚠️  %s: no valid rows (%d excluded), nothing stored", req.Source, res.Excluded)
		return out, nil
	}

	batchID, err := s.freshBatchID(ctx, now)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultFailed, 0, 0)
		return nil, err
	}
	warnings, _ := json.Marshal(res.Warnings)
	upload := &models.UploadBatch{
		UploadID:       uuid.NewString(),
		BatchID:        batchID,
		NominalDate:    nominal,
		IdempotencyKey: key,
		SourceName:     req.Source,
		Variant:        res.Variant,
		RowsRead:       res.RowsRead,
		RowsExcluded:   res.Excluded,
		Warnings:       datatypes.JSON(warnings),
	}
	stored, err := s.store.AppendUpload(ctx, upload, res.Records)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultFailed, 0, 0)
		return nil, err
	}
	metrics.ObserveUpload(metrics.ResultStored, stored, res.Excluded)
	log.Printf("✅ %s: stored %d rows as batch %s (%d excluded, variant %s)",
		req.Source, stored, history.FormatBatchID(batchID), res.Excluded, res.Variant)

	out.UploadID = upload.UploadID
	out.BatchID = &upload.BatchID
	out.Stored = stored
	if s.notifier != nil {
		s.notifier.BatchIngested(*upload)
	}
	return out, nil
}

// freshBatchID returns the ingestion instant, moved forward a second at a
// time past any batch already using it.
func (s *DemandService) freshBatchID(ctx context.Context, now time.Time) (time.Time, error) {
	id := history.BatchID(now)
	for i := 0; i < 60; i++ {
		taken, err := s.store.BatchExists(ctx, id)
		if err != nil {
			return time.Time{}, err
		}
		if !taken {
			return id, nil
		}
		id = id.Add(time.Second)
	}
	return time.Time{}, fmt.Errorf("no free batch id near %s", history.FormatBatchID(now))
}

// ListCustomers returns every customer with history.
func (s *DemandService) ListCustomers(ctx context.Context) ([]string, error) {
	defer metrics.TimeQuery("list_customers")()
	return s.store.Customers(ctx)
}

// ListProducts returns the part numbers seen for a customer.
func (s *DemandService) ListProducts(ctx context.Context, customer string) ([]string, error) {
	defer metrics.TimeQuery("list_products")()
	return s.store.Products(ctx, customer)
}

// ListUploadBatches returns the batches holding rows for a slice, oldest first.
func (s *DemandService) ListUploadBatches(ctx context.Context, customer, product string) ([]time.Time, error) {
	defer metrics.TimeQuery("list_batches")()
	return s.store.DistinctBatches(ctx, customer, product)
}

// ListUploads returns recent upload records.
func (s *DemandService) ListUploads(ctx context.Context, limit int) ([]models.UploadBatch, error) {
	return s.store.Uploads(ctx, limit)
}

// History returns raw entries for a slice shipping on or after since.
func (s *DemandService) History(ctx context.Context, customer, product string, since time.Time) ([]models.HistoryEntry, error) {
	defer metrics.TimeQuery("history")()
	return s.store.QueryRange(ctx, since, customer, product)
}

// ComparisonQuery selects two batches of one slice. Zero batches default to
// the two most recent ones; a zero BatchA alone means the batch before BatchB.
// WindowDays overrides the configured trailing window when set.
type ComparisonQuery struct {
	Customer   string
	Product    string
	BatchA     time.Time
	BatchB     time.Time
	WindowDays *int
}

// Comparison is the date-aligned view of two batches.
type Comparison struct {
	Customer   string                 `json:"customer"`
	Product    string                 `json:"product"`
	BatchA     time.Time              `json:"batch_a"`
	BatchB     time.Time              `json:"batch_b"`
	WindowDays int                    `json:"window_days"`
	Rows       []models.ComparisonRow `json:"rows"`
}

// GetComparison aggregates two batches of a slice and outer-joins them on date.
func (s *DemandService) GetComparison(ctx context.Context, q ComparisonQuery) (*Comparison, error) {
	defer metrics.TimeQuery("comparison")()

	batches, err := s.store.DistinctBatches(ctx, q.Customer, q.Product)
	if err != nil {
		return nil, err
	}
	if len(batches) < 2 {
		return nil, &InsufficientHistoryError{Customer: q.Customer, Product: q.Product, Batches: len(batches)}
	}
	a, b, err := pickPair(batches, history.BatchID(q.BatchA), history.BatchID(q.BatchB), q)
	if err != nil {
		return nil, err
	}

	entriesA, err := s.store.QueryBatch(ctx, a, q.Customer, q.Product)
	if err != nil {
		return nil, err
	}
	entriesB, err := s.store.QueryBatch(ctx, b, q.Customer, q.Product)
	if err != nil {
		return nil, err
	}

	window := s.windowDays
	if q.WindowDays != nil {
		window = *q.WindowDays
	}
	rows := trend.Window(trend.Compare(trend.Daily(entriesA), trend.Daily(entriesB)), window)
	return &Comparison{
		Customer:   q.Customer,
		Product:    q.Product,
		BatchA:     a,
		BatchB:     b,
		WindowDays: window,
		Rows:       rows,
	}, nil
}

func pickPair(batches []time.Time, a, b time.Time, q ComparisonQuery) (time.Time, time.Time, error) {
	latest := batches[len(batches)-1]
	switch {
	case q.BatchA.IsZero() && q.BatchB.IsZero():
		return batches[len(batches)-2], latest, nil
	case q.BatchA.IsZero():
		i := indexOf(batches, b)
		if i < 0 {
			return time.Time{}, time.Time{}, batchNotFound(b)
		}
		if i == 0 {
			return time.Time{}, time.Time{}, &InsufficientHistoryError{Customer: q.Customer, Product: q.Product, Batches: 1}
		}
		return batches[i-1], b, nil
	case q.BatchB.IsZero():
		if indexOf(batches, a) < 0 {
			return time.Time{}, time.Time{}, batchNotFound(a)
		}
		if a.Equal(latest) {
			return time.Time{}, time.Time{}, &InsufficientHistoryError{Customer: q.Customer, Product: q.Product, Batches: 1}
		}
		return a, latest, nil
	}
	if indexOf(batches, a) < 0 {
		return time.Time{}, time.Time{}, batchNotFound(a)
	}
	if indexOf(batches, b) < 0 {
		return time.Time{}, time.Time{}, batchNotFound(b)
	}
	return a, b, nil
}

func indexOf(batches []time.Time, t time.Time) int {
	for i, b := range batches {
		if b.Equal(t) {
			return i
		}
	}
	return -1
}

func batchNotFound(t time.Time) error {
	return fmt.Errorf("%w: %s", ErrBatchNotFound, history.FormatBatchID(t))
}

// DailyTrend is one batch's daily series with lagged differences. WeekLag
// tells the caller how week-over-week was computed.
type DailyTrend struct {
	Customer string              `json:"customer"`
	Product  string              `json:"product"`
	Batch    time.Time           `json:"batch"`
	WeekLag  trend.Lag           `json:"week_lag"`
	Points   []models.TrendPoint `json:"points"`
	Summary  *trend.Summary      `json:"summary,omitempty"`
}

// GetDailyTrend returns the daily series of one batch (the latest when batch
// is zero) with day-over-day and week-over-week differences.
func (s *DemandService) GetDailyTrend(ctx context.Context, customer, product string, batch time.Time, lag trend.Lag) (*DailyTrend, error) {
	defer metrics.TimeQuery("daily_trend")()

	batches, err := s.store.DistinctBatches(ctx, customer, product)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoHistory, customer, product)
	}
	if batch.IsZero() {
		batch = batches[len(batches)-1]
	} else {
		batch = history.BatchID(batch)
		if indexOf(batches, batch) < 0 {
			return nil, batchNotFound(batch)
		}
	}

	entries, err := s.store.QueryBatch(ctx, batch, customer, product)
	if err != nil {
		return nil, err
	}
	points := trend.WithMA7(trend.Deltas(trend.Daily(entries), lag))
	out := &DailyTrend{
		Customer: customer,
		Product:  product,
		Batch:    batch,
		WeekLag:  lag,
		Points:   points,
	}
	if sum, ok := trend.Summarize(points); ok {
		out.Summary = &sum
	}
	return out, nil
}
