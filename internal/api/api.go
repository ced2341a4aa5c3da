package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"demand-trend/internal/history"
	"demand-trend/internal/ingest"
	"demand-trend/internal/models"
	"demand-trend/internal/services"
	"demand-trend/internal/services/remote"
	"demand-trend/internal/trend"

	"github.com/gin-gonic/gin"
)

type APIHandler struct {
	svc            *services.DemandService
	fetcher        *remote.Fetcher
	maxUploadBytes int64
}

func SetupRoutes(r *gin.RouterGroup, svc *services.DemandService, fetcher *remote.Fetcher, maxUploadBytes int64) *APIHandler {
	handler := &APIHandler{
		svc:            svc,
		fetcher:        fetcher,
		maxUploadBytes: maxUploadBytes,
	}

	// Ingestion
	uploads := r.Group("/uploads")
	{
		uploads.POST("", handler.UploadExtract)
		uploads.POST("/remote", handler.UploadRemoteExtract)
		uploads.GET("", handler.ListUploads)
	}

	// Queries
	r.GET("/customers", handler.ListCustomers)
	r.GET("/customers/:customer/products", handler.ListProducts)
	r.GET("/batches", handler.ListBatches)
	r.GET("/history", handler.GetHistory)
	r.GET("/comparison", handler.GetComparison)
	r.GET("/trend", handler.GetDailyTrend)

	return handler
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		malformed    *ingest.MalformedInputError
		missing      *ingest.MissingColumnError
		insufficient *services.InsufficientHistoryError
		writeErr     *history.StorageWriteError
		readErr      *history.StorageReadError
	)
	switch {
	case errors.As(err, &malformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "missing_columns": missing.Columns})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "batches": insufficient.Batches})
	case errors.Is(err, services.ErrBatchNotFound), errors.Is(err, services.ErrNoHistory):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &writeErr), errors.As(err, &readErr):
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseNominalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := ingest.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid nominal_date %q", s)
	}
	return d, nil
}

func (h *APIHandler) respondIngest(c *gin.Context, res *services.IngestResult) {
	switch {
	case res.Duplicate:
		c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "duplicate", "data": res})
	case res.Stored == 0:
		c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "no valid rows", "data": res})
	default:
		c.JSON(http.StatusCreated, gin.H{"code": 201, "msg": "stored", "data": res})
	}
}

// UploadExtract ingests a multipart "file" field.
func (h *APIHandler) UploadExtract(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes)})
		return
	}
	nominal, err := parseNominalDate(c.PostForm("nominal_date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}

	res, err := h.svc.Ingest(c.Request.Context(), services.IngestRequest{
		Source:      fh.Filename,
		Data:        data,
		Sheet:       c.PostForm("sheet"),
		NominalDate: nominal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondIngest(c, res)
}

type remoteUploadRequest struct {
	URL         string `json:"url" binding:"required"`
	NominalDate string `json:"nominal_date"`
	Sheet       string `json:"sheet"`
}

// UploadRemoteExtract downloads an extract and ingests it.
func (h *APIHandler) UploadRemoteExtract(c *gin.Context) {
	var req remoteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "url is required")
		return
	}
	nominal, err := parseNominalDate(req.NominalDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ext, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed: " + err.Error()})
		return
	}
	res, err := h.svc.Ingest(c.Request.Context(), services.IngestRequest{
		Source:      ext.Name,
		Data:        ext.Data,
		Sheet:       req.Sheet,
		NominalDate: nominal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondIngest(c, res)
}

func (h *APIHandler) ListUploads(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	uploads, err := h.svc.ListUploads(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"count": len(uploads), "items": uploads})
}

func (h *APIHandler) ListCustomers(c *gin.Context) {
	customers, err := h.svc.ListCustomers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"count": len(customers), "items": customers})
}

func (h *APIHandler) ListProducts(c *gin.Context) {
	customer := c.Param("customer")
	products, err := h.svc.ListProducts(c.Request.Context(), customer)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"customer": customer, "count": len(products), "items": products})
}

// slice reads the required customer and product query parameters.
func slice(c *gin.Context) (string, string, bool) {
	customer, product := c.Query("customer"), c.Query("product")
	if customer == "" || product == "" {
		badRequest(c, "customer and product are required")
		return "", "", false
	}
	return customer, product, true
}

func batchParam(c *gin.Context, name string) (time.Time, bool) {
	s := c.Query(name)
	if s == "" {
		return time.Time{}, true
	}
	t, err := history.ParseBatchID(s)
	if err != nil {
		badRequest(c, fmt.Sprintf("%s: %v", name, err))
		return time.Time{}, false
	}
	return t, true
}

func (h *APIHandler) ListBatches(c *gin.Context) {
	customer, product, valid := slice(c)
	if !valid {
		return
	}
	batches, err := h.svc.ListUploadBatches(c.Request.Context(), customer, product)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"customer": customer, "product": product, "count": len(batches), "items": batches})
}

// GetHistory returns raw rows for a slice, optionally from a ship date on.
func (h *APIHandler) GetHistory(c *gin.Context) {
	customer, product, valid := slice(c)
	if !valid {
		return
	}
	var since time.Time
	if s := c.Query("since"); s != "" {
		d, err := time.Parse(models.DateLayout, s)
		if err != nil {
			badRequest(c, "since must be YYYY-MM-DD")
			return
		}
		since = d
	}
	entries, err := h.svc.History(c.Request.Context(), customer, product, since)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"count": len(entries), "items": entries})
}

func (h *APIHandler) GetComparison(c *gin.Context) {
	customer, product, valid := slice(c)
	if !valid {
		return
	}
	a, valid := batchParam(c, "batch_a")
	if !valid {
		return
	}
	b, valid := batchParam(c, "batch_b")
	if !valid {
		return
	}
	q := services.ComparisonQuery{Customer: customer, Product: product, BatchA: a, BatchB: b}
	if s := c.Query("window_days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days < 0 {
			badRequest(c, "window_days must be a non-negative integer")
			return
		}
		q.WindowDays = &days
	}

	cmp, err := h.svc.GetComparison(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, cmp)
}

func (h *APIHandler) GetDailyTrend(c *gin.Context) {
	customer, product, valid := slice(c)
	if !valid {
		return
	}
	batch, valid := batchParam(c, "batch")
	if !valid {
		return
	}
	lag, known := trend.ParseLag(c.Query("lag"))
	if !known {
		badRequest(c, "lag must be rows or calendar")
		return
	}

	tr, err := h.svc.GetDailyTrend(c.Request.Context(), customer, product, batch, lag)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, tr)
}
