package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"demand-trend/internal/database/dbtest"
	"demand-trend/internal/history"
	"demand-trend/internal/models"
	"demand-trend/internal/services"
	"demand-trend/internal/services/remote"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const extractA = "ship_date,customer_code,customer_part_no,order_qty\n2024-01-01,CUST1,PART1,10\n"
const extractB = "Ship Date,Customer Code,Customer Part No,Order Quantity\n2024-01-02,CUST1,PART1,20\n"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := services.NewDemandService(history.NewStore(dbtest.New(t), 0), 150)
	r := gin.New()
	r.Use(RequestID())
	SetupRoutes(r.Group("/api/v1"), svc, remote.NewFetcher(5*time.Second, 1<<20), 1<<20)
	return r
}

func upload(t *testing.T, r http.Handler, name, content, nominal string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	if nominal != "" {
		mw.WriteField("nominal_date", nominal)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func TestUploadThenDuplicate(t *testing.T) {
	r := newRouter(t)

	w := upload(t, r, "a.csv", extractA, "2024-01-05")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	var first services.IngestResult
	json.Unmarshal(decode(t, w).Data, &first)
	if first.Stored != 1 || first.BatchID == nil {
		t.Fatalf("result = %+v", first)
	}

	w = upload(t, r, "a-again.csv", extractA, "2024-01-05")
	env := decode(t, w)
	if w.Code != http.StatusOK || env.Msg != "duplicate" {
		t.Fatalf("duplicate status = %d msg = %q", w.Code, env.Msg)
	}
	var dup services.IngestResult
	json.Unmarshal(env.Data, &dup)
	if !dup.Duplicate || dup.BatchID == nil || !dup.BatchID.Equal(*first.BatchID) {
		t.Errorf("duplicate result = %+v", dup)
	}
}

func TestUploadErrors(t *testing.T) {
	r := newRouter(t)

	w := upload(t, r, "short.csv", "Ship Date,Customer Code,Customer Part No\n2024-01-01,C,P\n", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing column status = %d", w.Code)
	}
	var body struct {
		MissingColumns []string `json:"missing_columns"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.MissingColumns) != 1 || body.MissingColumns[0] != "order_qty" {
		t.Errorf("missing_columns = %v", body.MissingColumns)
	}

	if w := upload(t, r, "empty.csv", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty file status = %d", w.Code)
	}
	if w := upload(t, r, "a.csv", extractA, "someday"); w.Code != http.StatusBadRequest {
		t.Errorf("bad nominal date status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader("x"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no file status = %d", w.Code)
	}
}

func TestComparisonAndTrend(t *testing.T) {
	r := newRouter(t)
	upload(t, r, "a.csv", extractA, "2024-01-04")

	w := get(r, "/api/v1/comparison?customer=CUST1&product=PART1")
	if w.Code != http.StatusConflict {
		t.Fatalf("single batch comparison status = %d body = %s", w.Code, w.Body)
	}

	if w := upload(t, r, "b.csv", extractB, "2024-01-05"); w.Code != http.StatusCreated {
		t.Fatalf("second upload status = %d", w.Code)
	}
	w = get(r, "/api/v1/comparison?customer=CUST1&product=PART1")
	if w.Code != http.StatusOK {
		t.Fatalf("comparison status = %d body = %s", w.Code, w.Body)
	}
	var cmp services.Comparison
	json.Unmarshal(decode(t, w).Data, &cmp)
	if len(cmp.Rows) != 2 || cmp.Rows[0].Diff != -10 || cmp.Rows[1].Diff != 20 {
		t.Errorf("rows = %+v", cmp.Rows)
	}

	w = get(r, "/api/v1/batches?customer=CUST1&product=PART1")
	var batches struct {
		Items []time.Time `json:"items"`
	}
	json.Unmarshal(decode(t, w).Data, &batches)
	if len(batches.Items) != 2 {
		t.Fatalf("batches = %s", w.Body)
	}

	w = get(r, "/api/v1/trend?customer=CUST1&product=PART1&lag=calendar&batch="+history.FormatBatchID(batches.Items[0]))
	if w.Code != http.StatusOK {
		t.Fatalf("trend status = %d body = %s", w.Code, w.Body)
	}
	var tr services.DailyTrend
	json.Unmarshal(decode(t, w).Data, &tr)
	if tr.WeekLag != "calendar" || len(tr.Points) != 1 || tr.Points[0].Quantity != 10 {
		t.Errorf("trend = %+v", tr)
	}

	for url, want := range map[string]int{
		"/api/v1/trend?customer=CUST1&product=PART1&lag=weekly":                 http.StatusBadRequest,
		"/api/v1/trend?customer=CUST1&product=PART1&batch=2001-01-01T00:00:00Z": http.StatusNotFound,
		"/api/v1/trend?customer=CUST1":                                          http.StatusBadRequest,
		"/api/v1/comparison?customer=CUST1&product=PART1&window_days=-3":        http.StatusBadRequest,
		"/api/v1/comparison?customer=CUST1&product=PART1&batch_a=not-a-batch":   http.StatusBadRequest,
		"/api/v1/history?customer=CUST1&product=PART1&since=2024-01-02":         http.StatusOK,
		"/api/v1/customers":                http.StatusOK,
		"/api/v1/customers/CUST1/products": http.StatusOK,
		"/api/v1/uploads?limit=5":          http.StatusOK,
	} {
		if w := get(r, url); w.Code != want {
			t.Errorf("GET %s = %d, want %d (%s)", url, w.Code, want, w.Body)
		}
	}
}

func TestRemoteUpload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/daily.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(extractA))
	}))
	defer upstream.Close()
	r := newRouter(t)

	post := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/remote", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"url":"` + upstream.URL + `/exports/daily.csv","nominal_date":"2024-01-05"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("remote upload status = %d body = %s", w.Code, w.Body)
	}
	var res services.IngestResult
	json.Unmarshal(decode(t, w).Data, &res)
	if res.Stored != 1 {
		t.Errorf("result = %+v", res)
	}

	if w := post(`{"url":"` + upstream.URL + `/missing.csv"}`); w.Code != http.StatusBadGateway {
		t.Errorf("upstream 404 status = %d", w.Code)
	}
	if w := post(`{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", w.Code)
	}
}

func TestHubBroadcastsBatchEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	r := gin.New()
	r.GET("/ws", hub.Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	up := models.UploadBatch{
		UploadID:    "u-1",
		BatchID:     time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
		NominalDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		SourceName:  "daily.csv",
		RowsStored:  3,
	}
	// the client may not be registered yet; keep publishing until it hears one
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				hub.BatchIngested(up)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev struct {
		Type string     `json:"type"`
		Data BatchEvent `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "batch_ingested" || ev.Data.BatchID != "2024-01-05T09:00:00Z" || ev.Data.RowsStored != 3 || ev.Data.NominalDate != "2024-01-05" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}
