package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exports/daily.csv":
			w.Write([]byte("Ship Date,Customer Code,Customer Part No,Order Quantity\n"))
		case "/big.csv":
			w.Write([]byte(strings.Repeat("x", 64)))
		case "/stream.csv":
			chunk := []byte(strings.Repeat("y", 64<<10))
			for i := 0; i < 128; i++ {
				if _, err := w.Write(chunk); err != nil {
					return
				}
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	if _, err := NewFetcher(5*time.Second, 32).Fetch(ctx, srv.URL+"/big.csv"); err == nil {
		t.Fatal("expected size limit error")
	}
	_, err := NewFetcher(5*time.Second, 1<<10).Fetch(ctx, srv.URL+"/stream.csv")
	if err == nil || !strings.Contains(err.Error(), "exceeds 1024 bytes") {
		t.Fatalf("oversized stream error = %v", err)
	}

	f := NewFetcher(5*time.Second, 1<<20)
	ex, err := f.Fetch(ctx, srv.URL+"/exports/daily.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ex.Name != "daily.csv" || !strings.HasPrefix(string(ex.Data), "Ship Date") {
		t.Errorf("extract = %q %q", ex.Name, ex.Data)
	}

	if _, err := f.Fetch(ctx, srv.URL+"/missing.csv"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := f.Fetch(ctx, "ftp://example.com/x.csv"); err == nil {
		t.Error("expected error for non-http url")
	}
}
