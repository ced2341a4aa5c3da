package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"demand-trend/internal/services/remote"
)

func TestPollerSkipsUnchangedExtracts(t *testing.T) {
	var version atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/daily.csv":
			if version.Load() == 0 {
				w.Write([]byte(firstExtract))
			} else {
				w.Write([]byte(secondExtract))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	clock := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, &clock)
	p := NewPoller(svc, remote.NewFetcher(5*time.Second, 1<<20), []string{upstream.URL + "/daily.csv", upstream.URL + "/gone.csv"}, "")
	ctx := context.Background()

	if got := p.RunOnce(ctx); got.Stored != 1 || got.Failed != 1 {
		t.Fatalf("first pass = %+v", got)
	}
	clock = clock.Add(time.Hour)
	if got := p.RunOnce(ctx); got.Duplicates != 1 || got.Stored != 0 {
		t.Fatalf("second pass = %+v", got)
	}
	version.Store(1)
	clock = clock.Add(time.Hour)
	if got := p.RunOnce(ctx); got.Stored != 1 {
		t.Fatalf("third pass = %+v", got)
	}

	batches, _ := store.DistinctBatches(ctx, "CUST1", "PART1")
	if len(batches) != 2 {
		t.Errorf("batches = %v", batches)
	}
}

func TestPollerRunStopsWithContext(t *testing.T) {
	clock := time.Now()
	svc, _ := newTestService(t, &clock)
	p := NewPoller(svc, remote.NewFetcher(time.Second, 0), nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
