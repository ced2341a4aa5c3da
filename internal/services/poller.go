package services

import (
	"context"
	"log"
	"time"

	"demand-trend/internal/services/remote"
)

// Poller re-fetches published extracts on a schedule and ingests them.
// Unchanged files resolve to the existing batch and store nothing.
type Poller struct {
	svc     *DemandService
	fetcher *remote.Fetcher
	urls    []string
	sheet   string
}

func NewPoller(svc *DemandService, fetcher *remote.Fetcher, urls []string, sheet string) *Poller {
	return &Poller{svc: svc, fetcher: fetcher, urls: urls, sheet: sheet}
}

// PollSummary counts the outcome of one pass.
type PollSummary struct {
	Stored     int
	Duplicates int
	Empty      int
	Failed     int
}

// RunOnce fetches and ingests every URL once. Per-URL failures are logged
// and counted, never returned.
func (p *Poller) RunOnce(ctx context.Context) PollSummary {
	var sum PollSummary
	for _, u := range p.urls {
		ext, err := p.fetcher.Fetch(ctx, u)
		if err != nil {
			log.Printf("   ⚠️ %v", err)
			sum.Failed++
			continue
		}
		res, err := p.svc.Ingest(ctx, IngestRequest{Source: ext.Name, Data: ext.Data, Sheet: p.sheet})
		switch {
		case err != nil:
			log.Printf("   ⚠️ ingest %s: %v", ext.Name, err)
			sum.Failed++
		case res.Duplicate:
			sum.Duplicates++
		case res.Stored == 0:
			sum.Empty++
		default:
			sum.Stored++
		}
	}
	return sum
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	iteration := 0
	for {
		iteration++
		sum := p.RunOnce(ctx)
		log.Printf("[poll #%d] stored=%d duplicate=%d empty=%d failed=%d, next in %v",
			iteration, sum.Stored, sum.Duplicates, sum.Empty, sum.Failed, interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
