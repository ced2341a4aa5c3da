// Package remote downloads extracts published over HTTP.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher pulls an extract file from a URL.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// Extract is a downloaded file and the name it should be recorded under.
type Extract struct {
	Name string
	Data []byte
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, */*")

	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads rawURL. Non-2xx responses and bodies over the size limit
// are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Extract, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid extract url %q", rawURL)
	}

	resp, err := f.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u.Redacted(), resp.Status())
	}

	var src io.Reader = raw
	if f.maxBytes > 0 {
		src = io.LimitReader(raw, f.maxBytes+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", u.Redacted(), err)
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: extract exceeds %d bytes", u.Redacted(), f.maxBytes)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = u.Host
	}
	return &Extract{Name: name, Data: body}, nil
}
