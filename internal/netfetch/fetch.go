// Package netfetch performs the worker's outbound network fetches and
// captures responses as immutable snapshots.
package netfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/urbanpack/offsync/internal/resource"
)

// ErrBadStatus is wrapped by FetchOK when the upstream answers outside 2xx.
var ErrBadStatus = fmt.Errorf("unexpected upstream status")

// Fetcher issues one-shot GETs. Implementations return an error only for
// transport-level failure; a response with any status code is still a
// snapshot, matching how a page's own fetch would behave.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*resource.Snapshot, error)
	// FetchFresh bypasses intermediary HTTP caches so the worker sees the
	// currently deployed document, not a stale copy.
	FetchFresh(ctx context.Context, url string) (*resource.Snapshot, error)
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a per-request timeout. A zero
// timeout leaves requests bounded only by the caller's context.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// NewHTTPFetcherWithClient creates a fetcher over an existing client.
// Tests use this to install an httpmock transport.
func NewHTTPFetcherWithClient(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET and captures the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*resource.Snapshot, error) {
	return f.do(ctx, url, false)
}

// FetchFresh issues a GET with Cache-Control: no-cache.
func (f *HTTPFetcher) FetchFresh(ctx context.Context, url string) (*resource.Snapshot, error) {
	return f.do(ctx, url, true)
}

func (f *HTTPFetcher) do(ctx context.Context, url string, fresh bool) (*resource.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if fresh {
		req.Header.Set("Cache-Control", "no-cache")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return &resource.Snapshot{
		URL:       url,
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		FetchedAt: time.Now(),
	}, nil
}

// Join resolves a root-relative path (optionally carrying a query string)
// against an origin URL.
func Join(origin *url.URL, path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return origin.String() + path
	}
	return origin.ResolveReference(ref).String()
}

// FetchOK fetches a URL and treats a non-2xx status as an error. Batch
// cache population uses this so error pages never land in a partition.
func FetchOK(ctx context.Context, f Fetcher, url string) (*resource.Snapshot, error) {
	snap, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if snap.Status < 200 || snap.Status > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, snap.Status)
	}
	return snap, nil
}
