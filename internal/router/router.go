// Package router intercepts every request a page makes and applies a
// per-resource-class caching strategy. Documents and data go network-first
// because they are time-sensitive; build assets and images go cache-first
// because they are content-addressed or rarely change within a version.
// That asymmetry is deliberate and load-bearing: inverting it either serves
// stale documents indefinitely or refetches immutable bundles on every load.
package router

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/urbanpack/offsync/internal/conf"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/netfetch"
	"github.com/urbanpack/offsync/internal/partition"
	"github.com/urbanpack/offsync/internal/resource"
)

// Strategy labels the handling class chosen for a request.
type Strategy string

const (
	StrategyNavigation Strategy = "navigation"
	StrategyAsset      Strategy = "asset"
	StrategyImage      Strategy = "image"
	StrategyData       Strategy = "data"
)

var assetExts = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".map": {}, ".woff": {}, ".woff2": {},
}

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".avif": {},
}

// Router serves intercepted page requests.
type Router struct {
	registry      *partition.Registry
	fetcher       netfetch.Fetcher
	origin        *url.URL
	prefix        string
	shellVersion  string
	entityVersion string
	routes        conf.EntitySettings
	fallbackDoc   string
	log           logger.Logger
	metrics       *metrics.Metrics
}

// Config carries the construction parameters for a Router.
type Config struct {
	Registry      *partition.Registry
	Fetcher       netfetch.Fetcher
	Upstream      string
	Prefix        string
	ShellVersion  string
	EntityVersion string
	Routes        conf.EntitySettings
	// FallbackDoc is the shell document served for offline navigations with
	// no exact match. Defaults to "/".
	FallbackDoc string
	Log         logger.Logger
	Metrics     *metrics.Metrics
}

// New creates a Router.
func New(cfg Config) (*Router, error) {
	origin, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	fallbackDoc := cfg.FallbackDoc
	if fallbackDoc == "" {
		fallbackDoc = "/"
	}
	return &Router{
		registry:      cfg.Registry,
		fetcher:       cfg.Fetcher,
		origin:        origin,
		prefix:        cfg.Prefix,
		shellVersion:  cfg.ShellVersion,
		entityVersion: cfg.EntityVersion,
		routes:        cfg.Routes,
		fallbackDoc:   fallbackDoc,
		log:           cfg.Log,
		metrics:       cfg.Metrics,
	}, nil
}

// Register mounts the router as the catch-all handler.
func (rt *Router) Register(e *echo.Echo) {
	e.GET("/*", rt.Handle)
}

// Classify picks the strategy for a request from its fetch metadata and
// path, mirroring how a browser tags the request.
func Classify(r *http.Request) Strategy {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return StrategyNavigation
	}
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "document":
		return StrategyNavigation
	case "script", "style":
		return StrategyAsset
	case "image":
		return StrategyImage
	}
	ext := strings.ToLower(path.Ext(r.URL.Path))
	if _, ok := assetExts[ext]; ok {
		return StrategyAsset
	}
	if _, ok := imageExts[ext]; ok {
		return StrategyImage
	}
	// No fetch metadata, no telling extension: a browser address-bar hit
	// for an HTML document still wants the navigation path.
	if ext == "" && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return StrategyNavigation
	}
	return StrategyData
}

// Handle serves one intercepted request.
func (rt *Router) Handle(c echo.Context) error {
	req := c.Request()
	key := cacheKey(req.URL)

	switch Classify(req) {
	case StrategyNavigation:
		return rt.handleNavigation(c, key)
	case StrategyAsset:
		return rt.handleAsset(c, key)
	case StrategyImage:
		return rt.handleImage(c, key)
	default:
		return rt.handleData(c, key)
	}
}

// handleNavigation is network-first with shell fallback. On network
// failure: the exact cached match for the URL, else the shell's boot
// document, else a minimal self-reloading placeholder. The page never sees
// a blank or broken document.
func (rt *Router) handleNavigation(c echo.Context, key string) error {
	ctx := c.Request().Context()
	snap, err := rt.fetchUpstream(ctx, key)
	if err == nil {
		// A fresh entity document keeps that entity's offline copy current.
		// Only success responses are persisted: a transient upstream error
		// is served to the live page but must never replace the saved copy.
		if snap.Status >= 200 && snap.Status <= 299 {
			if id, ok := rt.matchTemplate(rt.routes.DocRoute, key); ok {
				rt.storeEntity(ctx, id, snap)
			}
		}
		return serveSnapshot(c, snap)
	}
	rt.metrics.FetchFailures.WithLabelValues("router").Inc()

	if cached, err := rt.matchAny(ctx, key); err == nil {
		rt.metrics.CacheHits.WithLabelValues(string(StrategyNavigation)).Inc()
		return serveSnapshot(c, cached)
	}
	if cached, err := rt.shellPartition().Match(ctx, rt.fallbackDoc); err == nil {
		rt.metrics.CacheHits.WithLabelValues(string(StrategyNavigation)).Inc()
		return serveSnapshot(c, cached)
	}
	rt.metrics.CacheMisses.WithLabelValues(string(StrategyNavigation)).Inc()
	return c.HTML(http.StatusServiceUnavailable, offlinePlaceholder)
}

// handleAsset is cache-first with background-less refill: cached copy if
// present, otherwise fetch-and-store, and on total failure a typed empty
// placeholder so dependent code never trips over a missing response.
func (rt *Router) handleAsset(c echo.Context, key string) error {
	ctx := c.Request().Context()
	part := rt.shellPartition()
	if cached, err := part.Match(ctx, key); err == nil {
		rt.metrics.CacheHits.WithLabelValues(string(StrategyAsset)).Inc()
		return serveSnapshot(c, cached)
	}
	rt.metrics.CacheMisses.WithLabelValues(string(StrategyAsset)).Inc()

	snap, err := rt.fetchUpstream(ctx, key)
	if err == nil {
		if snap.Status >= 200 && snap.Status <= 299 {
			rt.store(ctx, part, snap)
		}
		return serveSnapshot(c, snap)
	}
	rt.metrics.FetchFailures.WithLabelValues("router").Inc()
	return c.Blob(http.StatusOK, placeholderContentType(key), []byte{})
}

// handleImage is cache-first: cached copy, else fetch-and-store, else a
// typed unavailable response. An image must never reject the page load.
func (rt *Router) handleImage(c echo.Context, key string) error {
	ctx := c.Request().Context()
	part := rt.registry.Open(partition.ImagesName(rt.prefix, rt.shellVersion))
	if cached, err := part.Match(ctx, key); err == nil {
		rt.metrics.CacheHits.WithLabelValues(string(StrategyImage)).Inc()
		return serveSnapshot(c, cached)
	}
	rt.metrics.CacheMisses.WithLabelValues(string(StrategyImage)).Inc()

	snap, err := rt.fetchUpstream(ctx, key)
	if err == nil {
		if snap.Status >= 200 && snap.Status <= 299 {
			rt.store(ctx, part, snap)
		}
		return serveSnapshot(c, snap)
	}
	rt.metrics.FetchFailures.WithLabelValues("router").Inc()
	return c.String(http.StatusServiceUnavailable, "image unavailable offline")
}

// handleData is network-first with last-known-good fallback: try the
// network, store successes, and when the network fails serve the most
// recent whole-response snapshot previously cached for that exact URL.
// With no snapshot either, answer an explicit offline error the UI can
// render, never a hang.
func (rt *Router) handleData(c echo.Context, key string) error {
	ctx := c.Request().Context()
	snap, err := rt.fetchUpstream(ctx, key)
	if err == nil {
		if snap.Status >= 200 && snap.Status <= 299 {
			if id, ok := rt.matchTemplate(rt.routes.DataRoute, key); ok {
				rt.storeEntity(ctx, id, snap)
			} else {
				rt.store(ctx, rt.dataPartition(), snap)
			}
		}
		return serveSnapshot(c, snap)
	}
	rt.metrics.FetchFailures.WithLabelValues("router").Inc()

	if cached, err := rt.matchAny(ctx, key); err == nil {
		rt.metrics.CacheHits.WithLabelValues(string(StrategyData)).Inc()
		return serveSnapshot(c, cached)
	}
	rt.metrics.CacheMisses.WithLabelValues(string(StrategyData)).Inc()
	return c.JSON(http.StatusServiceUnavailable, map[string]any{
		"error":   "offline",
		"message": "no cached data for this request",
	})
}

func (rt *Router) shellPartition() *partition.Partition {
	return rt.registry.Open(partition.ShellName(rt.prefix, rt.shellVersion))
}

func (rt *Router) dataPartition() *partition.Partition {
	return rt.registry.Open(partition.DataName(rt.prefix, rt.shellVersion))
}

func (rt *Router) fetchUpstream(ctx context.Context, key string) (*resource.Snapshot, error) {
	snap, err := rt.fetcher.Fetch(ctx, netfetch.Join(rt.origin, key))
	if err != nil {
		return nil, err
	}
	snap.URL = key
	return snap, nil
}

// matchAny looks the key up across every partition, the way a page's cache
// match does, so an entity document found only in its own partition still
// resolves.
func (rt *Router) matchAny(ctx context.Context, key string) (*resource.Snapshot, error) {
	return rt.registry.MatchAny(ctx, key)
}

func (rt *Router) store(ctx context.Context, part *partition.Partition, snap *resource.Snapshot) {
	if err := part.Put(ctx, snap); err != nil {
		rt.log.Warn("failed to refill cache entry",
			logger.String("partition", part.Name()),
			logger.String("url", snap.URL),
			logger.Error(err))
	}
}

func (rt *Router) storeEntity(ctx context.Context, id string, snap *resource.Snapshot) {
	part := rt.registry.Open(partition.EntityName(rt.prefix, id, rt.entityVersion))
	rt.store(ctx, part, snap)
}

// matchTemplate reverse-matches a route template like "/guide/%s" against a
// path, returning the captured entity ID. Reserved slot names do not count
// as entity IDs; their responses go to the shared data partition instead of
// minting a partition name the activation sweep would misread.
func (rt *Router) matchTemplate(tmpl, key string) (string, bool) {
	i := strings.Index(tmpl, "%s")
	if i < 0 {
		return "", false
	}
	head, tail := tmpl[:i], tmpl[i+2:]
	if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, tail) {
		return "", false
	}
	id := key[len(head) : len(key)-len(tail)]
	if id == "" || strings.Contains(id, "/") || strings.Contains(id, "?") {
		return "", false
	}
	if partition.IsReservedSlot(id) {
		return "", false
	}
	return id, true
}

// cacheKey canonicalizes a request URL into a root-relative path key.
func cacheKey(u *url.URL) string {
	key := u.EscapedPath()
	if key == "" {
		key = "/"
	}
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func placeholderContentType(key string) string {
	switch strings.ToLower(path.Ext(strings.SplitN(key, "?", 2)[0])) {
	case ".css":
		return "text/css"
	case ".map":
		return "application/json"
	default:
		return "application/javascript"
	}
}

func serveSnapshot(c echo.Context, snap *resource.Snapshot) error {
	h := c.Response().Header()
	for name, values := range snap.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	ct := snap.ContentType()
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Blob(snap.Status, ct, snap.Body)
}

// offlinePlaceholder is the worst-case navigation fallback: a minimal
// document that keeps retrying until the network or a cached shell comes
// back, instead of a blank error page.
const offlinePlaceholder = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Offline</title>
</head>
<body>
  <p>You appear to be offline and this page is not saved yet. Retrying…</p>
  <script>setTimeout(function () { location.reload(); }, 3000);</script>
</body>
</html>
`
