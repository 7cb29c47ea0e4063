// Package discover finds the hashed build artifacts referenced by the
// application's root document. Asset filenames change per deployment, so
// the shell asset list cannot be hardcoded; it is scanned out of the live
// markup at install time.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/netfetch"
)

// Discoverer scans the root document for entry assets.
type Discoverer struct {
	fetcher netfetch.Fetcher
	origin  *url.URL
	log     logger.Logger
}

// New creates a Discoverer for the given upstream origin.
func New(fetcher netfetch.Fetcher, upstream string, log logger.Logger) (*Discoverer, error) {
	origin, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream origin %q: %w", upstream, err)
	}
	return &Discoverer{fetcher: fetcher, origin: origin, log: log}, nil
}

// EntryAssets fetches the root document cache-bypassed and returns the
// root-relative paths of the scripts, stylesheets, and module preloads it
// references. Cross-origin references are dropped: third-party content is
// never cached under the app's own storage.
//
// A root document fetch failure yields an empty list, never an error;
// callers fall back to the static minimal shell list.
func (d *Discoverer) EntryAssets(ctx context.Context) []string {
	rootURL := d.origin.JoinPath("/").String()
	snap, err := d.fetcher.FetchFresh(ctx, rootURL)
	if err != nil {
		d.log.Warn("root document fetch failed, no entry assets discovered",
			logger.Error(err))
		return nil
	}
	if snap.Status < 200 || snap.Status > 299 {
		d.log.Warn("root document returned non-success status",
			logger.Int("status", snap.Status))
		return nil
	}
	return d.scan(snap.Body)
}

func (d *Discoverer) scan(markup []byte) []string {
	var assets []string
	seen := make(map[string]struct{})
	z := html.NewTokenizer(bytes.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return assets
		case html.StartTagToken, html.SelfClosingTagToken:
			token := z.Token()
			ref := assetRef(&token)
			if ref == "" {
				continue
			}
			path, ok := d.resolve(ref)
			if !ok {
				continue
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			assets = append(assets, path)
		}
	}
}

// assetRef returns the URL attribute of tags that name entry assets:
// <script src>, <link rel="stylesheet" href>, <link rel="modulepreload" href>.
func assetRef(token *html.Token) string {
	attrs := make(map[string]string, len(token.Attr))
	for _, a := range token.Attr {
		attrs[a.Key] = a.Val
	}
	switch token.Data {
	case "script":
		return attrs["src"]
	case "link":
		rel := strings.ToLower(attrs["rel"])
		if rel == "stylesheet" || rel == "modulepreload" {
			return attrs["href"]
		}
	}
	return ""
}

// resolve turns a markup reference into a root-relative cache key, dropping
// anything that does not live on the worker's own origin.
func (d *Discoverer) resolve(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := d.origin.ResolveReference(u)
	if abs.Scheme != d.origin.Scheme || abs.Host != d.origin.Host {
		return "", false
	}
	path := abs.EscapedPath()
	if path == "" {
		path = "/"
	}
	if abs.RawQuery != "" {
		path += "?" + abs.RawQuery
	}
	return path, true
}
