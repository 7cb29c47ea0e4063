// Package resource defines the stored-response value passed between the
// fetch, storage, and routing layers.
package resource

import (
	"net/http"
	"time"
)

// Snapshot is an immutable capture of one network response: the canonical
// request URL it answers, plus status, headers, and body as seen at fetch
// time. Updating a URL's cached value means storing a new Snapshot, never
// mutating an old one.
type Snapshot struct {
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	FetchedAt time.Time
}

// ContentType returns the snapshot's Content-Type header, if any.
func (s *Snapshot) ContentType() string {
	if s.Header == nil {
		return ""
	}
	return s.Header.Get("Content-Type")
}

// Clone returns a deep copy so callers can hold snapshots without aliasing
// the store's buffers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		URL:       s.URL,
		Status:    s.Status,
		Header:    s.Header.Clone(),
		FetchedAt: s.FetchedAt,
	}
	if s.Body != nil {
		out.Body = make([]byte, len(s.Body))
		copy(out.Body, s.Body)
	}
	return out
}
