// Package partition manages the named, versioned storage partitions that
// hold cached response snapshots. A Registry hands out idempotent partition
// handles over a shared repository, with an in-memory hot layer in front of
// the database.
package partition

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/resource"
)

const (
	// hotTTL bounds how long a snapshot stays in the in-memory layer before
	// the next read goes back to the repository.
	hotTTL          = 5 * time.Minute
	hotSweepPeriod  = 10 * time.Minute
	hotKeySeparator = "\x00"
)

// Registry is the single owner of partition handles. Open is idempotent:
// the same name always yields the same handle. The registry is an injected
// value, never a package global, so tests can run isolated instances.
type Registry struct {
	repo EntryRepository
	hot  *gocache.Cache
	log  logger.Logger

	mu      sync.Mutex
	handles map[string]*Partition
}

// NewRegistry creates a Registry over the given repository.
func NewRegistry(repo EntryRepository, log logger.Logger) *Registry {
	return &Registry{
		repo:    repo,
		hot:     gocache.New(hotTTL, hotSweepPeriod),
		log:     log,
		handles: make(map[string]*Partition),
	}
}

// Open returns the partition handle for name, creating it lazily. The
// underlying storage rows appear on first Put.
func (r *Registry) Open(name string) *Partition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.handles[name]; ok {
		return p
	}
	p := &Partition{name: name, reg: r}
	r.handles[name] = p
	return p
}

// MatchAny returns the most recently fetched snapshot for a URL across all
// partitions, bypassing the hot layer (the hot layer is keyed per
// partition, and cross-partition lookups are rare fallback paths).
func (r *Registry) MatchAny(ctx context.Context, url string) (*resource.Snapshot, error) {
	return r.repo.GetAny(ctx, url)
}

// List enumerates every partition name that currently holds entries.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.repo.ListPartitions(ctx)
}

// Drop deletes a partition's entries, its hot-layer snapshots, and its
// handle. Returns the number of entries removed.
func (r *Registry) Drop(ctx context.Context, name string) (int64, error) {
	deleted, err := r.repo.DropPartition(ctx, name)
	if err != nil {
		return 0, err
	}
	r.invalidateHot(name)
	r.mu.Lock()
	delete(r.handles, name)
	r.mu.Unlock()
	if deleted > 0 {
		r.log.Info("partition dropped",
			logger.String("partition", name),
			logger.Int64("entries", deleted))
	}
	return deleted, nil
}

func (r *Registry) invalidateHot(name string) {
	prefix := name + hotKeySeparator
	for key := range r.hot.Items() {
		if strings.HasPrefix(key, prefix) {
			r.hot.Delete(key)
		}
	}
}

func hotKey(partition, url string) string {
	return partition + hotKeySeparator + url
}

// Partition is a handle to one named partition. All methods go through the
// registry's repository; the handle itself holds no entry state.
type Partition struct {
	name string
	reg  *Registry
}

// Name returns the partition's full name.
func (p *Partition) Name() string {
	return p.name
}

// Put stores a snapshot, replacing any existing entry for the same URL.
func (p *Partition) Put(ctx context.Context, snap *resource.Snapshot) error {
	if err := p.reg.repo.Put(ctx, p.name, snap); err != nil {
		return err
	}
	p.reg.hot.Set(hotKey(p.name, snap.URL), snap.Clone(), gocache.DefaultExpiration)
	return nil
}

// Match returns the stored snapshot for a URL, or ErrEntryNotFound.
func (p *Partition) Match(ctx context.Context, url string) (*resource.Snapshot, error) {
	if v, ok := p.reg.hot.Get(hotKey(p.name, url)); ok {
		if snap, ok := v.(*resource.Snapshot); ok {
			return snap.Clone(), nil
		}
	}
	snap, err := p.reg.repo.Get(ctx, p.name, url)
	if err != nil {
		return nil, err
	}
	p.reg.hot.Set(hotKey(p.name, url), snap.Clone(), gocache.DefaultExpiration)
	return snap, nil
}

// Has reports whether the partition holds an entry for the URL.
func (p *Partition) Has(ctx context.Context, url string) (bool, error) {
	if _, ok := p.reg.hot.Get(hotKey(p.name, url)); ok {
		return true, nil
	}
	return p.reg.repo.Has(ctx, p.name, url)
}

// Keys lists every URL stored in the partition.
func (p *Partition) Keys(ctx context.Context) ([]string, error) {
	return p.reg.repo.Keys(ctx, p.name)
}

// IsNotFound reports whether err is the missing-entry sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
