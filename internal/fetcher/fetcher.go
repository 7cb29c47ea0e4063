// Package fetcher populates per-entity partitions: fetching the small fixed
// resource set that makes one city guide available offline.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/urbanpack/offsync/internal/conf"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/netfetch"
	"github.com/urbanpack/offsync/internal/partition"
)

// Broadcaster delivers a notification to every open page client.
type Broadcaster interface {
	Broadcast(v any)
}

// cacheComplete is broadcast after an entity cache attempt finishes, so
// every open tab showing that entity's saved state updates without polling.
type cacheComplete struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId"`
}

// EntityFetcher caches one entity's resource set into its dedicated
// partition.
type EntityFetcher struct {
	registry      *partition.Registry
	fetcher       netfetch.Fetcher
	origin        *url.URL
	prefix        string
	entityVersion string
	routes        conf.EntitySettings
	hub           Broadcaster
	log           logger.Logger
	metrics       *metrics.Metrics
}

// Config carries the construction parameters for an EntityFetcher.
type Config struct {
	Registry      *partition.Registry
	Fetcher       netfetch.Fetcher
	Upstream      string
	Prefix        string
	EntityVersion string
	Routes        conf.EntitySettings
	Hub           Broadcaster
	Log           logger.Logger
	Metrics       *metrics.Metrics
}

// New creates an EntityFetcher.
func New(cfg Config) (*EntityFetcher, error) {
	origin, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream origin %q: %w", cfg.Upstream, err)
	}
	return &EntityFetcher{
		registry:      cfg.Registry,
		fetcher:       cfg.Fetcher,
		origin:        origin,
		prefix:        cfg.Prefix,
		entityVersion: cfg.EntityVersion,
		routes:        cfg.Routes,
		hub:           cfg.Hub,
		log:           cfg.Log,
		metrics:       cfg.Metrics,
	}, nil
}

// PartitionName returns the partition name for an entity.
func (f *EntityFetcher) PartitionName(entityID string) string {
	return partition.EntityName(f.prefix, entityID, f.entityVersion)
}

// CacheEntity fetches the entity's document route and data endpoint into
// its dedicated partition. The two fetches settle independently: a failed
// resource is logged and skipped, since a partially cached entity is still
// useful offline and callers can inspect partition contents to judge
// completeness. An error is returned only when storage itself fails.
//
// After the attempt, a CACHE_COMPLETE notification is broadcast to every
// open page client, not just the requester.
func (f *EntityFetcher) CacheEntity(ctx context.Context, entityID string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if partition.IsReservedSlot(entityID) {
		return fmt.Errorf("entity id %q is a reserved partition name", entityID)
	}
	part := f.registry.Open(f.PartitionName(entityID))

	paths := []string{
		f.routes.DocURL(entityID),
		f.routes.DataURL(entityID),
	}

	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.cachePath(ctx, part, path)
		}()
	}
	wg.Wait()

	var storeErr error
	for i, err := range errs {
		switch {
		case err == nil:
		case partition.IsStoreError(err):
			storeErr = err
		default:
			f.log.Warn("entity resource skipped",
				logger.String("entity_id", entityID),
				logger.String("path", paths[i]),
				logger.Error(err))
		}
	}

	if f.hub != nil {
		f.hub.Broadcast(cacheComplete{Type: "CACHE_COMPLETE", EntityID: entityID})
	}
	if storeErr != nil {
		return fmt.Errorf("failed to store entity %s: %w", entityID, storeErr)
	}
	f.log.Info("entity cache attempt complete",
		logger.String("entity_id", entityID),
		logger.String("partition", part.Name()))
	return nil
}

// ForgetEntity drops the entity's partition in response to an explicit
// user reset. Returns the number of entries removed.
func (f *EntityFetcher) ForgetEntity(ctx context.Context, entityID string) (int64, error) {
	if entityID == "" {
		return 0, fmt.Errorf("entity id is required")
	}
	if partition.IsReservedSlot(entityID) {
		return 0, fmt.Errorf("entity id %q is a reserved partition name", entityID)
	}
	return f.registry.Drop(ctx, f.PartitionName(entityID))
}

func (f *EntityFetcher) cachePath(ctx context.Context, part *partition.Partition, path string) error {
	snap, err := netfetch.FetchOK(ctx, f.fetcher, netfetch.Join(f.origin, path))
	if err != nil {
		f.metrics.FetchFailures.WithLabelValues("entity").Inc()
		return err
	}
	snap.URL = path
	if err := part.Put(ctx, snap); err != nil {
		return partition.AsStoreError(err)
	}
	return nil
}
