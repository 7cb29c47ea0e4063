// Package shell populates the shell and images partitions: the core
// application bundle a page needs to boot offline, plus opted-in image
// precaches.
package shell

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/urbanpack/offsync/internal/discover"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/netfetch"
	"github.com/urbanpack/offsync/internal/partition"
)

// ErrBootAssetFailed means the minimal boot set (root document, entry
// script) could not be cached. Optional asset failures are tolerated;
// losing the boot set breaks the offline-boot guarantee and is surfaced.
var ErrBootAssetFailed = errors.New("failed to cache boot asset")

// Manager owns shell and images partition population for one deployed
// version.
type Manager struct {
	registry *partition.Registry
	disc     *discover.Discoverer
	fetcher  netfetch.Fetcher
	origin   *url.URL
	prefix   string
	version  string
	assets   []string
	boot     map[string]struct{}
	log      logger.Logger
	metrics  *metrics.Metrics
}

// Config carries the construction parameters for a Manager.
type Config struct {
	Registry *partition.Registry
	Disc     *discover.Discoverer
	Fetcher  netfetch.Fetcher
	Upstream string
	Prefix   string
	Version  string
	// Assets is the static shell asset list (root-relative paths).
	Assets []string
	// Boot is the subset of paths that must cache successfully.
	Boot []string
	Log     logger.Logger
	Metrics *metrics.Metrics
}

// NewManager creates a shell Manager.
func NewManager(cfg Config) (*Manager, error) {
	origin, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream origin %q: %w", cfg.Upstream, err)
	}
	boot := make(map[string]struct{}, len(cfg.Boot))
	for _, p := range cfg.Boot {
		boot[p] = struct{}{}
	}
	return &Manager{
		registry: cfg.Registry,
		disc:     cfg.Disc,
		fetcher:  cfg.Fetcher,
		origin:   origin,
		prefix:   cfg.Prefix,
		version:  cfg.Version,
		assets:   cfg.Assets,
		boot:     boot,
		log:      cfg.Log,
		metrics:  cfg.Metrics,
	}, nil
}

// PartitionName returns the current shell partition name.
func (m *Manager) PartitionName() string {
	return partition.ShellName(m.prefix, m.version)
}

// ImagesPartitionName returns the current images partition name.
func (m *Manager) ImagesPartitionName() string {
	return partition.ImagesName(m.prefix, m.version)
}

// EnsureCurrent (re)populates the shell partition with the static asset
// list plus whatever the discoverer currently reports. Individual optional
// asset failures are logged and skipped; a boot-set failure aborts with
// ErrBootAssetFailed. Safe to call repeatedly; entries are overwritten
// idempotently.
func (m *Manager) EnsureCurrent(ctx context.Context) error {
	part := m.registry.Open(m.PartitionName())

	paths := make([]string, 0, len(m.assets))
	paths = append(paths, m.assets...)
	paths = append(paths, m.disc.EntryAssets(ctx)...)

	seen := make(map[string]struct{}, len(paths))
	var bootErr error
	for _, path := range paths {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if err := m.cachePath(ctx, part, path); err != nil {
			if _, isBoot := m.boot[path]; isBoot {
				bootErr = errors.Join(bootErr, fmt.Errorf("%w: %s: %w", ErrBootAssetFailed, path, err))
				continue
			}
			m.log.Warn("optional shell asset skipped",
				logger.String("path", path),
				logger.Error(err))
		}
	}
	if bootErr != nil {
		return bootErr
	}
	m.log.Info("shell partition populated",
		logger.String("partition", part.Name()),
		logger.Int("assets", len(seen)))
	return nil
}

// CacheAssets populates the shell partition with an explicit asset list,
// all-or-nothing. The gated release flow relies on this strictness: the UI
// is only told an entity is ready when every listed asset actually landed.
func (m *Manager) CacheAssets(ctx context.Context, paths []string) error {
	part := m.registry.Open(m.PartitionName())
	for _, path := range paths {
		if err := m.cachePath(ctx, part, path); err != nil {
			return fmt.Errorf("asset list population failed at %s: %w", path, err)
		}
	}
	return nil
}

// PrecacheImages stores an image list into the images partition. Each
// image settles independently; failures are logged and counted, never
// propagated, since a missing image degrades but does not break the app.
func (m *Manager) PrecacheImages(ctx context.Context, paths []string) int {
	part := m.registry.Open(m.ImagesPartitionName())
	var failed int
	for _, path := range paths {
		if err := m.cachePath(ctx, part, path); err != nil {
			failed++
			m.log.Warn("image precache skipped",
				logger.String("path", path),
				logger.Error(err))
		}
	}
	return failed
}

func (m *Manager) cachePath(ctx context.Context, part *partition.Partition, path string) error {
	snap, err := netfetch.FetchOK(ctx, m.fetcher, netfetch.Join(m.origin, path))
	if err != nil {
		m.metrics.FetchFailures.WithLabelValues("shell").Inc()
		return err
	}
	// Cache keys are root-relative paths, not absolute URLs, so lookups
	// are independent of which address the worker is reached on.
	snap.URL = path
	return part.Put(ctx, snap)
}
