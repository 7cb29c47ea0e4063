package partition

import (
	"context"
	"errors"

	"github.com/urbanpack/offsync/internal/resource"
)

// ErrEntryNotFound is returned when a partition has no entry for a URL.
var ErrEntryNotFound = errors.New("cached entry not found")

// EntryRepository persists cached response snapshots, keyed by
// (partition name, canonical URL).
type EntryRepository interface {
	// Put stores a snapshot, replacing any existing entry for the same key.
	Put(ctx context.Context, partition string, snap *resource.Snapshot) error
	// Get returns the stored snapshot for a URL, or ErrEntryNotFound.
	Get(ctx context.Context, partition, url string) (*resource.Snapshot, error)
	// GetAny returns the most recently fetched snapshot for a URL across
	// all partitions, or ErrEntryNotFound.
	GetAny(ctx context.Context, url string) (*resource.Snapshot, error)
	// Has reports whether the partition holds an entry for the URL.
	Has(ctx context.Context, partition, url string) (bool, error)
	// Keys lists every URL stored in the partition.
	Keys(ctx context.Context, partition string) ([]string, error)
	// DropPartition deletes every entry in the partition and returns the count.
	DropPartition(ctx context.Context, partition string) (int64, error)
	// ListPartitions enumerates the distinct partition names with entries.
	ListPartitions(ctx context.Context) ([]string, error)
}
