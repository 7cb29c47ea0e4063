package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/urbanpack/offsync/internal/resource"
)

// entryRepository implements EntryRepository on GORM.
type entryRepository struct {
	db *gorm.DB
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db *gorm.DB) EntryRepository {
	return &entryRepository{db: db}
}

// AutoMigrate creates or updates the cached-entry schema.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&CachedEntry{}); err != nil {
		return fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return nil
}

// Put replaces the entry for (partition, url) inside one transaction.
// Entries are immutable snapshots, so replacement is delete-then-insert
// rather than an update in place.
func (r *entryRepository) Put(ctx context.Context, partition string, snap *resource.Snapshot) error {
	headerJSON, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("failed to encode headers for %s: %w", snap.URL, err)
	}
	entry := &CachedEntry{
		Partition: partition,
		URL:       snap.URL,
		Status:    snap.Status,
		Header:    string(headerJSON),
		Body:      snap.Body,
		FetchedAt: snap.FetchedAt,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("partition = ? AND url = ?", partition, snap.URL).
			Delete(&CachedEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete old entry %s/%s: %w", partition, snap.URL, err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to store entry %s/%s: %w", partition, snap.URL, err)
		}
		return nil
	})
}

// Get returns the stored snapshot for a URL.
func (r *entryRepository) Get(ctx context.Context, partition, url string) (*resource.Snapshot, error) {
	var entry CachedEntry
	err := r.db.WithContext(ctx).
		Where("partition = ? AND url = ?", partition, url).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to load entry %s/%s: %w", partition, url, err)
	}
	return entryToSnapshot(&entry)
}

// GetAny returns the most recently fetched snapshot for a URL, searching
// every partition. Routing fallbacks use this the way a page's cache match
// searches all caches.
func (r *entryRepository) GetAny(ctx context.Context, url string) (*resource.Snapshot, error) {
	var entry CachedEntry
	err := r.db.WithContext(ctx).
		Where("url = ?", url).
		Order("fetched_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to load entry %s: %w", url, err)
	}
	return entryToSnapshot(&entry)
}

// Has reports whether the partition holds an entry for the URL.
func (r *entryRepository) Has(ctx context.Context, partition, url string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&CachedEntry{}).
		Where("partition = ? AND url = ?", partition, url).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check entry %s/%s: %w", partition, url, err)
	}
	return count > 0, nil
}

// Keys lists every URL stored in the partition.
func (r *entryRepository) Keys(ctx context.Context, partition string) ([]string, error) {
	var urls []string
	err := r.db.WithContext(ctx).Model(&CachedEntry{}).
		Where("partition = ?", partition).
		Order("url ASC").
		Pluck("url", &urls).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %s: %w", partition, err)
	}
	return urls, nil
}

// DropPartition deletes every entry in the partition.
func (r *entryRepository) DropPartition(ctx context.Context, partition string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("partition = ?", partition).
		Delete(&CachedEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to drop partition %s: %w", partition, result.Error)
	}
	return result.RowsAffected, nil
}

// ListPartitions enumerates the distinct partition names with entries.
func (r *entryRepository) ListPartitions(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&CachedEntry{}).
		Distinct("partition").
		Order("partition ASC").
		Pluck("partition", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return names, nil
}

func entryToSnapshot(entry *CachedEntry) (*resource.Snapshot, error) {
	header := http.Header{}
	if entry.Header != "" {
		if err := json.Unmarshal([]byte(entry.Header), &header); err != nil {
			return nil, fmt.Errorf("failed to decode headers for %s: %w", entry.URL, err)
		}
	}
	return &resource.Snapshot{
		URL:       entry.URL,
		Status:    entry.Status,
		Header:    header,
		Body:      entry.Body,
		FetchedAt: entry.FetchedAt,
	}, nil
}
