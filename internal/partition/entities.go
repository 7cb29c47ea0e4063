package partition

import "time"

// CachedEntry is one stored (partition, URL) → response row. Rows are
// immutable: Put deletes any existing row for the same key and inserts a
// fresh one.
type CachedEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Partition string    `gorm:"size:191;not null;uniqueIndex:idx_partition_url,priority:1;index" json:"partition"`
	URL       string    `gorm:"size:512;not null;uniqueIndex:idx_partition_url,priority:2" json:"url"`
	Status    int       `gorm:"not null" json:"status"`
	Header    string    `gorm:"type:text" json:"header"`
	Body      []byte    `gorm:"type:longblob" json:"-"`
	FetchedAt time.Time `gorm:"not null" json:"fetched_at"`
}

// TableName returns the table name for GORM.
func (CachedEntry) TableName() string {
	return "cached_entries"
}
