// Package pkgcache implements the content-addressed on-disk package
// cache: at-most-once concurrent fetch coalescing per cache key, a
// gorm+sqlite index of cached entries for fast existence/validation
// checks, and disk-usage accounting with age/size based pruning.
//
// Grounded on the teacher's internal/store (gorm+sqlite-backed local
// database) and internal/localindex (JSON index with a Prune() that
// drops entries whose paths no longer exist on disk); the concurrent
// fetch-coalescing state machine has no teacher analog and is built
// fresh from rattler's cache design in
// original_source/crates/rattler_cache/src/package_cache.rs.
package pkgcache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IndexEntry is the persisted record of one cached, unpacked package.
type IndexEntry struct {
	Key          string    `gorm:"primarykey" json:"key"`
	Path         string    `gorm:"not null" json:"path"`
	SHA256       string    `gorm:"index" json:"sha256"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `gorm:"index" json:"last_accessed"`
}

func (IndexEntry) TableName() string { return "pkgcache_entries" }

// Index wraps a gorm/sqlite database tracking which keys are cached,
// where on disk, and when they were last touched.
type Index struct {
	db *gorm.DB
}

// OpenIndex opens (creating if necessary) the sqlite index file under
// dir, auto-migrating the entries table.
func OpenIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating pkgcache directory: %w", err)
	}
	dbPath := filepath.Join(dir, "index.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening pkgcache index: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")

	if err := db.AutoMigrate(&IndexEntry{}); err != nil {
		return nil, fmt.Errorf("migrating pkgcache schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Lookup returns the entry for key, or (IndexEntry{}, false, nil) if
// absent.
func (i *Index) Lookup(key string) (IndexEntry, bool, error) {
	var e IndexEntry
	err := i.db.First(&e, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, err
	}
	return e, true, nil
}

// Upsert records (or refreshes) a cache entry.
func (i *Index) Upsert(e IndexEntry) error {
	return i.db.Save(&e).Error
}

// Touch updates an entry's LastAccessed timestamp without rewriting
// its other fields.
func (i *Index) Touch(key string, at time.Time) error {
	return i.db.Model(&IndexEntry{}).Where("key = ?", key).Update("last_accessed", at).Error
}

// Delete removes an entry from the index (the caller is responsible
// for removing the on-disk directory).
func (i *Index) Delete(key string) error {
	return i.db.Delete(&IndexEntry{}, "key = ?", key).Error
}

// All returns every indexed entry, ordered oldest-accessed first.
func (i *Index) All() ([]IndexEntry, error) {
	var entries []IndexEntry
	if err := i.db.Order("last_accessed asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// TotalSize sums the Size column across all indexed entries.
func (i *Index) TotalSize() (int64, error) {
	var total int64
	err := i.db.Model(&IndexEntry{}).Select("COALESCE(SUM(size), 0)").Scan(&total).Error
	return total, err
}

// Close releases the underlying sqlite connection.
func (i *Index) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
