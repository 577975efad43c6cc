package repodata

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SharedCacheEntry is one row of the shared, multi-host repodata
// cache: the decompressed repodata.json bytes for one (channel,
// subdir) plus the conditional-request sidecar, keyed the same way
// the filesystem cache keys its files.
type SharedCacheEntry struct {
	Key          string `gorm:"primarykey"`
	URL          string
	ETag         string
	LastModified string
	Data         []byte
	UpdatedAt    time.Time
}

func (SharedCacheEntry) TableName() string { return "repodata_shared_cache" }

// PostgresStore backs Gateway.SharedStore: a second-level cache shared
// by every gateway instance behind a fleet's load balancer, so a cold
// host doesn't re-fetch repodata another host already has fresh. It
// sits alongside (never instead of) the per-host filesystem cache
// FetchMonolithic already maintains.
//
// Grounded on the teacher's internal/store package (gorm-backed local
// state) generalized from sqlite to postgres for a deployment where
// the cache must be shared across hosts rather than local to one.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgresStore connects to dsn and auto-migrates the shared
// cache table.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening shared repodata cache: %w", err)
	}
	if err := db.AutoMigrate(&SharedCacheEntry{}); err != nil {
		return nil, fmt.Errorf("migrating shared repodata cache schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get returns the cached sidecar and data for key, or ok=false if
// nothing is cached.
func (s *PostgresStore) Get(ctx context.Context, key string) (cacheSidecar, []byte, bool, error) {
	var e SharedCacheEntry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return cacheSidecar{}, nil, false, nil
	}
	if err != nil {
		return cacheSidecar{}, nil, false, err
	}
	return cacheSidecar{URL: e.URL, ETag: e.ETag, LastModified: e.LastModified}, e.Data, true, nil
}

// Put upserts the cached sidecar and data for key.
func (s *PostgresStore) Put(ctx context.Context, key string, sc cacheSidecar, data []byte) error {
	e := SharedCacheEntry{
		Key: key, URL: sc.URL, ETag: sc.ETag, LastModified: sc.LastModified,
		Data: data, UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&e).Error
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// populateFromShared seeds the local filesystem cache files at
// dataPath/sidecarPath from the shared store, so a subsequent
// FetchMonolithic call sees a warm conditional-request cache even on a
// host that has never fetched this subdir before.
func populateFromShared(ctx context.Context, store *PostgresStore, key, dataPath, sidecarPath string) {
	sc, data, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return
	}
	if _, statErr := os.Stat(dataPath); statErr == nil {
		return // local cache already warm, shared store has nothing to add
	}
	if err := atomicWrite(dataPath, data); err != nil {
		return
	}
	_ = saveSidecar(sidecarPath, sc)
}

// pushToShared publishes the now-warm local cache entry to the shared
// store so the next host to query this subdir starts warm too.
func pushToShared(ctx context.Context, store *PostgresStore, key, dataPath, sidecarPath string) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return
	}
	sc, err := loadSidecar(sidecarPath)
	if err != nil || sc == nil {
		return
	}
	_ = store.Put(ctx, key, *sc, data)
}
