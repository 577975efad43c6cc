package pkgcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// FetchFunc unpacks a package's contents into destDir. The cache
// guarantees destDir is a fresh, cache-private directory; FetchFunc
// must populate it completely before returning, and is expected to
// return the package's content SHA-256 and total unpacked size.
type FetchFunc func(ctx context.Context, destDir string) (sha256 string, size int64, err error)

// entryState is the lifecycle of one cache key, matching the
// Absent -> Inflight -> Present state machine used for at-most-once
// concurrent fetch coalescing.
type entryState int

const (
	stateAbsent entryState = iota
	stateInflight
	statePresent
)

type inflight struct {
	done  chan struct{}
	entry IndexEntry
	err   error
}

// Cache is a content-addressed, on-disk cache of unpacked packages.
// Concurrent requests for the same key share a single in-flight fetch;
// callers never race to populate the same directory.
type Cache struct {
	dir   string
	index *Index
	log   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflight
}

// Open opens or creates a package cache rooted at dir.
func Open(dir string) (*Cache, error) {
	idx, err := OpenIndex(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "pkgs"), 0o755); err != nil {
		return nil, fmt.Errorf("creating pkgcache pkgs directory: %w", err)
	}
	return &Cache{
		dir:      dir,
		index:    idx,
		log:      slog.Default().With("component", "pkgcache"),
		inflight: make(map[string]*inflight),
	}, nil
}

// Close releases the cache's index connection.
func (c *Cache) Close() error {
	return c.index.Close()
}

// TotalSize returns the sum of every indexed entry's on-disk size.
func (c *Cache) TotalSize() (int64, error) {
	return c.index.TotalSize()
}

// Key returns the cache key for a package record: name-version-build
// within its subdir, the same granularity conda uses for its package
// cache directories.
func Key(r pkgrecord.PackageRecord) string {
	return fmt.Sprintf("%s/%s", r.Subdir, r.Key())
}

// PackageDir returns the final on-disk directory for a present cache
// entry, valid only once GetOrFetch has returned successfully for key.
func (c *Cache) PackageDir(key string) string {
	return filepath.Join(c.dir, "pkgs", key)
}

// GetOrFetch returns the unpacked package directory for key, fetching
// it via fetch if absent. Concurrent callers for the same key observe
// exactly one fetch; all of them block until it completes and share
// its result (or its error).
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (IndexEntry, error) {
	if entry, ok, err := c.index.Lookup(key); err != nil {
		return IndexEntry{}, err
	} else if ok {
		if _, statErr := os.Stat(entry.Path); statErr == nil {
			_ = c.index.Touch(key, time.Now())
			return entry, nil
		}
		// Indexed but missing on disk (external deletion); fall through
		// to re-fetch, replacing the stale entry below.
		c.log.Warn("cache entry missing on disk, refetching", "key", key, "path", entry.Path)
	}

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return waitInflight(ctx, f)
	}

	f := &inflight{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	entry, err := c.runFetch(ctx, key, fetch)
	f.entry, f.err = entry, err
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	return entry, err
}

func waitInflight(ctx context.Context, f *inflight) (IndexEntry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return IndexEntry{}, rerrors.New(rerrors.KindCancelled, "pkgcache.GetOrFetch", ctx.Err())
	}
}

func (c *Cache) runFetch(ctx context.Context, key string, fetch FetchFunc) (IndexEntry, error) {
	finalDir := c.PackageDir(key)
	tmpDir := finalDir + ".tmp-" + randomSuffix()

	if err := os.MkdirAll(filepath.Dir(tmpDir), 0o755); err != nil {
		return IndexEntry{}, rerrors.New(rerrors.KindCache, "pkgcache.runFetch", err).WithPath(tmpDir)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return IndexEntry{}, rerrors.New(rerrors.KindCache, "pkgcache.runFetch", err).WithPath(tmpDir)
	}
	defer os.RemoveAll(tmpDir)

	sha, size, err := fetch(ctx, tmpDir)
	if err != nil {
		return IndexEntry{}, rerrors.New(rerrors.KindCache, "pkgcache.runFetch", err).WithPath(tmpDir)
	}

	os.RemoveAll(finalDir)
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return IndexEntry{}, rerrors.New(rerrors.KindCache, "pkgcache.runFetch", err).WithPath(finalDir)
	}

	now := time.Now()
	entry := IndexEntry{
		Key:          key,
		Path:         finalDir,
		SHA256:       sha,
		Size:         size,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := c.index.Upsert(entry); err != nil {
		return IndexEntry{}, err
	}
	return entry, nil
}

var suffixCounter struct {
	mu sync.Mutex
	n  uint64
}

// randomSuffix produces a unique-enough temp directory suffix without
// relying on a wall-clock or PRNG seed, keeping runFetch's behavior
// independent of process start time.
func randomSuffix() string {
	suffixCounter.mu.Lock()
	suffixCounter.n++
	n := suffixCounter.n
	suffixCounter.mu.Unlock()
	return fmt.Sprintf("%d-%d", os.Getpid(), n)
}
