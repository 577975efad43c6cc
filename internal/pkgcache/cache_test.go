package pkgcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeFetch(content string) FetchFunc {
	return func(ctx context.Context, destDir string) (string, int64, error) {
		if err := os.WriteFile(filepath.Join(destDir, "info.json"), []byte(content), 0o644); err != nil {
			return "", 0, err
		}
		return "deadbeef", int64(len(content)), nil
	}
}

func TestGetOrFetchPopulatesCache(t *testing.T) {
	c := newTestCache(t)
	entry, err := c.GetOrFetch(context.Background(), "numpy-1.26.0-0", writeFetch("hello"))
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if entry.SHA256 != "deadbeef" || entry.Size != 5 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if _, err := os.Stat(filepath.Join(entry.Path, "info.json")); err != nil {
		t.Errorf("expected populated dir: %v", err)
	}
}

func TestGetOrFetchCacheHitSkipsFetch(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	if _, err := c.GetOrFetch(ctx, "k", writeFetch("v1")); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	called := false
	entry, err := c.GetOrFetch(ctx, "k", func(ctx context.Context, dir string) (string, int64, error) {
		called = true
		return "x", 1, nil
	})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if called {
		t.Error("expected cache hit to skip fetch")
	}
	if entry.SHA256 != "deadbeef" {
		t.Errorf("expected original entry, got %+v", entry)
	}
}

func TestGetOrFetchCoalescesConcurrentCallers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var fetchCount int64
	release := make(chan struct{})
	fetch := func(ctx context.Context, dir string) (string, int64, error) {
		atomic.AddInt64(&fetchCount, 1)
		<-release
		if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
			return "", 0, err
		}
		return "sha", 1, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]IndexEntry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(ctx, "shared-key", fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&fetchCount); got != 1 {
		t.Errorf("expected exactly 1 fetch for concurrent callers, got %d", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if results[i].SHA256 != "sha" {
			t.Errorf("caller %d: unexpected result %+v", i, results[i])
		}
	}
}

func TestGetOrFetchRefetchesWhenDirMissing(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	entry, err := c.GetOrFetch(ctx, "k", writeFetch("v1"))
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	os.RemoveAll(entry.Path)

	called := false
	if _, err := c.GetOrFetch(ctx, "k", func(ctx context.Context, dir string) (string, int64, error) {
		called = true
		return "sha2", 2, nil
	}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !called {
		t.Error("expected refetch when cached directory was externally removed")
	}
}

func TestPruneByAge(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	if _, err := c.GetOrFetch(ctx, "old", writeFetch("v1")); err != nil {
		t.Fatalf("fetch old: %v", err)
	}
	if err := c.index.Touch("old", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := c.GetOrFetch(ctx, "fresh", writeFetch("v2")); err != nil {
		t.Fatalf("fetch fresh: %v", err)
	}

	result, err := c.Prune(24*time.Hour, 0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.RemovedKeys) != 1 || result.RemovedKeys[0] != "old" {
		t.Errorf("expected only 'old' removed, got %v", result.RemovedKeys)
	}
	if _, ok, _ := c.index.Lookup("fresh"); !ok {
		t.Error("expected 'fresh' entry to survive prune")
	}
}

func TestPruneByMaxBytes(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.GetOrFetch(ctx, k, writeFetch("12345")); err != nil {
			t.Fatalf("fetch %s: %v", k, err)
		}
		time.Sleep(time.Millisecond)
	}

	result, err := c.Prune(0, 10)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.BytesRemaining > 10 {
		t.Errorf("expected remaining bytes <= 10, got %d", result.BytesRemaining)
	}
	if len(result.RemovedKeys) == 0 {
		t.Error("expected at least one eviction to respect maxBytes")
	}
	if _, ok, _ := c.index.Lookup("c"); !ok {
		t.Error("expected most-recently-accessed entry 'c' to survive")
	}
}

func TestKeyIncludesSubdir(t *testing.T) {
	r := pkgrecord.PackageRecord{Name: "numpy", Version: "1.26.0", Build: "py311h0", Subdir: "linux-64"}
	if Key(r) != "linux-64/numpy-1.26.0-py311h0" {
		t.Errorf("unexpected key: %s", Key(r))
	}
}
