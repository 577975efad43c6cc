package repodata

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/reporter"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// UseCacheOnly is stored on a Gateway but no fetch path reads it: a
// query with it set fetches over the network exactly as one without it,
// and does not fail when a needed shard or subdir is not already cached.
type Gateway struct {
	Router       *Router
	CacheDir     string
	Sharded      *ShardedGateway
	UseCacheOnly bool
	Reporter     reporter.Reporter

	// SharedStore, when set, is a second-level cache consulted before
	// and refreshed after every subdir fetch, letting a fleet of
	// gateway hosts share one warm repodata cache (§4.F).
	SharedStore *PostgresStore

	mu       sync.Mutex
	barriers map[subdirKey]*subdirBarrier
}

// subdirBarrier is a set-once value publishable to arbitrary waiters,
// coalescing concurrent fetches for the same (channel, subdir) into
// one (spec §4.F: "per-subdir barrier cell").
type subdirBarrier struct {
	done    chan struct{}
	records []pkgrecord.RepoDataRecord
	err     error
}

// NewGateway builds a Gateway over router, caching decoded repodata
// under cacheDir.
func NewGateway(router *Router, cacheDir string) *Gateway {
	return &Gateway{
		Router:   router,
		CacheDir: cacheDir,
		Sharded:  NewShardedGateway(router, cacheDir),
		Reporter: reporter.NoOp,
		barriers: make(map[subdirKey]*subdirBarrier),
	}
}

// loadSubdir returns the monolithic records for (channel, subdir),
// coalescing concurrent callers onto a single fetch.
func (g *Gateway) loadSubdir(ctx context.Context, channel Channel, subdir string) ([]pkgrecord.RepoDataRecord, error) {
	key := keyFor(channel, subdir)

	g.mu.Lock()
	if b, ok := g.barriers[key]; ok {
		g.mu.Unlock()
		<-b.done
		return b.records, b.err
	}
	b := &subdirBarrier{done: make(chan struct{})}
	g.barriers[key] = b
	g.mu.Unlock()

	rep := g.Reporter
	if rep == nil {
		rep = reporter.NoOp
	}
	subdirURL := channel.SubdirURL(subdir)
	tok := rep.OnDownloadStart(subdirURL)

	var sharedKey, dataPath, sidecarPath string
	if g.SharedStore != nil {
		sharedKey = cacheFileName(channel, subdir)
		dataPath = filepath.Join(g.CacheDir, sharedKey)
		sidecarPath = dataPath + ".info.json"
		populateFromShared(ctx, g.SharedStore, sharedKey, dataPath, sidecarPath)
	}

	records, err := FetchMonolithic(ctx, g.Router, g.CacheDir, channel, subdir)
	rep.OnDownloadComplete(subdirURL, tok)

	if g.SharedStore != nil && err == nil {
		pushToShared(ctx, g.SharedStore, sharedKey, dataPath, sidecarPath)
	}

	b.records, b.err = records, err
	close(b.done)
	return records, err
}

// GetRecords returns every record for name within (channel, subdir).
func (g *Gateway) GetRecords(ctx context.Context, channel Channel, subdir, name string) ([]pkgrecord.RepoDataRecord, error) {
	if channel.Layout == LayoutSharded {
		return g.Sharded.GetRecords(ctx, channel, subdir, name)
	}
	all, err := g.loadSubdir(ctx, channel, subdir)
	if err != nil {
		return nil, err
	}
	var matched []pkgrecord.RepoDataRecord
	for _, r := range all {
		if r.Name == name {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Query runs the full gateway protocol from spec §4.F: for each
// (channel, platform) pair, resolve every root spec's records,
// optionally walking transitive dependencies, and yield one RepoData
// per input pair in input order.
func (g *Gateway) Query(ctx context.Context, q Query) ([]RepoData, error) {
	results := make([]RepoData, 0, len(q.Channels)*len(q.Platforms))

	for _, channel := range q.Channels {
		for _, platform := range q.Platforms {
			rd, err := g.queryOne(ctx, channel, platform, q.Specs, q.Recursive)
			if err != nil {
				return nil, err
			}
			results = append(results, rd)
		}
	}
	return results, nil
}

func (g *Gateway) queryOne(ctx context.Context, channel Channel, subdir string, specNames []string, recursive bool) (RepoData, error) {
	seen := make(map[string]bool)
	queue := append([]string(nil), specNames...)
	var all []pkgrecord.RepoDataRecord
	notFoundCount := 0

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		records, err := g.GetRecords(ctx, channel, subdir, name)
		if err != nil {
			if rerr, ok := err.(*rerrors.Error); ok && rerr.Kind == rerrors.KindSubdirNotFound {
				notFoundCount++
				continue
			}
			return RepoData{}, err
		}
		all = append(all, records...)

		if recursive {
			for _, r := range records {
				for _, dep := range r.Depends {
					depName := dependencyName(dep)
					if depName != "" && !seen[depName] {
						queue = append(queue, depName)
					}
				}
			}
		}
	}

	if notFoundCount > 0 && notFoundCount == len(specNames) {
		return RepoData{}, rerrors.New(rerrors.KindSubdirNotFound, "repodata.Gateway.Query", nil).WithURL(channel.SubdirURL(subdir))
	}

	return RepoData{Channel: channel.Name, Subdir: subdir, Records: dedupeRecords(all)}, nil
}

// dependencyName extracts the leading package name token from a
// dependency spec string ("numpy >=1.20" -> "numpy").
func dependencyName(spec string) string {
	i := 0
	for i < len(spec) && spec[i] != ' ' && spec[i] != '[' {
		i++
	}
	return spec[:i]
}

func dedupeRecords(records []pkgrecord.RepoDataRecord) []pkgrecord.RepoDataRecord {
	seen := make(map[string]bool, len(records))
	out := make([]pkgrecord.RepoDataRecord, 0, len(records))
	for _, r := range records {
		id := r.ChannelName + "/" + r.FileName
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
