package repodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// shardIndex is the per-channel/subdir index naming each package
// name's shard by content hash.
type shardIndex struct {
	Info struct {
		Subdir string `json:"subdir"`
	} `json:"info"`
	Shards map[string]string `json:"shards"` // package name -> hex hash
}

// shardFile is one decoded ".msgpack" shard: all records for a single
// package name.
type shardFile struct {
	Packages      map[string]pkgrecord.PackageRecord `msgpack:"packages"`
	PackagesConda map[string]pkgrecord.PackageRecord `msgpack:"packages.conda"`
}

// ShardedGateway fetches and caches sharded-layout channels.
type ShardedGateway struct {
	Router   *Router
	CacheDir string

	mu      sync.Mutex
	indexes map[subdirKey]*shardIndex
}

// NewShardedGateway builds a ShardedGateway.
func NewShardedGateway(router *Router, cacheDir string) *ShardedGateway {
	return &ShardedGateway{Router: router, CacheDir: cacheDir, indexes: make(map[subdirKey]*shardIndex)}
}

// GetRecords fetches the shard index once per (channel, subdir), then
// downloads (or reuses the cached copy of) the shard for name.
func (g *ShardedGateway) GetRecords(ctx context.Context, channel Channel, subdir, name string) ([]pkgrecord.RepoDataRecord, error) {
	idx, err := g.getIndex(ctx, channel, subdir)
	if err != nil {
		return nil, err
	}

	hash, ok := idx.Shards[name]
	if !ok {
		return nil, nil
	}

	shard, err := g.getShard(ctx, channel, subdir, hash)
	if err != nil {
		return nil, err
	}

	baseURL := channel.SubdirURL(subdir)
	records := make([]pkgrecord.RepoDataRecord, 0, len(shard.Packages)+len(shard.PackagesConda))
	for fname, rec := range shard.Packages {
		records = append(records, toRepoDataRecord(rec, fname, channel, baseURL))
	}
	for fname, rec := range shard.PackagesConda {
		records = append(records, toRepoDataRecord(rec, fname, channel, baseURL))
	}
	return records, nil
}

func (g *ShardedGateway) getIndex(ctx context.Context, channel Channel, subdir string) (*shardIndex, error) {
	key := keyFor(channel, subdir)

	g.mu.Lock()
	if idx, ok := g.indexes[key]; ok {
		g.mu.Unlock()
		return idx, nil
	}
	g.mu.Unlock()

	baseURL := channel.SubdirURL(subdir)
	url := baseURL + "repodata_shards.msgpack.zst"
	resp, err := g.Router.Fetch(ctx, FetchRequest{URL: url})
	if err != nil {
		return nil, rerrors.New(rerrors.KindFetchTransient, "repodata.ShardedGateway.getIndex", err).WithURL(url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, rerrors.New(rerrors.KindSubdirNotFound, "repodata.ShardedGateway.getIndex", nil).WithURL(url)
	}

	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	var idx shardIndex
	if err := msgpack.Unmarshal(data, &idx); err != nil {
		// Some channels publish the shard index as JSON even though
		// shards themselves are msgpack; tolerate both.
		if jsonErr := json.Unmarshal(data, &idx); jsonErr != nil {
			return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.ShardedGateway.getIndex", err).WithURL(url)
		}
	}

	g.mu.Lock()
	g.indexes[key] = &idx
	g.mu.Unlock()
	return &idx, nil
}

func (g *ShardedGateway) getShard(ctx context.Context, channel Channel, subdir, hash string) (*shardFile, error) {
	shardPath := filepath.Join(g.CacheDir, "shards-v1", hash+".msgpack")
	if data, err := os.ReadFile(shardPath); err == nil {
		return decodeShard(data)
	}

	baseURL := channel.SubdirURL(subdir)
	url := fmt.Sprintf("%sshards/%s.msgpack.zst", baseURL, hash)
	resp, err := g.Router.Fetch(ctx, FetchRequest{URL: url})
	if err != nil {
		return nil, rerrors.New(rerrors.KindFetchTransient, "repodata.ShardedGateway.getShard", err).WithURL(url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.ShardedGateway.getShard", nil).WithURL(url)
	}

	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	// A concurrent loser whose target already exists is treated as
	// success (spec §4.F): ignore os.IsExist, the winner's bytes are
	// equivalent content for the same hash.
	if err := atomicWrite(shardPath, data); err != nil && !os.IsExist(err) {
		return nil, err
	}
	return decodeShard(data)
}

func decodeShard(data []byte) (*shardFile, error) {
	var shard shardFile
	if err := msgpack.Unmarshal(data, &shard); err != nil {
		return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.decodeShard", err)
	}
	return &shard, nil
}
