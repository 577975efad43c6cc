package installer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nebari-dev/rattler-go/internal/pkgcache"
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/reporter"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
	"github.com/nebari-dev/rattler-go/internal/transaction"
)

// Fetcher resolves a record's archive bytes into destDir, the same
// contract pkgcache.FetchFunc expects; the driver supplies one per
// record so transport/cache concerns stay outside the installer.
type Fetcher func(ctx context.Context, r pkgrecord.RepoDataRecord, destDir string) (sha256 string, size int64, err error)

// Options configures one Driver.
type Options struct {
	Prefix         string
	Concurrency    int64 // max concurrent package installs, default 4
	SitePackages   string
	BinDir         string
	ProgressLinked func(name string)
	Reporter       reporter.Reporter
}

// Driver executes a transaction.Transaction against a prefix,
// coordinating the package cache, linker, and conda-meta writer.
// Grounded on the teacher's internal/pkgmgr worker-bounded operation
// pattern, generalized from its fixed-size dispatcher to a
// golang.org/x/sync/semaphore-gated install fan-out since installs
// (unlike the teacher's single-resource operations) are independently
// cacheable per package.
type Driver struct {
	cache   *pkgcache.Cache
	fetch   Fetcher
	opts    Options
	sem     *semaphore.Weighted
	log     *slog.Logger
}

// NewDriver builds a Driver. cache must already be open; fetch
// resolves one record's archive into a destination directory (for
// example, downloading then calling archive.ExtractConda).
func NewDriver(cache *pkgcache.Cache, fetch Fetcher, opts Options) *Driver {
	n := opts.Concurrency
	if n <= 0 {
		n = 4
	}
	if opts.Reporter == nil {
		opts.Reporter = reporter.NoOp
	}
	return &Driver{
		cache: cache,
		fetch: fetch,
		opts:  opts,
		sem:   semaphore.NewWeighted(n),
		log:   slog.Default().With("component", "installer"),
	}
}

// Run executes every operation in tx against the configured prefix:
// removals first (already ordered by transaction.Diff), then installs
// concurrently up to the configured concurrency limit.
func (d *Driver) Run(ctx context.Context, tx transaction.Transaction) error {
	d.log.Info("running transaction", "transaction_id", tx.ID, "operations", len(tx.Operations))
	for _, op := range tx.Operations {
		if op.Kind != transaction.OpRemove {
			continue
		}
		if err := d.remove(op); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, op := range tx.Operations {
		op := op
		if op.Kind == transaction.OpRemove {
			continue
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return rerrors.New(rerrors.KindCancelled, "installer.Run", err)
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			return d.install(ctx, op)
		})
	}
	return g.Wait()
}

func (d *Driver) install(ctx context.Context, op transaction.Operation) error {
	record := *op.After
	key := pkgcache.Key(record.PackageRecord)

	rep := d.opts.Reporter
	if rep == nil {
		rep = reporter.NoOp
	}
	linkTok := rep.OnLinkStart(record.Name)
	defer rep.OnLinkComplete(linkTok)

	if _, err := d.cache.GetOrFetch(ctx, key, func(ctx context.Context, destDir string) (string, int64, error) {
		return d.fetch(ctx, record, destDir)
	}); err != nil {
		return rerrors.New(rerrors.KindTransaction, "installer.install", err).WithRecord(record.Key())
	}
	cacheDir := d.cache.PackageDir(key)

	paths, err := readPathsData(cacheDir)
	if err != nil {
		return err
	}

	method := chooseLinkMethod(cacheDir, d.opts.Prefix)
	linked := make([]pkgrecord.PathEntry, 0, len(paths.Paths))
	var files []string

	for _, pe := range paths.Paths {
		dstRel := pe.RelativePath
		if record.Noarch == pkgrecord.NoarchPython {
			if translated, ok := noarchSitePackagesPath(pe.RelativePath, d.opts.SitePackages); ok {
				dstRel = translated
			}
		}
		srcPath := filepath.Join(cacheDir, pe.RelativePath)
		dstPath := filepath.Join(d.opts.Prefix, dstRel)

		sha, size, err := linkFile(srcPath, dstPath, pe, method, d.opts.Prefix)
		if err != nil {
			return rerrors.New(rerrors.KindTransaction, "installer.install", err).WithPath(dstPath).WithRecord(record.Key())
		}
		linkedEntry := pe
		linkedEntry.RelativePath = dstRel
		linkedEntry.SHA256 = sha
		linkedEntry.Size = size
		linked = append(linked, linkedEntry)
		files = append(files, dstRel)
	}

	if record.Noarch == pkgrecord.NoarchPython {
		eps, err := readEntryPointsMeta(cacheDir)
		if err != nil {
			return err
		}
		for _, spec := range eps {
			ep, ok := ParseEntryPoint(spec)
			if !ok {
				continue
			}
			pe, err := WriteUnixEntryPoint(d.opts.BinDir, filepath.Join(d.opts.Prefix, "bin", "python"), ep)
			if err != nil {
				return rerrors.New(rerrors.KindTransaction, "installer.install", err).WithRecord(record.Key())
			}
			linked = append(linked, pe)
			files = append(files, pe.RelativePath)
		}
	}

	prefixRec := pkgrecord.PrefixRecord{
		RepoDataRecord: record,
		Files:          files,
		PathsData:      pkgrecord.PathsData{PathsVersion: paths.PathsVersion, Paths: linked},
		Link:           pkgrecord.LinkInfo{Source: cacheDir, Type: string(method)},
	}
	if err := writePrefixRecord(d.opts.Prefix, prefixRec); err != nil {
		return err
	}

	if d.opts.ProgressLinked != nil {
		d.opts.ProgressLinked(record.Name)
	}
	return nil
}

// linkJSON is conda's info/link.json: the noarch section carries the
// console-script entry points a noarch: python package declares.
type linkJSON struct {
	Noarch struct {
		Kind        string   `json:"type"`
		EntryPoints []string `json:"entry_points"`
	} `json:"noarch"`
}

// readEntryPointsMeta reads the noarch-python entry_points list from a
// package's info/link.json. Packages without noarch entry points (the
// common case) simply lack the file, which is not an error.
func readEntryPointsMeta(cacheDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir, "info", "link.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rerrors.New(rerrors.KindTransaction, "installer.readEntryPointsMeta", err).WithPath(cacheDir)
	}
	var meta linkJSON
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, rerrors.New(rerrors.KindTransaction, "installer.readEntryPointsMeta", err).WithPath(cacheDir)
	}
	return meta.Noarch.EntryPoints, nil
}
