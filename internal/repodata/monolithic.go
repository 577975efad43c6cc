package repodata

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// repodataJSON mirrors the fields of a monolithic repodata.json this
// gateway consumes; unknown fields are ignored by encoding/json.
type repodataJSON struct {
	Info struct {
		Subdir string `json:"subdir"`
	} `json:"info"`
	Packages      map[string]pkgrecord.PackageRecord `json:"packages"`
	PackagesConda map[string]pkgrecord.PackageRecord `json:"packages.conda"`
}

// cacheSidecar is the ".info.json" persisted alongside a cached,
// decompressed repodata.json for conditional-request reuse.
type cacheSidecar struct {
	URL          string `json:"url"`
	ETag         string `json:"etag"`
	LastModified string `json:"last_modified"`
}

var monolithicSuffixes = []string{".zst", ".bz2", ""}

// FetchMonolithic fetches and parses a subdir's repodata.json, trying
// the zst, bz2, then plain variants in order (first 2xx wins); uses a
// conditional request against the cached sidecar when present, reusing
// the cache verbatim on 304.
func FetchMonolithic(ctx context.Context, router *Router, cacheDir string, channel Channel, subdir string) ([]pkgrecord.RepoDataRecord, error) {
	baseURL := channel.SubdirURL(subdir)
	dataPath := filepath.Join(cacheDir, cacheFileName(channel, subdir))
	sidecarPath := dataPath + ".info.json"

	sidecar, _ := loadSidecar(sidecarPath)

	var lastErr error
	for _, suffix := range monolithicSuffixes {
		url := baseURL + "repodata.json" + suffix
		req := FetchRequest{URL: url}
		if sidecar != nil && sidecar.URL == url {
			req.IfNoneMatch = sidecar.ETag
			req.IfModifiedSince = sidecar.LastModified
		}

		var resp *FetchResponse
		err := DefaultRetryPolicy.Do(ctx, func(attempt int) (int, error) {
			r, fetchErr := router.Fetch(ctx, req)
			if fetchErr != nil {
				return 0, fetchErr
			}
			resp = r
			return r.StatusCode, nil
		})
		if err != nil {
			lastErr = err
			continue
		}

		if resp.NotModified {
			data, readErr := os.ReadFile(dataPath)
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return parseMonolithic(data, channel, subdir, baseURL)
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("repodata fetch %s returned status %d", url, resp.StatusCode)
			continue
		}

		data, err := decodeBody(resp, suffix)
		resp.Body.Close()
		if err != nil {
			return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.FetchMonolithic", err).WithURL(url)
		}

		if err := atomicWrite(dataPath, data); err != nil {
			return nil, err
		}
		if err := saveSidecar(sidecarPath, cacheSidecar{URL: url, ETag: resp.ETag, LastModified: resp.LastModified}); err != nil {
			return nil, err
		}
		return parseMonolithic(data, channel, subdir, baseURL)
	}

	if lastErr != nil {
		return nil, rerrors.New(rerrors.KindFetchTransient, "repodata.FetchMonolithic", lastErr).WithURL(baseURL)
	}
	return nil, rerrors.New(rerrors.KindSubdirNotFound, "repodata.FetchMonolithic", nil).WithURL(baseURL)
}

// decodeBody strips any transfer Content-Encoding and then the chosen
// content compression, per spec §4.F step 3.
func decodeBody(resp *FetchResponse, suffix string) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.ContentEncoding == "gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	switch suffix {
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case ".bz2":
		return io.ReadAll(bzip2.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

func parseMonolithic(data []byte, channel Channel, subdir, baseURL string) ([]pkgrecord.RepoDataRecord, error) {
	var doc repodataJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.parseMonolithic", err)
	}

	records := make([]pkgrecord.RepoDataRecord, 0, len(doc.Packages)+len(doc.PackagesConda))
	for fname, rec := range doc.Packages {
		records = append(records, toRepoDataRecord(rec, fname, channel, baseURL))
	}
	for fname, rec := range doc.PackagesConda {
		records = append(records, toRepoDataRecord(rec, fname, channel, baseURL))
	}
	return records, nil
}

func toRepoDataRecord(rec pkgrecord.PackageRecord, fname string, channel Channel, baseURL string) pkgrecord.RepoDataRecord {
	if rec.Subdir == "" {
		rec.Subdir = channel.Name
	}
	return pkgrecord.RepoDataRecord{
		PackageRecord: rec,
		URL:           baseURL + fname,
		FileName:      fname,
		ChannelName:   channel.Name,
	}
}

func cacheFileName(channel Channel, subdir string) string {
	return fmt.Sprintf("%s_%s_repodata.json", sanitizeForFilename(channel.Name), subdir)
}

func sanitizeForFilename(s string) string {
	buf := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			buf = append(buf, r)
		default:
			buf = append(buf, '_')
		}
	}
	return string(buf)
}

func loadSidecar(path string) (*cacheSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s cacheSidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveSidecar(path string, s cacheSidecar) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to a temp file next to path, then renames it
// into place (spec §4.F step 4).
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

