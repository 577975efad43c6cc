package installer

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nebari-dev/rattler-go/internal/archive"
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// HTTPFetcher builds a Fetcher that downloads a record's archive over
// HTTP(S) and extracts it into destDir, dispatching on file extension
// to the .conda or .tar.bz2 decoder.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, r pkgrecord.RepoDataRecord, destDir string) (string, int64, error) {
		tmp, err := os.CreateTemp("", "rattler-fetch-*")
		if err != nil {
			return "", 0, err
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)
		defer tmp.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
		if err != nil {
			return "", 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", 0, rerrors.New(rerrors.KindFetchTransient, "installer.HTTPFetcher", err).WithURL(r.URL)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", 0, rerrors.New(rerrors.KindFetchPermanent, "installer.HTTPFetcher", nil).WithURL(r.URL)
		}

		h := sha256.New()
		if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
			return "", 0, err
		}
		sha := hex.EncodeToString(h.Sum(nil))

		size, err := extractArchive(tmpPath, r.FileName, destDir)
		if err != nil {
			return "", 0, err
		}
		return sha, size, nil
	}
}

func extractArchive(archivePath, fileName, destDir string) (int64, error) {
	var total int64

	switch {
	case strings.HasSuffix(fileName, ".conda"):
		f, err := os.Open(archivePath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		err = archive.ExtractConda(f, info.Size(), func(layer string, hdr *tar.Header, content io.Reader) error {
			n, err := extractEntry(destDir, hdr, content)
			total += n
			return err
		})
		if err != nil {
			return 0, err
		}

	case strings.HasSuffix(fileName, ".tar.bz2"):
		f, err := os.Open(archivePath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		err = archive.ExtractTarBz2(f, func(hdr *tar.Header, content io.Reader) error {
			n, err := extractEntry(destDir, hdr, content)
			total += n
			return err
		})
		if err != nil {
			return 0, err
		}

	default:
		return 0, rerrors.New(rerrors.KindUnsupportedScheme, "installer.extractArchive", nil).WithPath(fileName)
	}

	return total, nil
}

func extractEntry(destDir string, hdr *tar.Header, content io.Reader) (int64, error) {
	target := filepath.Join(destDir, hdr.Name)

	switch hdr.Typeflag {
	case tar.TypeDir:
		return 0, os.MkdirAll(target, 0o755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, err
		}
		return 0, os.Symlink(hdr.Linkname, target)
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return 0, err
		}
		defer out.Close()
		n, err := io.Copy(out, content)
		return n, err
	}
}
