package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// MetadataJSON is the required first entry of a ".conda" outer zip.
type MetadataJSON struct {
	CondaPkgFormatVersion int `json:"conda_pkg_format_version"`
}

// CondaPackage describes the three required entries of a ".conda" file
// in write order: metadata.json, pkg-<name>.tar.zst, info-<name>.tar.zst.
type CondaPackage struct {
	Name          string
	PkgEntries    []Entry
	InfoEntries   []Entry
	ModTime       time.Time
	Level         Level
}

// WriteConda writes a ".conda" archive to w: an outer, uncompressed ZIP
// containing metadata.json first, then the pkg and info tar.zst layers
// (spec §4.D, §6).
func WriteConda(w io.Writer, pkg CondaPackage) error {
	zw := zip.NewWriter(w)

	metaBytes := []byte(`{"conda_pkg_format_version":2}`)
	if err := writeStoredEntry(zw, "metadata.json", metaBytes); err != nil {
		return err
	}

	pkgTar, err := BuildTarBytes(pkg.PkgEntries, pkg.ModTime)
	if err != nil {
		return err
	}
	pkgZst, err := zstdCompress(pkgTar, pkg.Level)
	if err != nil {
		return err
	}
	if err := writeStoredEntry(zw, fmt.Sprintf("pkg-%s.tar.zst", pkg.Name), pkgZst); err != nil {
		return err
	}

	infoTar, err := BuildTarBytes(pkg.InfoEntries, pkg.ModTime)
	if err != nil {
		return err
	}
	infoZst, err := zstdCompress(infoTar, pkg.Level)
	if err != nil {
		return err
	}
	if err := writeStoredEntry(zw, fmt.Sprintf("info-%s.tar.zst", pkg.Name), infoZst); err != nil {
		return err
	}

	return zw.Close()
}

func writeStoredEntry(zw *zip.Writer, name string, content []byte) error {
	hdr := &zip.FileHeader{
		Name:   name,
		Method: zip.Store,
	}
	hdr.SetModTime(time.Unix(0, 0).UTC())
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = fw.Write(content)
	return err
}

func zstdCompress(data []byte, level Level) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.encoderLevel()))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// ExtractConda reads a ".conda" archive from ra (an io.ReaderAt of the
// given size, since the outer ZIP's central directory requires random
// access) and streams both inner tars' entries to onEntry, tagged by
// which layer ("pkg" or "info") they came from. Entries are visited in
// the fixed write order: metadata.json, pkg-*.tar.zst, info-*.tar.zst.
func ExtractConda(ra io.ReaderAt, size int64, onEntry func(layer string, hdr *tar.Header, content io.Reader) error) error {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return fmt.Errorf("opening .conda outer zip: %w", err)
	}

	for _, f := range zr.File {
		var layer string
		switch {
		case f.Name == "metadata.json":
			continue
		case hasPrefixSuffix(f.Name, "pkg-", ".tar.zst"):
			layer = "pkg"
		case hasPrefixSuffix(f.Name, "info-", ".tar.zst"):
			layer = "info"
		default:
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}
		compressed, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}

		dec, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return fmt.Errorf("opening zstd stream in %s: %w", f.Name, err)
		}
		err = ExtractTar(dec, func(hdr *tar.Header, content io.Reader) error {
			return onEntry(layer, hdr, content)
		})
		dec.Close()
		if err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func hasPrefixSuffix(s, prefix, suffix string) bool {
	return len(s) >= len(prefix)+len(suffix) && s[:len(prefix)] == prefix && s[len(s)-len(suffix):] == suffix
}
