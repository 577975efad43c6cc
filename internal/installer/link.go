package installer

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// LinkMethod is the strategy used to place one cached file into a
// prefix.
type LinkMethod string

const (
	LinkHardlink LinkMethod = "hardlink"
	LinkSoftlink LinkMethod = "softlink"
	LinkCopy     LinkMethod = "copy"
)

// readPathsData loads a package's info/paths.json from its cache
// directory, the authoritative file list per spec §4.I step 2.
func readPathsData(cacheDir string) (pkgrecord.PathsData, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir, "info", "paths.json"))
	if err != nil {
		return pkgrecord.PathsData{}, rerrors.New(rerrors.KindTransaction, "installer.readPathsData", err).WithPath(cacheDir)
	}
	var pd pkgrecord.PathsData
	if err := json.Unmarshal(data, &pd); err != nil {
		return pkgrecord.PathsData{}, rerrors.New(rerrors.KindTransaction, "installer.readPathsData", err).WithPath(cacheDir)
	}
	return pd, nil
}

// chooseLinkMethod prefers a hardlink when source and destination
// parent directories share a device (same filesystem); otherwise it
// falls back to a copy. It never selects a softlink (spec §4.I: "prefer hardlink when same device; fall back to
// copy").
func chooseLinkMethod(srcDir, dstDir string) LinkMethod {
	srcInfo, err := os.Stat(srcDir)
	if err != nil {
		return LinkCopy
	}
	dstInfo, err := os.Stat(dstDir)
	if err != nil {
		return LinkCopy
	}
	srcStat, ok1 := srcInfo.Sys().(*syscall.Stat_t)
	dstStat, ok2 := dstInfo.Sys().(*syscall.Stat_t)
	if ok1 && ok2 && srcStat.Dev == dstStat.Dev {
		return LinkHardlink
	}
	return LinkCopy
}

// linkFile places one cache file at dstPath using method, rewriting a
// prefix placeholder when present.
func linkFile(srcPath, dstPath string, entry pkgrecord.PathEntry, method LinkMethod, prefix string) (sha256Hex string, size int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", 0, err
	}
	os.Remove(dstPath)

	if entry.PrefixPlaceholder == "" {
		switch method {
		case LinkHardlink:
			if err := os.Link(srcPath, dstPath); err == nil {
				return hashExistingFile(dstPath)
			}
			// Fall through to copy if the hardlink failed (e.g. cross-device
			// despite the device check racing a mount change).
		case LinkSoftlink:
			if err := os.Symlink(srcPath, dstPath); err != nil {
				return "", 0, err
			}
			return hashExistingFile(srcPath)
		}
		return copyFile(srcPath, dstPath, preserveMode(srcPath))
	}

	return rewriteAndCopy(srcPath, dstPath, entry, prefix)
}

// preserveMode stats srcPath so a copy (the cross-device fallback,
// the common case) keeps the source file's permission bits, including
// the executable bit (spec §4.I step 3). A stat failure falls back to
// a conservative non-executable default rather than failing the link.
func preserveMode(srcPath string) os.FileMode {
	info, err := os.Stat(srcPath)
	if err != nil {
		return 0o644
	}
	return info.Mode().Perm()
}

func copyFile(srcPath, dstPath string, mode os.FileMode) (string, int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return "", 0, err
	}
	defer dst.Close()

	hw := NewHashingWriter(dst)
	if _, err := io.Copy(hw, src); err != nil {
		return "", 0, err
	}
	return hw.SumHex(), hw.Size(), nil
}

func hashExistingFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	hw := NewHashingWriter(io.Discard)
	n, err := io.Copy(hw, f)
	if err != nil {
		return "", 0, err
	}
	return hw.SumHex(), n, nil
}

// rewriteAndCopy rewrites occurrences of entry.PrefixPlaceholder with
// prefix while copying. Text mode does a plain byte-string replace
// (length change is irrelevant, spec §4.I step 3); binary mode only
// replaces in place when lengths match, padding the replacement with
// trailing NUL bytes when the new prefix is shorter and refusing the
// rewrite (copying verbatim) when it is longer, since a longer binary
// prefix would corrupt any absolute offsets baked into the binary.
func rewriteAndCopy(srcPath, dstPath string, entry pkgrecord.PathEntry, prefix string) (string, int64, error) {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return "", 0, err
	}

	placeholder := []byte(entry.PrefixPlaceholder)
	replacement := []byte(prefix)

	var out []byte
	switch entry.FileMode {
	case pkgrecord.FileModeBinary:
		out = rewriteBinary(content, placeholder, replacement)
	default:
		out = bytes.ReplaceAll(content, placeholder, replacement)
	}

	if err := os.WriteFile(dstPath, out, preserveMode(srcPath)); err != nil {
		return "", 0, err
	}
	return hashExistingFile(dstPath)
}

func rewriteBinary(content, placeholder, replacement []byte) []byte {
	if len(replacement) == len(placeholder) {
		return bytes.ReplaceAll(content, placeholder, replacement)
	}
	if len(replacement) > len(placeholder) {
		// Cannot safely lengthen a binary in place; leave untouched.
		return content
	}
	padded := append(append([]byte{}, replacement...), bytes.Repeat([]byte{0}, len(placeholder)-len(replacement))...)
	return bytes.ReplaceAll(content, placeholder, padded)
}

func noarchSitePackagesPath(relPath, spDir string) (string, bool) {
	const prefix = "site-packages/"
	if !strings.HasPrefix(relPath, prefix) {
		return "", false
	}
	return filepath.Join(spDir, strings.TrimPrefix(relPath, prefix)), true
}
