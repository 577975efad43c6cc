package installer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// writePrefixRecord atomically writes rec to
// <prefix>/conda-meta/<name>-<version>-<build>.json, the durable
// record an installed package is tracked by.
func writePrefixRecord(prefix string, rec pkgrecord.PrefixRecord) error {
	metaDir := filepath.Join(prefix, "conda-meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return rerrors.New(rerrors.KindTransaction, "installer.writePrefixRecord", err).WithPath(metaDir)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rerrors.New(rerrors.KindTransaction, "installer.writePrefixRecord", err).WithRecord(rec.Key())
	}

	final := filepath.Join(metaDir, rec.MetaFileName())
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rerrors.New(rerrors.KindTransaction, "installer.writePrefixRecord", err).WithPath(tmp)
	}
	if err := os.Rename(tmp, final); err != nil {
		return rerrors.New(rerrors.KindTransaction, "installer.writePrefixRecord", err).WithPath(final)
	}
	return nil
}

// readPrefixRecord loads one conda-meta entry back, used by callers
// building the "installed" side of a transaction diff.
func readPrefixRecord(path string) (pkgrecord.PrefixRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgrecord.PrefixRecord{}, rerrors.New(rerrors.KindTransaction, "installer.readPrefixRecord", err).WithPath(path)
	}
	var rec pkgrecord.PrefixRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return pkgrecord.PrefixRecord{}, rerrors.New(rerrors.KindTransaction, "installer.readPrefixRecord", err).WithPath(path)
	}
	return rec, nil
}

// ListPrefixRecords reads every conda-meta/*.json entry in prefix,
// the installed-side input to transaction.Diff.
func ListPrefixRecords(prefix string) ([]pkgrecord.PrefixRecord, error) {
	metaDir := filepath.Join(prefix, "conda-meta")
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rerrors.New(rerrors.KindTransaction, "installer.ListPrefixRecords", err).WithPath(metaDir)
	}

	var recs []pkgrecord.PrefixRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := readPrefixRecord(filepath.Join(metaDir, e.Name()))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
