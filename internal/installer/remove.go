package installer

import (
	"os"
	"path/filepath"

	"github.com/nebari-dev/rattler-go/internal/rerrors"
	"github.com/nebari-dev/rattler-go/internal/transaction"
)

// remove unlinks every file a prefix record claims, then drops its
// conda-meta entry, per spec §4.I's removal procedure: unlink each
// paths_data entry ignoring not-found, then delete the metadata file.
// The metadata file is deleted only after every file is gone, so a
// removal that fails midway keeps its conda-meta record even though some
// of its files are already unlinked; running the removal again finishes
// it, since files that are already gone are skipped.
func (d *Driver) remove(op transaction.Operation) error {
	if op.Before == nil {
		return nil
	}
	rec := *op.Before

	for _, pe := range rec.PathsData.Paths {
		path := filepath.Join(d.opts.Prefix, pe.RelativePath)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return rerrors.New(rerrors.KindTransaction, "installer.remove", err).WithPath(path).WithRecord(rec.Key())
		}
	}
	for _, rel := range rec.Files {
		path := filepath.Join(d.opts.Prefix, rel)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return rerrors.New(rerrors.KindTransaction, "installer.remove", err).WithPath(path).WithRecord(rec.Key())
		}
	}

	metaPath := filepath.Join(d.opts.Prefix, "conda-meta", rec.MetaFileName())
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return rerrors.New(rerrors.KindTransaction, "installer.remove", err).WithPath(metaPath).WithRecord(rec.Key())
	}
	return nil
}
