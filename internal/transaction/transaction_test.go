package transaction

import (
	"testing"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

func prefixRec(name, ver, build string, buildNum int64, depends ...string) pkgrecord.PrefixRecord {
	return pkgrecord.PrefixRecord{
		RepoDataRecord: pkgrecord.RepoDataRecord{
			PackageRecord: pkgrecord.PackageRecord{
				Name: name, Version: ver, Build: build, BuildNumber: buildNum, Depends: depends,
			},
			URL: "https://example.test/" + name + "-" + ver + "-" + build + ".conda",
		},
	}
}

func repoRec(name, ver, build string, buildNum int64, depends ...string) pkgrecord.RepoDataRecord {
	return pkgrecord.RepoDataRecord{
		PackageRecord: pkgrecord.PackageRecord{
			Name: name, Version: ver, Build: build, BuildNumber: buildNum, Depends: depends,
		},
		URL: "https://example.test/" + name + "-" + ver + "-" + build + ".conda",
	}
}

func TestDiffClassifiesInstallRemoveUpgrade(t *testing.T) {
	installed := []pkgrecord.PrefixRecord{
		prefixRec("oldpkg", "1.0", "0", 0),
		prefixRec("numpy", "1.24.0", "py311h0", 0),
	}
	desired := []pkgrecord.RepoDataRecord{
		repoRec("numpy", "1.26.0", "py311h0", 0),
		repoRec("newpkg", "2.0", "0", 0),
	}

	tx := Diff(installed, desired, Options{})

	byName := make(map[string]Operation)
	for _, op := range tx.Operations {
		byName[op.Name] = op
	}

	if byName["oldpkg"].Kind != OpRemove {
		t.Errorf("expected oldpkg removed, got %v", byName["oldpkg"].Kind)
	}
	if byName["newpkg"].Kind != OpInstall {
		t.Errorf("expected newpkg installed, got %v", byName["newpkg"].Kind)
	}
	if byName["numpy"].Kind != OpUpgrade {
		t.Errorf("expected numpy upgraded, got %v", byName["numpy"].Kind)
	}
	if tx.ID == "" {
		t.Error("expected Diff to stamp a non-empty transaction ID")
	}
}

func TestDiffStampsDistinctIDsPerCall(t *testing.T) {
	a := Diff(nil, nil, Options{})
	b := Diff(nil, nil, Options{})
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
}

func TestDiffNoOpWhenIdentical(t *testing.T) {
	rec := prefixRec("numpy", "1.26.0", "py311h0", 0)
	desired := repoRec("numpy", "1.26.0", "py311h0", 0)
	desired.URL = rec.URL

	tx := Diff([]pkgrecord.PrefixRecord{rec}, []pkgrecord.RepoDataRecord{desired}, Options{})
	if len(tx.Operations) != 0 {
		t.Errorf("expected no-op for identical record, got %+v", tx.Operations)
	}
}

func TestDiffForceReinstall(t *testing.T) {
	rec := prefixRec("numpy", "1.26.0", "py311h0", 0)
	desired := repoRec("numpy", "1.26.0", "py311h0", 0)
	desired.URL = rec.URL

	tx := Diff([]pkgrecord.PrefixRecord{rec}, []pkgrecord.RepoDataRecord{desired}, Options{ForceReinstall: true})
	if len(tx.Operations) != 1 || tx.Operations[0].Kind != OpReinstall {
		t.Errorf("expected a single reinstall op, got %+v", tx.Operations)
	}
}

func TestDiffDowngrade(t *testing.T) {
	installed := []pkgrecord.PrefixRecord{prefixRec("numpy", "1.26.0", "py311h0", 0)}
	desired := []pkgrecord.RepoDataRecord{repoRec("numpy", "1.24.0", "py311h0", 0)}

	tx := Diff(installed, desired, Options{})
	if len(tx.Operations) != 1 || tx.Operations[0].Kind != OpDowngrade {
		t.Errorf("expected downgrade, got %+v", tx.Operations)
	}
}

func TestDiffOrdersRemovesBeforeInstalls(t *testing.T) {
	installed := []pkgrecord.PrefixRecord{prefixRec("oldpkg", "1.0", "0", 0)}
	desired := []pkgrecord.RepoDataRecord{
		repoRec("python", "3.11.0", "h0", 0),
		repoRec("numpy", "1.26.0", "py311h0", 0, "python"),
	}
	tx := Diff(installed, desired, Options{})

	removeIdx, numpyIdx, pythonIdx := -1, -1, -1
	for i, op := range tx.Operations {
		switch op.Name {
		case "oldpkg":
			removeIdx = i
		case "numpy":
			numpyIdx = i
		case "python":
			pythonIdx = i
		}
	}
	if removeIdx == -1 || removeIdx > numpyIdx || removeIdx > pythonIdx {
		t.Errorf("expected removals before installs: remove=%d numpy=%d python=%d", removeIdx, numpyIdx, pythonIdx)
	}
	if pythonIdx > numpyIdx {
		t.Errorf("expected python (dependency) to link before numpy, got python=%d numpy=%d", pythonIdx, numpyIdx)
	}
}

func TestDiffOrdersRemovesReverseTopological(t *testing.T) {
	installed := []pkgrecord.PrefixRecord{
		prefixRec("python", "3.11.0", "h0", 0),
		prefixRec("numpy", "1.24.0", "py311h0", 0, "python"),
	}
	tx := Diff(installed, nil, Options{})

	numpyIdx, pythonIdx := -1, -1
	for i, op := range tx.Operations {
		switch op.Name {
		case "numpy":
			numpyIdx = i
		case "python":
			pythonIdx = i
		}
	}
	if numpyIdx == -1 || pythonIdx == -1 || numpyIdx > pythonIdx {
		t.Errorf("expected numpy (dependent) unlinked before python, got numpy=%d python=%d", numpyIdx, pythonIdx)
	}
}

func TestDiffDetectsPythonInterpreterChange(t *testing.T) {
	installed := []pkgrecord.PrefixRecord{prefixRec("python", "3.11.0", "h0", 0)}
	desired := []pkgrecord.RepoDataRecord{repoRec("python", "3.12.0", "h0", 0)}

	tx := Diff(installed, desired, Options{})
	if tx.PythonInfoBefore == nil || tx.PythonInfoBefore.ShortVersion != "3.11" {
		t.Errorf("expected PythonInfoBefore.ShortVersion=3.11, got %+v", tx.PythonInfoBefore)
	}
	if tx.PythonInfoAfter == nil || tx.PythonInfoAfter.ShortVersion != "3.12" {
		t.Errorf("expected PythonInfoAfter.ShortVersion=3.12, got %+v", tx.PythonInfoAfter)
	}
}
