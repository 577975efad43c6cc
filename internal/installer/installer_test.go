package installer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nebari-dev/rattler-go/internal/pkgcache"
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/transaction"
)

func TestHashingWriterAccumulatesSHA256AndSize(t *testing.T) {
	var buf []byte
	hw := NewHashingWriter(&sliceWriter{&buf})
	if _, err := hw.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if hw.Size() != 11 {
		t.Errorf("Size() = %d, want 11", hw.Size())
	}
	if hw.SumHex() == "" {
		t.Error("expected non-empty hex digest")
	}
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func TestRewriteBinaryEqualLength(t *testing.T) {
	content := []byte("prefix=/opt/OLDPLACEHOLDER/lib")
	placeholder := []byte("/opt/OLDPLACEHOLDER")
	replacement := []byte("/opt/NEWPLACEHOLDER")
	out := rewriteBinary(content, placeholder, replacement)
	want := "prefix=/opt/NEWPLACEHOLDER/lib"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRewriteBinaryShorterPadsWithNUL(t *testing.T) {
	content := []byte("X/opt/longplaceholderXX")
	placeholder := []byte("/opt/longplaceholder")
	replacement := []byte("/short")
	out := rewriteBinary(content, placeholder, replacement)
	want := "X/short" + string(make([]byte, len(placeholder)-len(replacement))) + "XX"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRewriteBinaryLongerLeavesContentUntouched(t *testing.T) {
	content := []byte("X/short/pathXX")
	placeholder := []byte("/short/path")
	replacement := []byte("/a/much/longer/replacement/prefix")
	out := rewriteBinary(content, placeholder, replacement)
	if string(out) != string(content) {
		t.Errorf("expected content untouched, got %q", out)
	}
}

func TestRewriteAndCopyTextMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("#!/opt/build/placeholder/bin/python\nprint('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dst.txt")
	entry := pkgrecord.PathEntry{
		PrefixPlaceholder: "/opt/build/placeholder",
		FileMode:          pkgrecord.FileModeText,
	}
	sha, size, err := rewriteAndCopy(src, dst, entry, "/home/user/envs/myenv")
	if err != nil {
		t.Fatalf("rewriteAndCopy: %v", err)
	}
	if sha == "" || size == 0 {
		t.Error("expected non-empty hash and size")
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	want := "#!/home/user/envs/myenv/bin/python\nprint('hi')\n"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestLinkFileCopyPreservesExecutableBit(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "bin", "tool")
	if err := os.MkdirAll(filepath.Dir(srcPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(srcPath, []byte("binary content"), 0o755); err != nil {
		t.Fatal(err)
	}

	entry := pkgrecord.PathEntry{RelativePath: "bin/tool", PathType: pkgrecord.PathHardlink}
	dstPath := filepath.Join(dstDir, "bin", "tool")
	if _, _, err := linkFile(srcPath, dstPath, entry, LinkCopy, dstDir); err != nil {
		t.Fatalf("linkFile: %v", err)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		t.Fatalf("stat dst: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("expected executable bit preserved on copy, got mode %v", info.Mode())
	}
}

func TestRewriteAndCopyPreservesExecutableBit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	if err := os.WriteFile(src, []byte("#!/opt/build/placeholder/bin/python\nprint('hi')\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dst.sh")
	entry := pkgrecord.PathEntry{
		PrefixPlaceholder: "/opt/build/placeholder",
		FileMode:          pkgrecord.FileModeText,
	}
	if _, _, err := rewriteAndCopy(src, dst, entry, "/home/user/envs/myenv"); err != nil {
		t.Fatalf("rewriteAndCopy: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat dst: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("expected executable bit preserved on rewrite, got mode %v", info.Mode())
	}
}

func TestLinkFileHardlinkSameDevice(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "bin", "tool")
	if err := os.MkdirAll(filepath.Dir(srcPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(srcPath, []byte("binary content"), 0o755); err != nil {
		t.Fatal(err)
	}

	entry := pkgrecord.PathEntry{RelativePath: "bin/tool", PathType: pkgrecord.PathHardlink}
	method := chooseLinkMethod(srcDir, dstDir)

	dstPath := filepath.Join(dstDir, "bin", "tool")
	sha, size, err := linkFile(srcPath, dstPath, entry, method, dstDir)
	if err != nil {
		t.Fatalf("linkFile: %v", err)
	}
	if size != int64(len("binary content")) {
		t.Errorf("size = %d", size)
	}
	if sha == "" {
		t.Error("expected non-empty sha")
	}
	if _, err := os.Stat(dstPath); err != nil {
		t.Errorf("expected linked file to exist: %v", err)
	}
}

func TestNoarchSitePackagesPath(t *testing.T) {
	got, ok := noarchSitePackagesPath("site-packages/foo/bar.py", "/envs/e/lib/python3.11/site-packages")
	if !ok {
		t.Fatal("expected translation to apply")
	}
	want := filepath.Join("/envs/e/lib/python3.11/site-packages", "foo/bar.py")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok := noarchSitePackagesPath("bin/tool", "/envs/e/lib/python3.11/site-packages"); ok {
		t.Error("expected no translation for non site-packages path")
	}
}

func TestParseEntryPoint(t *testing.T) {
	ep, ok := ParseEntryPoint("jupyter = jupyter_core.command:main")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ep.Name != "jupyter" || ep.Module != "jupyter_core.command" || ep.Function != "main" {
		t.Errorf("got %+v", ep)
	}

	if _, ok := ParseEntryPoint("not-an-entry-point"); ok {
		t.Error("expected parse failure for malformed spec")
	}
}

func TestWriteUnixEntryPointProducesExecutableShebangScript(t *testing.T) {
	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ep := EntryPoint{Name: "jupyter", Module: "jupyter_core.command", Function: "main"}
	pe, err := WriteUnixEntryPoint(binDir, "/envs/e/bin/python", ep)
	if err != nil {
		t.Fatalf("WriteUnixEntryPoint: %v", err)
	}
	if pe.PathType != pkgrecord.PathPythonEntryPointUnix {
		t.Errorf("path type = %v", pe.PathType)
	}
	content, err := os.ReadFile(filepath.Join(binDir, "jupyter"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content[:2]) != "#!" {
		t.Errorf("expected shebang, got %q", content[:2])
	}
}

func TestPrefixRecordRoundTrip(t *testing.T) {
	prefix := t.TempDir()
	rec := pkgrecord.PrefixRecord{
		RepoDataRecord: pkgrecord.RepoDataRecord{
			PackageRecord: pkgrecord.PackageRecord{Name: "numpy", Version: "1.26.0", Build: "py311h0"},
		},
		Files: []string{"lib/numpy/__init__.py"},
	}
	if err := writePrefixRecord(prefix, rec); err != nil {
		t.Fatalf("writePrefixRecord: %v", err)
	}

	recs, err := ListPrefixRecords(prefix)
	if err != nil {
		t.Fatalf("ListPrefixRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "numpy" {
		t.Fatalf("got %+v", recs)
	}

	raw, err := os.ReadFile(filepath.Join(prefix, "conda-meta", "numpy-1.26.0-py311h0.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveUnlinksFilesAndMeta(t *testing.T) {
	prefix := t.TempDir()
	fooPath := filepath.Join(prefix, "bin", "foo")
	if err := os.MkdirAll(filepath.Dir(fooPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fooPath, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := pkgrecord.PrefixRecord{
		RepoDataRecord: pkgrecord.RepoDataRecord{
			PackageRecord: pkgrecord.PackageRecord{Name: "foo", Version: "1.0", Build: "0"},
		},
		Files: []string{"bin/foo"},
	}
	if err := writePrefixRecord(prefix, rec); err != nil {
		t.Fatal(err)
	}

	d := &Driver{opts: Options{Prefix: prefix}}
	op := transaction.Operation{Kind: transaction.OpRemove, Name: "foo", Before: &rec}
	if err := d.remove(op); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := os.Stat(fooPath); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}
	if _, err := os.Stat(filepath.Join(prefix, "conda-meta", "foo-1.0-0.json")); !os.IsNotExist(err) {
		t.Error("expected conda-meta entry to be removed")
	}
}

func TestDriverRunInstallsAndLinksPackage(t *testing.T) {
	cacheRoot := t.TempDir()
	cache, err := pkgcache.Open(cacheRoot)
	if err != nil {
		t.Fatalf("pkgcache.Open: %v", err)
	}
	defer cache.Close()

	prefix := t.TempDir()

	fetch := func(ctx context.Context, r pkgrecord.RepoDataRecord, destDir string) (string, int64, error) {
		if err := os.MkdirAll(filepath.Join(destDir, "info"), 0o755); err != nil {
			return "", 0, err
		}
		libPath := filepath.Join(destDir, "lib", "mypkg.py")
		if err := os.MkdirAll(filepath.Dir(libPath), 0o755); err != nil {
			return "", 0, err
		}
		if err := os.WriteFile(libPath, []byte("print('hi')\n"), 0o644); err != nil {
			return "", 0, err
		}
		paths := pkgrecord.PathsData{
			PathsVersion: 1,
			Paths: []pkgrecord.PathEntry{
				{RelativePath: "lib/mypkg.py", PathType: pkgrecord.PathHardlink},
			},
		}
		data, err := json.Marshal(paths)
		if err != nil {
			return "", 0, err
		}
		if err := os.WriteFile(filepath.Join(destDir, "info", "paths.json"), data, 0o644); err != nil {
			return "", 0, err
		}
		return "deadbeef", 12, nil
	}

	d := NewDriver(cache, fetch, Options{Prefix: prefix, Concurrency: 2})

	record := pkgrecord.RepoDataRecord{
		PackageRecord: pkgrecord.PackageRecord{Name: "mypkg", Version: "1.0", Build: "0", Subdir: "noarch"},
	}
	tx := transaction.Transaction{Operations: []transaction.Operation{
		{Kind: transaction.OpInstall, Name: "mypkg", After: &record},
	}}

	if err := d.Run(context.Background(), tx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	linkedPath := filepath.Join(prefix, "lib", "mypkg.py")
	if _, err := os.Stat(linkedPath); err != nil {
		t.Errorf("expected linked file: %v", err)
	}

	recs, err := ListPrefixRecords(prefix)
	if err != nil {
		t.Fatalf("ListPrefixRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "mypkg" {
		t.Fatalf("got %+v", recs)
	}
}
