package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want Format
	}{
		{"conda zip", []byte{0x50, 0x4B, 0x03, 0x04}, FormatConda},
		{"conda empty zip", []byte{0x50, 0x4B, 0x05, 0x06}, FormatConda},
		{"conda spanned zip", []byte{0x50, 0x4B, 0x07, 0x08}, FormatConda},
		{"tar.bz2", []byte{0x42, 0x5A, 0x68, 0x39}, FormatTarBz2},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, FormatUnknown},
		{"too short", []byte{0x42}, FormatUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectFormat(c.head); got != c.want {
				t.Errorf("DetectFormat(%v) = %v, want %v", c.head, got, c.want)
			}
		})
	}
}

func TestSortEntriesInfoFirst(t *testing.T) {
	entries := []Entry{
		{Path: "lib/foo.so"},
		{Path: "info/index.json"},
		{Path: "bin/foo"},
		{Path: "info/recipe/meta.yaml"},
	}
	sorted := sortEntries(entries)
	for i, e := range sorted {
		if !isInfoPath(e.Path) && i > 0 && isInfoPath(sorted[i-1].Path) {
			continue
		}
	}
	if !isInfoPath(sorted[0].Path) || !isInfoPath(sorted[1].Path) {
		t.Fatalf("expected info/ entries first, got order %v", pathsOf(sorted))
	}
	if sorted[0].Path > sorted[1].Path {
		t.Errorf("info/ entries not lexicographically sorted: %v", pathsOf(sorted))
	}
}

func pathsOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestTarRoundTrip(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()
	entries := []Entry{
		{Path: "info/index.json", Content: []byte(`{"name":"numpy"}`), Size: 16},
		{Path: "bin", IsDir: true},
	}
	entries[0].Size = int64(len(entries[0].Content))

	data, err := BuildTarBytes(entries, mtime)
	if err != nil {
		t.Fatalf("BuildTarBytes: %v", err)
	}

	var got []string
	err = ExtractTar(bytes.NewReader(data), func(hdr *tar.Header, content io.Reader) error {
		got = append(got, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			b, err := io.ReadAll(content)
			if err != nil {
				return err
			}
			if string(b) != `{"name":"numpy"}` {
				t.Errorf("content mismatch: %q", b)
			}
		}
		if hdr.Uid != 0 || hdr.Gid != 0 {
			t.Errorf("expected zeroed uid/gid, got %d/%d", hdr.Uid, hdr.Gid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExtractTar: %v", err)
	}
	if len(got) != 2 || got[0] != "info/index.json" || got[1] != "bin/" {
		t.Errorf("unexpected entry order: %v", got)
	}
}

func TestCondaRoundTrip(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()
	pkg := CondaPackage{
		Name: "numpy-1.26.0-py311h1234567_0",
		PkgEntries: []Entry{
			{Path: "lib/python3.11/site-packages/numpy/__init__.py", Content: []byte("# numpy"), Size: 7},
		},
		InfoEntries: []Entry{
			{Path: "info/index.json", Content: []byte(`{"name":"numpy"}`), Size: 16},
			{Path: "info/recipe/meta.yaml", Content: []byte("package:\n  name: numpy\n"), Size: 24},
		},
		ModTime: mtime,
		Level:   Default,
	}
	pkg.PkgEntries[0].Size = int64(len(pkg.PkgEntries[0].Content))
	pkg.InfoEntries[1].Size = int64(len(pkg.InfoEntries[1].Content))

	var buf bytes.Buffer
	if err := WriteConda(&buf, pkg); err != nil {
		t.Fatalf("WriteConda: %v", err)
	}

	data := buf.Bytes()
	if got := DetectFormat(data[:4]); got != FormatConda {
		t.Fatalf("round-tripped archive not detected as conda: %v", got)
	}

	type seen struct {
		layer string
		name  string
	}
	var entries []seen
	err := ExtractConda(bytes.NewReader(data), int64(len(data)), func(layer string, hdr *tar.Header, content io.Reader) error {
		entries = append(entries, seen{layer, hdr.Name})
		if hdr.Name == "info/index.json" {
			b, err := io.ReadAll(content)
			if err != nil {
				return err
			}
			if string(b) != `{"name":"numpy"}` {
				t.Errorf("info/index.json content mismatch: %q", b)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExtractConda: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 extracted entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].layer != "pkg" || entries[0].name != "lib/python3.11/site-packages/numpy/__init__.py" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	for _, e := range entries[1:] {
		if e.layer != "info" {
			t.Errorf("expected info layer for %s, got %s", e.name, e.layer)
		}
	}
}

func TestCondaRoundTripDeterministic(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()
	build := func() []byte {
		pkg := CondaPackage{
			Name:        "a-1.0-0",
			PkgEntries:  []Entry{{Path: "bin/a", Content: []byte("a"), Size: 1}},
			InfoEntries: []Entry{{Path: "info/index.json", Content: []byte("{}"), Size: 2}},
			ModTime:     mtime,
			Level:       Default,
		}
		var buf bytes.Buffer
		if err := WriteConda(&buf, pkg); err != nil {
			t.Fatalf("WriteConda: %v", err)
		}
		return buf.Bytes()
	}
	a := build()
	b := build()
	if !bytes.Equal(a, b) {
		t.Errorf("expected byte-identical archives for identical input, sizes %d vs %d", len(a), len(b))
	}
}
