package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Entry is one file or directory to be written into a tar stream.
type Entry struct {
	Path    string
	IsDir   bool
	Mode    int64
	Size    int64
	Content []byte
}

// sortEntries orders entries deterministically: "info/" entries first,
// then everything else; lexicographic within each group (spec §4.D).
func sortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ii, ij := isInfoPath(out[i].Path), isInfoPath(out[j].Path)
		if ii != ij {
			return ii // info/ entries sort first
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func isInfoPath(p string) bool {
	return p == "info" || strings.HasPrefix(p, "info/")
}

// WriteTar writes entries into w as a POSIX ustar stream with zeroed
// uid/gid/device fields and a fixed mtime (for reproducible builds, spec
// §4.D). If mtime is the zero Value, the current encoder does not stamp
// individual headers (callers building golden/round-trip fixtures should
// always pass an explicit mtime).
func WriteTar(w io.Writer, entries []Entry, mtime time.Time) error {
	tw := tar.NewWriter(w)
	for _, e := range sortEntries(entries) {
		hdr := &tar.Header{
			Name:     e.Path,
			Typeflag: tar.TypeReg,
			Mode:     e.Mode,
			Size:     e.Size,
			Uid:      0,
			Gid:      0,
			Uname:    "",
			Gname:    "",
			Devmajor: 0,
			Devminor: 0,
		}
		if e.IsDir {
			hdr.Typeflag = tar.TypeDir
			if !strings.HasSuffix(hdr.Name, "/") {
				hdr.Name += "/"
			}
			hdr.Size = 0
		}
		if !mtime.IsZero() {
			hdr.ModTime = mtime
		}
		if hdr.Mode == 0 {
			if e.IsDir {
				hdr.Mode = 0o755
			} else {
				hdr.Mode = 0o644
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !e.IsDir {
			if _, err := tw.Write(e.Content); err != nil {
				return err
			}
		}
	}
	return tw.Close()
}

// ExtractTar streams a tar from r into a callback per entry, without
// requiring r to be seekable (spec §4.D: "Stream-extract without
// seeking"). Entry names are normalized to NFC so a package built on a
// platform that stores decomposed Unicode (HFS+'s NFD) links onto a
// prefix using the composed form every other platform expects.
func ExtractTar(r io.Reader, onEntry func(hdr *tar.Header, content io.Reader) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		hdr.Name = norm.NFC.String(hdr.Name)
		if err := onEntry(hdr, tr); err != nil {
			return err
		}
	}
}

// BuildTarBytes is a test/round-trip helper: writes entries to an
// in-memory tar and returns the bytes.
func BuildTarBytes(entries []Entry, mtime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTar(&buf, entries, mtime); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
