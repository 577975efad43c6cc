package archive

import (
	"archive/tar"
	"compress/bzip2"
	"io"
)

// ExtractTarBz2 streams a ".tar.bz2" archive from r, invoking onEntry
// for every tar entry as it's decompressed. No seeking is required.
//
// Writing ".tar.bz2" is intentionally not implemented: no bzip2 encoder
// exists anywhere in the retrieval pack or, in pure Go, in the wider
// ecosystem (compress/bzip2 is decode-only). This matches Conda's own
// direction — new builds are published as ".conda", and ".tar.bz2" is
// consumed but no longer produced; see DESIGN.md.
func ExtractTarBz2(r io.Reader, onEntry func(hdr *tar.Header, content io.Reader) error) error {
	return ExtractTar(bzip2.NewReader(r), onEntry)
}
