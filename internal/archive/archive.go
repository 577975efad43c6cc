// Package archive implements the two Conda package container formats:
// ".tar.bz2" (a bzip2-compressed tarball) and ".conda" (an outer
// uncompressed ZIP holding a metadata.json plus two zstd-compressed
// inner tars).
//
// Grounded on the teacher/pack's only tar-handling code,
// datawire-ocibuild's pkg/squash (archive/tar-based layer squashing) and
// pkg/fsutil/write.go, adapted to Conda's specific container shapes from
// original_source/crates/rattler_package_streaming/src/write.rs.
package archive

// Format identifies a package archive's container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatTarBz2
	FormatConda
)

// DetectFormat inspects the leading bytes of an archive per spec §4.D's
// magic-byte table: "50 4B 03 04"/"05 06"/"07 08" -> conda (zip);
// "42 5A 68 ??" -> tar.bz2; else unknown.
func DetectFormat(magic []byte) Format {
	if len(magic) >= 4 && magic[0] == 0x50 && magic[1] == 0x4B &&
		((magic[2] == 0x03 && magic[3] == 0x04) ||
			(magic[2] == 0x05 && magic[3] == 0x06) ||
			(magic[2] == 0x07 && magic[3] == 0x08)) {
		return FormatConda
	}
	if len(magic) >= 3 && magic[0] == 0x42 && magic[1] == 0x5A && magic[2] == 0x68 {
		return FormatTarBz2
	}
	return FormatUnknown
}

// DetectFormatReader reports the format of an archive from its
// already-read leading bytes; it is equivalent to DetectFormat.
func DetectFormatReader(head []byte) Format {
	return DetectFormat(head)
}

// sniffLen is the number of leading bytes DetectFormat needs.
const sniffLen = 4

func sniff(b []byte) Format {
	n := sniffLen
	if len(b) < n {
		n = len(b)
	}
	return DetectFormat(b[:n])
}
