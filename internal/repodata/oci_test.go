package repodata

import (
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestParseOCIReferenceDefaultsToLatest(t *testing.T) {
	repo, tag, err := parseOCIReference("oci://ghcr.io/conda-forge/linux-64")
	if err != nil {
		t.Fatalf("parseOCIReference: %v", err)
	}
	if repo != "ghcr.io/conda-forge/linux-64" || tag != "latest" {
		t.Errorf("got repo=%q tag=%q", repo, tag)
	}
}

func TestParseOCIReferenceExplicitTag(t *testing.T) {
	repo, tag, err := parseOCIReference("oci://ghcr.io/conda-forge/linux-64:2024.01.01")
	if err != nil {
		t.Fatalf("parseOCIReference: %v", err)
	}
	if repo != "ghcr.io/conda-forge/linux-64" || tag != "2024.01.01" {
		t.Errorf("got repo=%q tag=%q", repo, tag)
	}
}

func TestParseOCIReferenceRejectsNonOCIURL(t *testing.T) {
	if _, _, err := parseOCIReference("https://example.com/x"); err == nil {
		t.Fatal("expected error for non-oci:// url")
	}
}

func TestSelectRepodataLayerPrefersMatchingMediaType(t *testing.T) {
	layers := []ocispec.Descriptor{
		{MediaType: "application/octet-stream", Digest: digest.FromString("a")},
		{MediaType: MediaTypeRepodata, Digest: digest.FromString("b")},
	}
	got, ok := selectRepodataLayer(layers)
	if !ok || got.MediaType != MediaTypeRepodata {
		t.Fatalf("selectRepodataLayer = %+v, ok=%v", got, ok)
	}
}

func TestSelectRepodataLayerFallsBackToFirst(t *testing.T) {
	layers := []ocispec.Descriptor{{MediaType: "application/octet-stream", Digest: digest.FromString("a")}}
	got, ok := selectRepodataLayer(layers)
	if !ok || got.Digest != layers[0].Digest {
		t.Fatalf("selectRepodataLayer = %+v, ok=%v", got, ok)
	}
}

func TestSelectRepodataLayerNoLayers(t *testing.T) {
	if _, ok := selectRepodataLayer(nil); ok {
		t.Fatal("expected ok=false for empty layer list")
	}
}
