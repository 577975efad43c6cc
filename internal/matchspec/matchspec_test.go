package matchspec

import (
	"testing"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

func TestParseGlobVersionMatches(t *testing.T) {
	m, err := Parse("python 3.11.*")
	if err != nil {
		t.Fatal(err)
	}
	match := pkgrecord.PackageRecord{Name: "python", Version: "3.11.4", Build: "h0"}
	noMatch := pkgrecord.PackageRecord{Name: "python", Version: "3.12.0", Build: "h0"}
	if !m.Matches(match) {
		t.Errorf("expected python 3.11.* to match 3.11.4")
	}
	if m.Matches(noMatch) {
		t.Errorf("expected python 3.11.* to not match 3.12.0")
	}
}

func TestMatchesContainsAgree(t *testing.T) {
	m, err := Parse("numpy >=1.20,<2.0")
	if err != nil {
		t.Fatal(err)
	}
	vs := FromMatchSpec(m)
	records := []pkgrecord.PackageRecord{
		{Name: "numpy", Version: "1.19.0", Build: "0"},
		{Name: "numpy", Version: "1.26.0", Build: "0"},
		{Name: "numpy", Version: "2.0.0", Build: "0"},
	}
	for _, r := range records {
		if m.Matches(r) != vs.Contains(r) {
			t.Errorf("Matches/Contains disagree for %v", r)
		}
	}
}

func TestVersionSetComplementInvolution(t *testing.T) {
	m, _ := Parse("numpy >=1.20,<2.0")
	vs := FromMatchSpec(m)
	doubled := vs.Complement().Complement()
	records := []pkgrecord.PackageRecord{
		{Name: "numpy", Version: "1.19.0"},
		{Name: "numpy", Version: "1.26.0"},
		{Name: "numpy", Version: "2.0.0"},
	}
	for _, r := range records {
		if vs.Contains(r) != doubled.Contains(r) {
			t.Errorf("complement(complement(vs)) diverges at %v", r)
		}
	}
}

func TestVersionSetIntersectionAgreesWithAnd(t *testing.T) {
	a := FromMatchSpec(mustParse(t, "numpy >=1.0"))
	b := FromMatchSpec(mustParse(t, "numpy <2.0"))
	inter := Intersection(a, b)
	records := []pkgrecord.PackageRecord{
		{Name: "numpy", Version: "0.5.0"},
		{Name: "numpy", Version: "1.5.0"},
		{Name: "numpy", Version: "2.5.0"},
	}
	for _, r := range records {
		want := a.Contains(r) && b.Contains(r)
		if inter.Contains(r) != want {
			t.Errorf("Intersection mismatch at %v", r)
		}
	}
}

func TestBuildNumberRange(t *testing.T) {
	m, err := Parse("numpy[build_number=>=2]")
	if err != nil {
		t.Fatal(err)
	}
	if m.Matches(pkgrecord.PackageRecord{Name: "numpy", BuildNumber: 1}) {
		t.Errorf("expected build_number>=2 to reject build_number=1")
	}
	if !m.Matches(pkgrecord.PackageRecord{Name: "numpy", BuildNumber: 2}) {
		t.Errorf("expected build_number>=2 to accept build_number=2")
	}
}

func TestChannelPrefix(t *testing.T) {
	m, err := Parse("conda-forge::numpy")
	if err != nil {
		t.Fatal(err)
	}
	if m.Channel != "conda-forge" || m.Name != "numpy" {
		t.Errorf("expected channel=conda-forge name=numpy, got %+v", m)
	}
}

func mustParse(t *testing.T, s string) MatchSpec {
	t.Helper()
	m, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return m
}
