package grammar

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.2.0", Version{Major: 1, Minor: 2}},
		{"v0.10.1", Version{Minor: 10, Patch: 1}},
		{"1.2.0.strict", Version{Major: 1, Minor: 2, Variant: "strict"}},
		{"1.0", Version{Major: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if err != nil {
				t.Fatalf("ParseVersion(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseVersionInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "1.2.0-beta", "1.x.0"} {
		if _, err := ParseVersion(input); err == nil {
			t.Errorf("ParseVersion(%q) expected error", input)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	a := MustParseVersion("0.9.5")
	b := MustParseVersion("0.10.1")
	c := MustParseVersion("1.2.0")
	d := MustParseVersion("1.2.0.strict")

	if a.Compare(b) >= 0 {
		t.Error("0.9.5 should order before 0.10.1")
	}
	if c.Compare(b) <= 0 {
		t.Error("1.2.0 should order after 0.10.1")
	}
	if c.Compare(d) >= 0 {
		t.Error("plain grammar should order before its variant")
	}
	if c.Compare(c) != 0 {
		t.Error("version should equal itself")
	}
}

func TestEmbeddedRegistry(t *testing.T) {
	r, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded failed: %v", err)
	}

	latest := r.Latest()
	if got := latest.Version().String(); got != "1.2.0" {
		t.Errorf("Latest() = %s, want 1.2.0", got)
	}

	versions := r.Versions()
	if len(versions) != 6 {
		t.Fatalf("expected 6 grammars, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i-1].Compare(versions[i]) >= 0 {
			t.Errorf("versions not sorted: %s before %s", versions[i-1], versions[i])
		}
	}

	old, err := r.LookupString("0.9.5")
	if err != nil {
		t.Fatalf("LookupString(0.9.5) failed: %v", err)
	}
	if old.Supports(FeatureIsKnown) {
		t.Error("0.9.5 should not support IS KNOWN")
	}
	if !latest.Supports(FeatureIsKnown) {
		t.Error("latest grammar should support IS KNOWN")
	}

	strict, err := r.LookupString("1.2.0.strict")
	if err != nil {
		t.Fatalf("LookupString(1.2.0.strict) failed: %v", err)
	}
	if strict.Supports(FeatureQuotedValueLists) {
		t.Error("strict variant should not split quoted value lists")
	}
	if strict.EBNF() == "" {
		t.Error("expected EBNF text on grammar")
	}
}

func TestLookupDefaultsToLatest(t *testing.T) {
	r := MustLoadEmbedded()

	g, err := r.Lookup(nil)
	if err != nil {
		t.Fatalf("Lookup(nil) failed: %v", err)
	}
	if g != r.Latest() {
		t.Error("Lookup(nil) should return the latest grammar")
	}

	g, err = r.LookupString("")
	if err != nil {
		t.Fatalf("LookupString(\"\") failed: %v", err)
	}
	if g != r.Latest() {
		t.Error("LookupString(\"\") should return the latest grammar")
	}
}

func TestLookupUnknownVersion(t *testing.T) {
	r := MustLoadEmbedded()

	for _, input := range []string{"9.9.9", "1.2.0.loose", "not-a-version"} {
		_, err := r.LookupString(input)
		var unknown *UnknownVersionError
		if !errors.As(err, &unknown) {
			t.Fatalf("LookupString(%q) error = %v, want *UnknownVersionError", input, err)
		}
		if len(unknown.Available) == 0 {
			t.Error("expected available versions in error")
		}
		if !errors.Is(err, ErrUnknownVersion) {
			t.Errorf("LookupString(%q) error should match ErrUnknownVersion", input)
		}
	}
}

func TestNewRegistryFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"filter_v2.0.0.yaml": {Data: []byte("version: 2.0.0\nfeatures:\n  is_known: true\n")},
		"filter_v2.1.0.yaml": {Data: []byte("version: 2.1.0\nfeatures:\n  length: true\n")},
		"README.md":          {Data: []byte("ignored")},
	}

	r, err := NewRegistry(fsys)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if got := r.Latest().Version().String(); got != "2.1.0" {
		t.Errorf("Latest() = %s, want 2.1.0", got)
	}
}

func TestNewRegistryRejectsMismatchedFile(t *testing.T) {
	fsys := fstest.MapFS{
		"filter_v2.0.0.yaml": {Data: []byte("version: 2.0.1\n")},
	}
	if _, err := NewRegistry(fsys); err == nil {
		t.Fatal("expected error for mismatched file name and version")
	}
}

func TestNewRegistryRejectsUnknownFeature(t *testing.T) {
	fsys := fstest.MapFS{
		"filter_v2.0.0.yaml": {Data: []byte("version: 2.0.0\nfeatures:\n  teleport: true\n")},
	}
	if _, err := NewRegistry(fsys); err == nil {
		t.Fatal("expected error for unknown feature")
	}
}

func TestNewRegistryEmpty(t *testing.T) {
	if _, err := NewRegistry(fstest.MapFS{}); err == nil {
		t.Fatal("expected error for empty registry")
	}
}
