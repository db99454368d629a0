package grammar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version identifies one registered revision of the filter grammar.
// Variant is an optional tag (e.g. "strict") distinguishing grammars
// that share a semantic version.
type Version struct {
	Major   int
	Minor   int
	Patch   int
	Variant string
}

var variantPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ParseVersion parses "1.2.0", "v1.2.0" or "1.2.0.strict".
// Missing minor or patch components default to zero.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "v")
	if raw == "" {
		return Version{}, fmt.Errorf("empty grammar version")
	}

	var variant string
	if idx := strings.LastIndex(raw, "."); idx >= 0 {
		tail := raw[idx+1:]
		if variantPattern.MatchString(tail) {
			variant = tail
			raw = raw[:idx]
		}
	}

	sv, err := goversion.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("invalid grammar version %q: %w", s, err)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Version{}, fmt.Errorf("invalid grammar version %q: pre-release and metadata tags are not supported", s)
	}

	segments := sv.Segments()
	v := Version{Variant: variant}
	if len(segments) > 0 {
		v.Major = segments[0]
	}
	if len(segments) > 1 {
		v.Minor = segments[1]
	}
	if len(segments) > 2 {
		v.Patch = segments[2]
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for
// constants in tests and static configuration.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version in file-name form, e.g. "1.2.0" or "1.2.0.strict".
func (v Version) String() string {
	s := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	if v.Variant != "" {
		s += "." + v.Variant
	}
	return s
}

// Compare orders versions by major, minor and patch. Variants of the same
// semantic version order after the plain grammar, alphabetically.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpInt(v.Minor, other.Minor)
	case v.Patch != other.Patch:
		return cmpInt(v.Patch, other.Patch)
	}
	return strings.Compare(v.Variant, other.Variant)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
