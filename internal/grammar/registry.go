package grammar

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed grammars/*.yaml
var embedded embed.FS

var fileNamePattern = regexp.MustCompile(`^filter_v(\d+\.\d+\.\d+(?:\.[a-z][a-z0-9_-]*)?)\.ya?ml$`)

// ErrUnknownVersion matches every *UnknownVersionError.
var ErrUnknownVersion = errors.New("unknown filter grammar version")

// UnknownVersionError is returned when a requested grammar version is not
// registered. It is a configuration problem, not a syntax error.
type UnknownVersionError struct {
	Requested string
	Available []string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unknown filter grammar version %q (available: %s)",
		e.Requested, strings.Join(e.Available, ", "))
}

func (e *UnknownVersionError) Is(target error) bool {
	return target == ErrUnknownVersion
}

// Registry holds the loaded grammars. It is built once at startup and never
// mutated afterwards, so it can be shared between goroutines.
type Registry struct {
	grammars []*Grammar
	byKey    map[string]*Grammar
}

// NewRegistry loads every file in fsys whose name matches
// filter_v<semver>[.<variant>].yaml. Directories are walked recursively.
func NewRegistry(fsys fs.FS) (*Registry, error) {
	r := &Registry{byKey: make(map[string]*Grammar)}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := fileNamePattern.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read grammar %s: %w", path, err)
		}
		g, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fileVersion, err := ParseVersion(m[1])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if fileVersion != g.version {
			return fmt.Errorf("%s: file name declares version %s but content declares %s", path, fileVersion, g.version)
		}

		key := g.version.String()
		if _, dup := r.byKey[key]; dup {
			return fmt.Errorf("%s: duplicate grammar version %s", path, key)
		}
		r.byKey[key] = g
		r.grammars = append(r.grammars, g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(r.grammars) == 0 {
		return nil, fmt.Errorf("no filter grammars found")
	}

	sort.Slice(r.grammars, func(i, j int) bool {
		return r.grammars[i].version.Compare(r.grammars[j].version) < 0
	})
	return r, nil
}

// LoadEmbedded builds a registry from the grammars shipped with the module.
func LoadEmbedded() (*Registry, error) {
	sub, err := fs.Sub(embedded, "grammars")
	if err != nil {
		return nil, err
	}
	return NewRegistry(sub)
}

// MustLoadEmbedded is LoadEmbedded for program initialisation and tests.
func MustLoadEmbedded() *Registry {
	r, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	return r
}

// Latest returns the highest registered grammar without a variant tag.
// If only variant grammars exist the highest of those is returned.
func (r *Registry) Latest() *Grammar {
	for i := len(r.grammars) - 1; i >= 0; i-- {
		if r.grammars[i].version.Variant == "" {
			return r.grammars[i]
		}
	}
	return r.grammars[len(r.grammars)-1]
}

// Lookup returns the grammar for v, or the latest grammar when v is nil.
func (r *Registry) Lookup(v *Version) (*Grammar, error) {
	if v == nil {
		return r.Latest(), nil
	}
	if g, ok := r.byKey[v.String()]; ok {
		return g, nil
	}
	return nil, &UnknownVersionError{Requested: v.String(), Available: r.versionStrings()}
}

// LookupString resolves a version string; the empty string selects the
// latest grammar.
func (r *Registry) LookupString(s string) (*Grammar, error) {
	if strings.TrimSpace(s) == "" {
		return r.Latest(), nil
	}
	v, err := ParseVersion(s)
	if err != nil {
		return nil, &UnknownVersionError{Requested: s, Available: r.versionStrings()}
	}
	return r.Lookup(&v)
}

// Versions lists the registered versions in ascending order.
func (r *Registry) Versions() []Version {
	out := make([]Version, len(r.grammars))
	for i, g := range r.grammars {
		out[i] = g.version
	}
	return out
}

func (r *Registry) versionStrings() []string {
	out := make([]string, len(r.grammars))
	for i, g := range r.grammars {
		out[i] = g.version.String()
	}
	return out
}
