// Package grammar holds the versioned definitions of the OPTIMADE filter
// language. Each definition is a YAML file named
// filter_v<major>.<minor>.<patch>[.<variant>].yaml that declares which
// language constructs the parser accepts for that revision.
package grammar

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Feature names an optional construct of the filter language.
type Feature string

const (
	// FeatureRightHandComparisons allows "value OP property".
	FeatureRightHandComparisons Feature = "right_hand_comparisons"
	// FeatureIsKnown allows "property IS KNOWN" and "property IS UNKNOWN".
	FeatureIsKnown Feature = "is_known"
	// FeatureLength allows "property LENGTH [OP] value".
	FeatureLength Feature = "length"
	// FeatureLengthPrefix allows "LENGTH property [OP] value".
	FeatureLengthPrefix Feature = "length_prefix"
	// FeatureCorrelatedSetOps allows "p1:p2 HAS v1:v2".
	FeatureCorrelatedSetOps Feature = "correlated_set_ops"
	// FeatureSetOperators allows an operator after HAS ("HAS > 3").
	FeatureSetOperators Feature = "set_operators"
	// FeatureQuotedValueLists splits single-quoted literals on commas.
	FeatureQuotedValueLists Feature = "quoted_value_lists"
	// FeatureOptionalWith allows STARTS and ENDS without WITH.
	FeatureOptionalWith Feature = "optional_with"
)

var knownFeatures = map[Feature]bool{
	FeatureRightHandComparisons: true,
	FeatureIsKnown:              true,
	FeatureLength:               true,
	FeatureLengthPrefix:         true,
	FeatureCorrelatedSetOps:     true,
	FeatureSetOperators:         true,
	FeatureQuotedValueLists:     true,
	FeatureOptionalWith:         true,
}

// Grammar is one immutable revision of the filter language.
type Grammar struct {
	version     Version
	description string
	ebnf        string
	features    map[Feature]bool
}

// Version returns the grammar revision.
func (g *Grammar) Version() Version {
	return g.version
}

// Description returns the human readable summary from the definition file.
func (g *Grammar) Description() string {
	return g.description
}

// EBNF returns the documentation grammar text.
func (g *Grammar) EBNF() string {
	return g.ebnf
}

// Supports reports whether the grammar enables the given feature.
func (g *Grammar) Supports(f Feature) bool {
	return g.features[f]
}

// Features returns the enabled features in sorted order.
func (g *Grammar) Features() []Feature {
	out := make([]Feature, 0, len(g.features))
	for f, on := range g.features {
		if on {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type definition struct {
	Version     string          `yaml:"version"`
	Description string          `yaml:"description"`
	Features    map[string]bool `yaml:"features"`
	EBNF        string          `yaml:"ebnf"`
}

// Decode parses a grammar definition document.
func Decode(data []byte) (*Grammar, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode grammar definition: %w", err)
	}

	v, err := ParseVersion(def.Version)
	if err != nil {
		return nil, err
	}

	features := make(map[Feature]bool, len(def.Features))
	for name, on := range def.Features {
		f := Feature(name)
		if !knownFeatures[f] {
			return nil, fmt.Errorf("grammar %s: unknown feature %q", v, name)
		}
		features[f] = on
	}

	return &Grammar{
		version:     v,
		description: def.Description,
		ebnf:        def.EBNF,
		features:    features,
	}, nil
}
