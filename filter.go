package optimade

import (
	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/filter"
	"github.com/nlstn/go-optimade/internal/transform"
	"github.com/nlstn/go-optimade/internal/transform/mongo"
	"github.com/nlstn/go-optimade/internal/transform/sqlfilter"
)

// ParseFilter parses and normalizes a filter with the latest grammar. An
// empty filter yields a nil expression, which matches everything.
func ParseFilter(text string) (Expr, error) {
	return filter.Parse(text)
}

// ParseFilterVersion parses a filter with a specific grammar version, e.g.
// "1.0.0" or "1.2.0.strict".
func ParseFilterVersion(text, version string) (Expr, error) {
	p, err := filter.NewParser(nil, filter.WithGrammar(version))
	if err != nil {
		return nil, err
	}
	return p.Parse(text)
}

// ValidateFilter reports whether text is a valid filter.
func ValidateFilter(text string) error {
	return filter.Validate(text)
}

// FormatFilter renders an expression in canonical filter syntax.
func FormatFilter(e Expr) string {
	if e == nil {
		return ""
	}
	return ast.Format(e)
}

// ToMongo lowers e to a MongoDB query document. Warnings list filters on
// unknown fields that were replaced by a predicate matching nothing.
func ToMongo(e Expr, cfg *TransformConfig) (MongoDocument, []Warning, error) {
	r := transform.NewResolver(cfg)
	doc, err := mongo.Transform(e, r)
	if err != nil {
		return nil, nil, err
	}
	return doc, r.Warnings(), nil
}

// ToSQL lowers e to a WHERE condition over the relational attribute
// schema.
func ToSQL(e Expr, cfg *TransformConfig) (SQLCondition, []Warning, error) {
	r := transform.NewResolver(cfg)
	cond, err := sqlfilter.Transform(e, r)
	if err != nil {
		return SQLCondition{}, nil, err
	}
	return cond, r.Warnings(), nil
}
