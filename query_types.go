package optimade

import (
	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform"
	"github.com/nlstn/go-optimade/internal/transform/mongo"
	"github.com/nlstn/go-optimade/internal/transform/sqlfilter"
)

// Request re-exports the query parameters of a collection request.
//
// Example:
//
//	page, err := service.Find(ctx, "structures", optimade.Request{
//	    Filter:    `elements HAS ALL "Si","O" AND nelements = 2`,
//	    Sort:      "-nsites",
//	    PageLimit: 10,
//	})
type Request = collection.Request

// Page re-exports one page of query results.
type Page = collection.Page

// Backend re-exports the storage contract of a collection.
type Backend = collection.Backend

// Predicate re-exports a backend-specific lowered filter.
type Predicate = collection.Predicate

// SortKey re-exports a resolved sort criterion.
type SortKey = collection.SortKey

// Entry re-exports a stored resource.
type Entry = entry.Entry

// Value re-exports a tagged attribute value.
type Value = entry.Value

// Expr re-exports the normalized filter tree.
type Expr = ast.Expr

// TransformConfig re-exports the field declarations of a collection.
type TransformConfig = transform.Config

// FieldSpec re-exports the declaration of one field.
type FieldSpec = transform.FieldSpec

// Aliases re-exports public to storage field mappings.
type Aliases = transform.Aliases

// Warning re-exports a non-fatal transformation remark.
type Warning = transform.Warning

// MongoDocument re-exports the document dialect output.
type MongoDocument = mongo.Document

// SQLCondition re-exports the relational dialect output.
type SQLCondition = sqlfilter.Condition

// Field kinds and unknown field policies.
const (
	KindString = transform.KindString
	KindInt    = transform.KindInt
	KindFloat  = transform.KindFloat

	UnknownFieldsWarn  = transform.UnknownFieldsWarn
	UnknownFieldsError = transform.UnknownFieldsError
)
