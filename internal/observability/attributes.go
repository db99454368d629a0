package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Instrumentation scope names.
const (
	TracerName = "github.com/nlstn/go-optimade"
	MeterName  = "github.com/nlstn/go-optimade"
)

// Attribute keys for collection queries.
const (
	AttrCollection     = "optimade.collection"
	AttrEntryID        = "optimade.entry_id"
	AttrOperation      = "optimade.operation"
	AttrStep           = "optimade.step"
	AttrQueryID        = "optimade.query_id"
	AttrFilter         = "optimade.filter"
	AttrGrammarVersion = "optimade.grammar_version"
	AttrBackend        = "optimade.backend"
	AttrSort           = "optimade.sort"
	AttrPageLimit      = "optimade.page_limit"
	AttrPageOffset     = "optimade.page_offset"
	AttrResultCount    = "optimade.result_count"
	AttrDataReturned   = "optimade.data_returned"
	AttrWarningCount   = "optimade.warning_count"
	AttrErrorType      = "error.type"
)

// Operations.
const (
	OpFind     = "find"
	OpFindByID = "find_by_id"
)

// Pipeline steps.
const (
	StepParse     = "parse"
	StepTransform = "transform"
	StepExecute   = "execute"
	StepPaginate  = "paginate"
)

// Log field keys for trace correlation.
const (
	LogFieldTraceID = "trace_id"
	LogFieldSpanID  = "span_id"
)

func CollectionAttr(name string) attribute.KeyValue {
	return attribute.String(AttrCollection, name)
}

func EntryIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrEntryID, id)
}

func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

func StepAttr(step string) attribute.KeyValue {
	return attribute.String(AttrStep, step)
}

func QueryIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrQueryID, id)
}

func FilterAttr(filter string) attribute.KeyValue {
	return attribute.String(AttrFilter, filter)
}

func GrammarVersionAttr(version string) attribute.KeyValue {
	return attribute.String(AttrGrammarVersion, version)
}

func BackendAttr(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

func SortAttr(sort string) attribute.KeyValue {
	return attribute.String(AttrSort, sort)
}

func PageLimitAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrPageLimit, n)
}

func PageOffsetAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrPageOffset, n)
}

func ResultCountAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrResultCount, n)
}

func DataReturnedAttr(n int64) attribute.KeyValue {
	return attribute.Int64(AttrDataReturned, n)
}
