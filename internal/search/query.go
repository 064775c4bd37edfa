package search

import (
	"fmt"
	"strings"
)

// Well-known record fields.
const (
	FieldChannel = "channel"
	FieldUser    = "user"
	FieldText    = "text"
	FieldTime    = "time"
)

// DefaultPageSize is used when a request leaves Size unset.
const DefaultPageSize = 10

// Filter is one field/value constraint.
type Filter struct {
	Field string
	Value string
}

func (f Filter) String() string { return f.Field + ": " + f.Value }

// Filters are combined with AND, in order.
type Filters []Filter

// String renders the filters as "field: value, field: value".
func (fs Filters) String() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// Order is a sort direction.
type Order string

const (
	Desc Order = "desc"
	Asc  Order = "asc"
)

// SortField is one sort criterion.
type SortField struct {
	Field string
	Order Order
}

// DefaultSort is newest first.
var DefaultSort = []SortField{{Field: FieldTime, Order: Desc}}

// Query is a fully resolved search request as sent to a backend.
type Query struct {
	Filters Filters
	Size    int
	Sort    []SortField
	After   *float64
}

// Body renders q as an Elasticsearch request body. One filter becomes a term
// query; several become a bool filter of term clauses.
func (q Query) Body() map[string]any {
	body := map[string]any{
		"size":  q.Size,
		"query": q.clause(),
	}
	if len(q.Sort) > 0 {
		sort := make([]map[string]any, len(q.Sort))
		for i, s := range q.Sort {
			sort[i] = map[string]any{s.Field: map[string]any{"order": string(s.Order)}}
		}
		body["sort"] = sort
	}
	if q.After != nil {
		body["search_after"] = []float64{*q.After}
	}
	return body
}

func (q Query) clause() map[string]any {
	if len(q.Filters) == 1 {
		return map[string]any{"term": term(q.Filters[0])}
	}
	terms := make([]map[string]any, len(q.Filters))
	for i, f := range q.Filters {
		terms[i] = map[string]any{"term": term(f)}
	}
	return map[string]any{"bool": map[string]any{"filter": terms}}
}

func term(f Filter) map[string]any {
	return map[string]any{f.Field: f.Value}
}

func (q Query) String() string {
	after := "none"
	if q.After != nil {
		after = fmt.Sprintf("%.0f", *q.After)
	}
	return fmt.Sprintf("filters=[%s] size=%d after=%s", q.Filters, q.Size, after)
}
