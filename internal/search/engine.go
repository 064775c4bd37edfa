// Package search builds structured queries over indexed chat records and runs
// them against a search backend.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"slack-logger/internal/model"
)

var (
	// ErrSearchFailed wraps every backend failure, so callers can tell a
	// failed search from one with no matches.
	ErrSearchFailed = errors.New("search failed")
	// ErrMalformedResponse means the backend answered without the expected hits.
	ErrMalformedResponse = errors.New("malformed search response")
	ErrNoFilters         = errors.New("no search filters")
	ErrUnsupportedField  = errors.New("unsupported search field")
)

// Hit is one matched record and its sort key.
type Hit struct {
	SortKey float64
	Record  model.Record
}

// Result holds hits in backend order.
type Result struct {
	Hits []Hit
}

func (r Result) Empty() bool { return len(r.Hits) == 0 }

// Last is the final hit, the cursor for the next page.
func (r Result) Last() (Hit, bool) {
	if len(r.Hits) == 0 {
		return Hit{}, false
	}
	return r.Hits[len(r.Hits)-1], true
}

// Backend stores and queries records.
type Backend interface {
	Index(ctx context.Context, rec model.Record) (bool, error)
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// Request is what callers ask for; zero values pick defaults.
type Request struct {
	Filters Filters
	Size    int
	After   *float64
	Sort    []SortField
}

// Engine applies request defaults and runs queries against a Backend.
type Engine struct {
	backend Backend
	log     zerolog.Logger
}

func NewEngine(backend Backend, log zerolog.Logger) *Engine {
	return &Engine{backend: backend, log: log}
}

// Search runs req against the backend. No matches is an empty Result and a
// nil error; backend failures wrap ErrSearchFailed.
func (e *Engine) Search(ctx context.Context, req Request) (Result, error) {
	if len(req.Filters) == 0 {
		return Result{}, ErrNoFilters
	}
	q := Query{
		Filters: req.Filters,
		Size:    req.Size,
		Sort:    req.Sort,
		After:   req.After,
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if len(q.Sort) == 0 {
		q.Sort = DefaultSort
	}

	hits, err := e.backend.Search(ctx, q)
	if err != nil {
		e.log.Error().Err(err).Str("query", q.String()).Msg("search backend request failed")
		return Result{}, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	e.log.Debug().Str("query", q.String()).Int("hits", len(hits)).Msg("search done")
	return Result{Hits: hits}, nil
}
