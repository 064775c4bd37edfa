package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slack-logger/internal/model"
)

// Indexer is the search side of the store; search.Backend satisfies it.
type Indexer interface {
	Index(ctx context.Context, rec model.Record) (bool, error)
}

// Store writes every message to the durable log and to the search index.
// The two writes are independent: one failing does not undo the other.
type Store struct {
	recorder Recorder
	index    Indexer
	loc      *time.Location
	log      zerolog.Logger
}

// NewStore accepts a nil recorder or index to disable that sink.
func NewStore(recorder Recorder, index Indexer, loc *time.Location, log zerolog.Logger) *Store {
	return &Store{recorder: recorder, index: index, loc: loc, log: log}
}

// Persist returns whether the index reported creating the document, and the
// combined error of both sinks.
func (s *Store) Persist(ctx context.Context, msg model.ChatMessage) (bool, error) {
	rec := model.NewRecord(msg, s.loc)

	s.log.Info().
		Str("channel", rec.Channel).
		Str("user", rec.User).
		Str("text", rec.Text).
		Str("time", rec.Time).
		Msg("message")

	var logErr, indexErr error
	if s.recorder != nil {
		if err := s.recorder.Append(rec); err != nil {
			logErr = fmt.Errorf("append log: %w", err)
		}
	}

	created := false
	if s.index != nil {
		c, err := s.index.Index(ctx, rec)
		if err != nil {
			indexErr = fmt.Errorf("index record: %w", err)
		}
		created = c
	}
	return created, errors.Join(logErr, indexErr)
}

// Reindex pushes records into the index, e.g. to rebuild it from the log.
// It stops at the first failure and returns how many were indexed.
func (s *Store) Reindex(ctx context.Context, records []model.Record) (int, error) {
	if s.index == nil {
		return 0, errors.New("no index configured")
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.index.Index(ctx, rec); err != nil {
			return i, fmt.Errorf("index record %d: %w", i, err)
		}
	}
	return len(records), nil
}
