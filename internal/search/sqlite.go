package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"slack-logger/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id        TEXT PRIMARY KEY,
	channel   TEXT NOT NULL,
	user_name TEXT NOT NULL,
	text      TEXT NOT NULL,
	time      TEXT NOT NULL,
	sort_key  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_sort_key ON records (sort_key);
CREATE INDEX IF NOT EXISTS records_channel ON records (channel, sort_key);
CREATE INDEX IF NOT EXISTS records_user ON records (user_name, sort_key);`

// SQLite is a single-file search backend. channel and user match exactly,
// text matches a case-insensitive substring and time matches a prefix, so
// "time:2021/01/07" selects one day.
//
// Sort keys are the record time in epoch milliseconds; records sharing a
// second get consecutive millisecond offsets in insertion order so paging
// never skips them.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
	log zerolog.Logger
}

// NewSQLite opens the index at path. loc is the zone record times are
// written in (UTC when nil).
func NewSQLite(path string, loc *time.Location, log zerolog.Logger) (*SQLite, error) {
	if loc == nil {
		loc = time.UTC
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db, loc: loc, log: log}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Index(ctx context.Context, rec model.Record) (bool, error) {
	ts, err := time.ParseInLocation(model.TimeLayout, rec.Time, s.loc)
	if err != nil {
		return false, fmt.Errorf("parse record time: %w", err)
	}
	base := ts.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var offset int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE sort_key >= ? AND sort_key < ?`, base, base+1000,
	).Scan(&offset)
	if err != nil {
		return false, fmt.Errorf("count same-second records: %w", err)
	}
	if offset > 999 {
		offset = 999
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, channel, user_name, text, time, sort_key) VALUES (?, ?, ?, ?, ?, ?)`,
		id, rec.Channel, rec.User, rec.Text, rec.Time, base+offset,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	s.log.Debug().Str("id", id).Int64("sort_key", base+offset).Msg("record indexed")
	return true, nil
}

func (s *SQLite) Search(ctx context.Context, q Query) ([]Hit, error) {
	order := Desc
	for _, sf := range q.Sort {
		if sf.Field != FieldTime {
			return nil, fmt.Errorf("%w: sort on %q", ErrUnsupportedField, sf.Field)
		}
		order = sf.Order
	}

	var (
		where []string
		args  []any
	)
	for _, f := range q.Filters {
		switch f.Field {
		case FieldChannel:
			where = append(where, "channel = ?")
			args = append(args, f.Value)
		case FieldUser:
			where = append(where, "user_name = ?")
			args = append(args, f.Value)
		case FieldText:
			where = append(where, "instr(lower(text), lower(?)) > 0")
			args = append(args, f.Value)
		case FieldTime:
			where = append(where, "substr(time, 1, length(?)) = ?")
			args = append(args, f.Value, f.Value)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, f.Field)
		}
	}
	if q.After != nil {
		if order == Asc {
			where = append(where, "sort_key > ?")
		} else {
			where = append(where, "sort_key < ?")
		}
		args = append(args, int64(*q.After))
	}

	stmt := "SELECT sort_key, channel, user_name, text, time FROM records"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	if order == Asc {
		stmt += " ORDER BY sort_key ASC"
	} else {
		stmt += " ORDER BY sort_key DESC"
	}
	stmt += " LIMIT ?"
	args = append(args, q.Size)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			key int64
			h   Hit
		)
		if err := rows.Scan(&key, &h.Record.Channel, &h.Record.User, &h.Record.Text, &h.Record.Time); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		h.SortKey = float64(key)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return hits, nil
}
