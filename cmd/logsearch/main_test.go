package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-logger/internal/model"
	"slack-logger/internal/search"
	"slack-logger/internal/storage"
)

func TestReindexThenSearch(t *testing.T) {
	dir := t.TempDir()
	rec, err := storage.NewFileRecorder(filepath.Join(dir, "slack-log"))
	require.NoError(t, err)
	require.NoError(t, rec.Append(model.Record{Channel: "general", User: "alice", Text: "hi", Time: "2021/01/07 06:13:20"}))
	require.NoError(t, rec.Append(model.Record{Channel: "random", User: "bob", Text: "привет", Time: "2021/01/07 06:13:21"}))

	be, err := search.NewSQLite(filepath.Join(dir, "index.db"), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	var out bytes.Buffer
	require.NoError(t, runReindex(context.Background(), be, []string{rec.Path()}, &out))
	assert.Contains(t, out.String(), "indexed 2 records")

	out.Reset()
	require.NoError(t, runSearch(context.Background(), be, []string{"user:bob"}, 10, nil, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "1 results found", lines[0])
	assert.Equal(t, "user: bob", lines[1])
	assert.Equal(t, "2021/01/07 06:13:21 bob@random: привет", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "next: --after "))
}

func TestRunSearch_NoFilters(t *testing.T) {
	be, err := search.NewSQLite(filepath.Join(t.TempDir(), "index.db"), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	assert.Error(t, runSearch(context.Background(), be, []string{"user:"}, 10, nil, &bytes.Buffer{}))
}

func TestRunReindex_MissingFile(t *testing.T) {
	be, err := search.NewSQLite(filepath.Join(t.TempDir(), "index.db"), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	assert.Error(t, runReindex(context.Background(), be, []string{filepath.Join(t.TempDir(), "nope")}, &bytes.Buffer{}))
}
