package main

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-logger/internal/command"
	"slack-logger/internal/model"
	"slack-logger/internal/search"
)

type fakeSearcher struct {
	res  search.Result
	err  error
	reqs []search.Request
}

func (f *fakeSearcher) Search(ctx context.Context, req search.Request) (search.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func call(t *testing.T, s *LogSearchServer, args LogSearchParams) (*mcp.CallToolResultFor[any], string) {
	t.Helper()
	res, err := s.LogSearch(context.Background(), nil, &mcp.CallToolParamsFor[LogSearchParams]{Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res, res.Content[0].(*mcp.TextContent).Text
}

func TestLogSearch_FormatsHitsAndCursor(t *testing.T) {
	fs := &fakeSearcher{res: search.Result{Hits: []search.Hit{
		{SortKey: 1610000000000, Record: model.Record{Channel: "general", User: "alice", Text: "hi", Time: "2021/01/07 06:13:20"}},
	}}}
	s := NewLogSearchServer(fs, 100, zerolog.Nop())

	res, text := call(t, s, LogSearchParams{Query: "channel:general", Size: 500})
	assert.False(t, res.IsError)
	assert.Contains(t, text, "1 results found")
	assert.Contains(t, text, "2021/01/07 06:13:20 alice@general: hi")
	assert.Contains(t, text, "after=1610000000000")
	assert.Equal(t, 1610000000000.0, res.Meta["next_after"])

	require.Len(t, fs.reqs, 1)
	assert.Equal(t, 100, fs.reqs[0].Size)
}

func TestLogSearch_PassesAfter(t *testing.T) {
	fs := &fakeSearcher{}
	s := NewLogSearchServer(fs, 100, zerolog.Nop())
	after := 42.0

	_, text := call(t, s, LogSearchParams{Query: "user:alice", After: &after})
	assert.Contains(t, text, command.NoResultsText)
	require.Len(t, fs.reqs, 1)
	assert.Equal(t, search.DefaultPageSize, fs.reqs[0].Size)
	assert.Equal(t, 42.0, *fs.reqs[0].After)
}

func TestLogSearch_Errors(t *testing.T) {
	fs := &fakeSearcher{err: errors.Join(search.ErrSearchFailed, errors.New("down"))}
	s := NewLogSearchServer(fs, 100, zerolog.Nop())

	res, text := call(t, s, LogSearchParams{Query: "user:"})
	assert.True(t, res.IsError)
	assert.Contains(t, text, "no filters")
	assert.Empty(t, fs.reqs)

	res, text = call(t, s, LogSearchParams{Query: "user:alice"})
	assert.True(t, res.IsError)
	assert.Equal(t, command.FailedText, text)
}
