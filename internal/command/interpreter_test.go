package command

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-logger/internal/model"
	"slack-logger/internal/search"
	"slack-logger/internal/session"
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

func newInterpreter(s Searcher) (*Interpreter, *session.Manager) {
	sessions := session.NewManager()
	return NewInterpreter(s, sessions, 10, 100, zerolog.Nop()), sessions
}

func TestParseFilters(t *testing.T) {
	cases := []struct {
		in   string
		want search.Filters
	}{
		{"channel:general", search.Filters{{Field: "channel", Value: "general"}}},
		{"channel:general user:alice", search.Filters{{Field: "channel", Value: "general"}, {Field: "user", Value: "alice"}}},
		{"hello", search.Filters{{Field: "text", Value: "hello"}}},
		{"user:alice hello world", search.Filters{{Field: "user", Value: "alice"}, {Field: "user", Value: "hello"}, {Field: "user", Value: "world"}}},
		{"hello channel:general", search.Filters{{Field: "text", Value: "hello"}, {Field: "channel", Value: "general"}}},
		{"time:2021/01/07 12:30", search.Filters{{Field: "time", Value: "2021/01/07"}, {Field: "time", Value: "12:30"}}},
		{"time:12:30", search.Filters{{Field: "time", Value: "12:30"}}},
		{"Channel:general", search.Filters{{Field: "channel", Value: "general"}}},
		{"channel: general", search.Filters{{Field: "channel", Value: "general"}}},
		{":foo", search.Filters{{Field: "text", Value: "foo"}}},
		{"user:", nil},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseFilters(strings.Fields(tc.in)))
		})
	}
}

func TestHandle_NotACommand(t *testing.T) {
	fs := &fakeSearcher{}
	in, _ := newInterpreter(fs)
	assert.Nil(t, in.Handle(context.Background(), "C1", "hi"))
	assert.Nil(t, in.Handle(context.Background(), "C1", " !logsearch user:x"))
	assert.Empty(t, fs.reqs)
}

func TestHandle_UnknownCommand(t *testing.T) {
	fs := &fakeSearcher{}
	in, _ := newInterpreter(fs)
	assert.Nil(t, in.Handle(context.Background(), "C1", "!unknown foo"))
	assert.Nil(t, in.Handle(context.Background(), "C1", "!"))
	assert.Empty(t, fs.reqs)
}

func TestHandle_Help(t *testing.T) {
	in, _ := newInterpreter(&fakeSearcher{})
	for _, text := range []string{"!loghelp", "!logsearch", "!logsearch user:", "!logmore abc", "!logmore 0"} {
		got := in.Handle(context.Background(), "C1", text)
		require.Len(t, got, 1, text)
		assert.Equal(t, HelpText, got[0].Text, text)
	}
}

func TestHandle_SearchFormatsAndStoresCursor(t *testing.T) {
	fs := &fakeSearcher{res: search.Result{Hits: []search.Hit{
		{SortKey: 2000, Record: model.Record{Channel: "general", User: "bob", Text: "second", Time: "2021/01/07 06:13:22"}},
		{SortKey: 1000, Record: model.Record{Channel: "general", User: "alice", Text: "first", Time: "2021/01/07 06:13:21"}},
	}}}
	in, sessions := newInterpreter(fs)

	got := in.Handle(context.Background(), "C1", "!logsearch channel:general")
	require.Len(t, got, 1)
	assert.Equal(t, "2 results found", got[0].Pretext)
	assert.Equal(t, "channel: general", got[0].Title)
	assert.Equal(t, "2021/01/07 06:13:21 alice@general: first\n2021/01/07 06:13:22 bob@general: second", got[0].Text)

	require.Len(t, fs.reqs, 1)
	assert.Equal(t, 10, fs.reqs[0].Size)
	assert.Nil(t, fs.reqs[0].After)

	cur, ok := sessions.Get("C1")
	require.True(t, ok)
	assert.Equal(t, 1000.0, cur.After)
	assert.Equal(t, search.Filters{{Field: "channel", Value: "general"}}, cur.Filters)

	_, ok = sessions.Get("C2")
	assert.False(t, ok)
}

func TestHandle_SingleResultScenario(t *testing.T) {
	fs := &fakeSearcher{res: search.Result{Hits: []search.Hit{
		{SortKey: 1, Record: model.Record{Channel: "general", User: "alice", Text: "hi", Time: "2021/01/07 06:13:20"}},
	}}}
	in, _ := newInterpreter(fs)

	got := in.Handle(context.Background(), "C1", "!logsearch channel:general")
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Pretext, "1")
	assert.Equal(t, "channel: general", got[0].Title)
	assert.Contains(t, got[0].Text, "2021/01/07 06:13:20 alice@general: hi")
}

func TestHandle_EmptyResultKeepsCursor(t *testing.T) {
	fs := &fakeSearcher{}
	in, sessions := newInterpreter(fs)
	sessions.Set("C1", session.Cursor{Filters: search.Filters{{Field: "user", Value: "old"}}, After: 5})

	got := in.Handle(context.Background(), "C1", "!logsearch user:nobody")
	require.Len(t, got, 1)
	assert.Equal(t, "0 results found", got[0].Pretext)
	assert.Equal(t, NoResultsText, got[0].Text)

	cur, _ := sessions.Get("C1")
	assert.Equal(t, 5.0, cur.After)
	assert.Equal(t, "old", cur.Filters[0].Value)
}

func TestHandle_FailureIsReportedAndKeepsCursor(t *testing.T) {
	fs := &fakeSearcher{err: fmt.Errorf("%w: boom", search.ErrSearchFailed)}
	in, sessions := newInterpreter(fs)

	got := in.Handle(context.Background(), "C1", "!logsearch user:alice")
	require.Len(t, got, 1)
	assert.Equal(t, FailedText, got[0].Text)
	_, ok := sessions.Get("C1")
	assert.False(t, ok)
}

func TestHandle_MoreWithoutPreviousSearch(t *testing.T) {
	fs := &fakeSearcher{}
	in, _ := newInterpreter(fs)

	got := in.Handle(context.Background(), "C1", "!logmore")
	require.Len(t, got, 1)
	assert.Equal(t, NoPreviousText, got[0].Text)
	assert.Empty(t, fs.reqs)
}

func TestHandle_MoreUsesCursorAndSize(t *testing.T) {
	fs := &fakeSearcher{}
	in, sessions := newInterpreter(fs)
	sessions.Set("C1", session.Cursor{Filters: search.Filters{{Field: "user", Value: "alice"}}, PageSize: 10, After: 1234})

	in.Handle(context.Background(), "C1", "!logmore 3")
	require.Len(t, fs.reqs, 1)
	assert.Equal(t, 3, fs.reqs[0].Size)
	require.NotNil(t, fs.reqs[0].After)
	assert.Equal(t, 1234.0, *fs.reqs[0].After)
	assert.Equal(t, search.Filters{{Field: "user", Value: "alice"}}, fs.reqs[0].Filters)

	in.Handle(context.Background(), "C1", "!logmore 5000")
	assert.Equal(t, 100, fs.reqs[1].Size)

	in.Handle(context.Background(), "C1", "!logmore")
	assert.Equal(t, 10, fs.reqs[2].Size)
}

func TestSearchThenMore_PagesBackwardWithoutDuplicates(t *testing.T) {
	be, err := search.NewSQLite(filepath.Join(t.TempDir(), "index.db"), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := be.Index(ctx, model.Record{
			Channel: "general",
			User:    "alice",
			Text:    fmt.Sprintf("msg %02d", i),
			Time:    fmt.Sprintf("2021/01/07 06:13:%02d", i),
		})
		require.NoError(t, err)
	}

	engine := search.NewEngine(be, zerolog.Nop())
	in, sessions := newInterpreter(engine)

	first := in.Handle(ctx, "C1", "!logsearch channel:general")
	require.Len(t, first, 1)
	assert.Equal(t, "10 results found", first[0].Pretext)
	firstLines := strings.Split(first[0].Text, "\n")
	require.Len(t, firstLines, 10)
	assert.Contains(t, firstLines[0], "msg 05")
	assert.Contains(t, firstLines[9], "msg 14")

	cur, ok := sessions.Get("C1")
	require.True(t, ok)
	oldest, err := be.Search(ctx, search.Query{Filters: search.Filters{{Field: "text", Value: "msg 05"}}, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, oldest[0].SortKey, cur.After)

	more := in.Handle(ctx, "C1", "!logmore")
	require.Len(t, more, 1)
	assert.Equal(t, "5 results found", more[0].Pretext)
	moreLines := strings.Split(more[0].Text, "\n")
	require.Len(t, moreLines, 5)
	assert.Contains(t, moreLines[0], "msg 00")
	assert.Contains(t, moreLines[4], "msg 04")

	seen := map[string]bool{}
	for _, l := range append(firstLines, moreLines...) {
		assert.False(t, seen[l], "duplicate line %q", l)
		seen[l] = true
	}

	// the index is exhausted: no results and the cursor stays put
	last, _ := sessions.Get("C1")
	done := in.Handle(ctx, "C1", "!logmore")
	assert.Equal(t, NoResultsText, done[0].Text)
	after, _ := sessions.Get("C1")
	assert.Equal(t, last.After, after.After)
}
