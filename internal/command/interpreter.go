// Package command interprets the bang-commands users type in chat.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"slack-logger/internal/chat"
	"slack-logger/internal/search"
	"slack-logger/internal/session"
)

const (
	CmdSearch = "!logsearch"
	CmdMore   = "!logmore"
	CmdHelp   = "!loghelp"
)

const (
	HelpText       = "Usage:\n!logsearch <key1>:<value1> [<key2>:<value2> [...]]\n!logmore [<size>]\n!loghelp\n(key: channel, user, text, time)"
	NoResultsText  = "No results found."
	NoPreviousText = "No previous search."
	FailedText     = "Search backend unavailable."
)

// Searcher runs a search; *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Result, error)
}

// Interpreter executes log commands and keeps each channel's search cursor.
type Interpreter struct {
	searcher    Searcher
	sessions    *session.Manager
	pageSize    int
	maxPageSize int
	log         zerolog.Logger
}

// NewInterpreter uses search.DefaultPageSize when pageSize is not positive;
// a maxPageSize below pageSize disables the cap.
func NewInterpreter(searcher Searcher, sessions *session.Manager, pageSize, maxPageSize int, log zerolog.Logger) *Interpreter {
	if pageSize <= 0 {
		pageSize = search.DefaultPageSize
	}
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Interpreter{
		searcher:    searcher,
		sessions:    sessions,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		log:         log,
	}
}

// IsCommand reports whether text is meant for the interpreter at all.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, "!")
}

// Handle runs the command in text for the conversation scope and returns the
// reply. Text that is not a known command yields no reply.
func (in *Interpreter) Handle(ctx context.Context, scope, text string) []chat.Attachment {
	if !IsCommand(text) {
		return nil
	}
	args := strings.Fields(text)
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case CmdSearch:
		filters := ParseFilters(args[1:])
		if len(filters) == 0 {
			return help()
		}
		in.log.Info().Str("scope", scope).Str("filters", filters.String()).Msg("log search")
		return in.search(ctx, scope, filters, in.pageSize, nil)
	case CmdMore:
		size := in.pageSize
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return help()
			}
			size = n
		}
		if in.maxPageSize >= in.pageSize && size > in.maxPageSize {
			size = in.maxPageSize
		}
		cur, ok := in.sessions.Get(scope)
		if !ok {
			return []chat.Attachment{{Text: NoPreviousText}}
		}
		in.log.Info().Str("scope", scope).Str("filters", cur.Filters.String()).Int("size", size).Msg("log more")
		after := cur.After
		return in.search(ctx, scope, cur.Filters, size, &after)
	case CmdHelp:
		return help()
	default:
		return nil
	}
}

func (in *Interpreter) search(ctx context.Context, scope string, filters search.Filters, size int, after *float64) []chat.Attachment {
	res, err := in.searcher.Search(ctx, search.Request{Filters: filters, Size: size, After: after})
	if err != nil {
		in.log.Error().Err(err).Str("scope", scope).Msg("log search failed")
		return []chat.Attachment{FormatFailure(filters, err)}
	}
	if last, ok := res.Last(); ok {
		in.sessions.Set(scope, session.Cursor{Filters: filters, PageSize: size, After: last.SortKey})
	}
	return []chat.Attachment{FormatResult(filters, res)}
}

func help() []chat.Attachment {
	return []chat.Attachment{{Text: HelpText}}
}

// FormatResult renders hits oldest first, one "<time> <user>@<channel>: <text>"
// line each.
func FormatResult(filters search.Filters, res search.Result) chat.Attachment {
	att := chat.Attachment{
		Pretext: fmt.Sprintf("%d results found", len(res.Hits)),
		Title:   filters.String(),
	}
	if res.Empty() {
		att.Text = NoResultsText
		return att
	}
	lines := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		lines[len(res.Hits)-1-i] = h.Record.Line()
	}
	att.Text = strings.Join(lines, "\n")
	return att
}

// FormatFailure is the reply when the backend could not be queried.
func FormatFailure(filters search.Filters, err error) chat.Attachment {
	att := chat.Attachment{Title: filters.String(), Text: FailedText}
	if errors.Is(err, search.ErrUnsupportedField) {
		att.Text = "Unsupported search key. " + HelpText
	}
	return att
}
