package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"slack-logger/internal/command"
	"slack-logger/internal/config"
	"slack-logger/internal/logger"
	"slack-logger/internal/search"
)

// LogSearchParams are the arguments of the log_search tool.
type LogSearchParams struct {
	Query string   `json:"query" mcp:"filters in !logsearch form, e.g. 'channel:general user:alice'"`
	Size  int      `json:"size,omitempty" mcp:"number of results (default: 10, max: 100)"`
	After *float64 `json:"after,omitempty" mcp:"sort key cursor returned by a previous call"`
}

// LogSearchServer serves the log_search tool.
type LogSearchServer struct {
	searcher command.Searcher
	maxSize  int
	log      zerolog.Logger
}

func NewLogSearchServer(searcher command.Searcher, maxSize int, log zerolog.Logger) *LogSearchServer {
	return &LogSearchServer{searcher: searcher, maxSize: maxSize, log: log}
}

func (s *LogSearchServer) LogSearch(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[LogSearchParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	filters := command.ParseFilters(strings.Fields(args.Query))
	if len(filters) == 0 {
		return errorResult("query has no filters. " + command.HelpText), nil
	}
	size := args.Size
	if size <= 0 {
		size = search.DefaultPageSize
	}
	if s.maxSize > 0 && size > s.maxSize {
		size = s.maxSize
	}

	s.log.Info().Str("filters", filters.String()).Int("size", size).Msg("mcp log search")
	res, err := s.searcher.Search(ctx, search.Request{Filters: filters, Size: size, After: args.After})
	if err != nil {
		s.log.Error().Err(err).Msg("mcp log search failed")
		return errorResult(command.FormatFailure(filters, err).Text), nil
	}

	att := command.FormatResult(filters, res)
	text := att.Pretext + "\n" + att.Title + "\n" + att.Text
	meta := map[string]any{"count": len(res.Hits)}
	if last, ok := res.Last(); ok {
		meta["next_after"] = last.SortKey
		text += fmt.Sprintf("\n(next page: after=%.0f)", last.SortKey)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta:    meta,
	}, nil
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg, err := config.LoadSearch()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	// stdout carries the protocol
	lg := logger.NewWithWriter(log.Writer(), "logsearch-mcp", cfg.LogLevel)

	backend, closeBackend, err := search.Open(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to open search backend")
	}
	defer func() { _ = closeBackend() }()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "slack-logger-logsearch-mcp",
		Version: "1.0.0",
	}, nil)

	ls := NewLogSearchServer(search.NewEngine(backend, lg), cfg.MaxPageSize, lg)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_search",
		Description: "Searches logged chat messages by channel, user, text or time and returns them oldest first",
	}, ls.LogSearch)

	lg.Info().Str("backend", string(cfg.SearchBackend)).Msg("starting server on stdin/stdout")
	if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
		lg.Error().Err(err).Msg("server failed")
	}
}
