package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"slack-logger/internal/command"
	"slack-logger/internal/config"
	"slack-logger/internal/logger"
	"slack-logger/internal/search"
	"slack-logger/internal/storage"
)

var (
	sizeFlag  int
	afterFlag float64
	rootCmd   = &cobra.Command{
		Use:           "logsearch",
		Short:         "Query and rebuild the chat log search index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	searchCmd := &cobra.Command{
		Use:   "search <key:value>...",
		Short: "Search the index with the !logsearch grammar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeFn, err := openBackend()
			if err != nil {
				return err
			}
			defer closeFn()
			var after *float64
			if cmd.Flags().Changed("after") {
				after = &afterFlag
			}
			return runSearch(cmd.Context(), backend, args, sizeFlag, after, os.Stdout)
		},
	}
	searchCmd.Flags().IntVarP(&sizeFlag, "size", "n", search.DefaultPageSize, "Number of results")
	searchCmd.Flags().Float64Var(&afterFlag, "after", 0, "Sort key cursor from a previous page")
	rootCmd.AddCommand(searchCmd)

	reindexCmd := &cobra.Command{
		Use:   "reindex <log-file>...",
		Short: "Index every record of JSON-lines message logs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeFn, err := openBackend()
			if err != nil {
				return err
			}
			defer closeFn()
			return runReindex(cmd.Context(), backend, args, os.Stdout)
		},
	}
	rootCmd.AddCommand(reindexCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func openBackend() (search.Backend, func() error, error) {
	cfg, err := config.LoadSearch()
	if err != nil {
		return nil, nil, err
	}
	return search.Open(cfg, logger.New("logsearch", cfg.LogLevel))
}

func runSearch(ctx context.Context, backend search.Backend, args []string, size int, after *float64, out io.Writer) error {
	filters := command.ParseFilters(args)
	if len(filters) == 0 {
		return fmt.Errorf("no filters in %q", args)
	}
	engine := search.NewEngine(backend, zerolog.Nop())
	res, err := engine.Search(ctx, search.Request{Filters: filters, Size: size, After: after})
	if err != nil {
		return err
	}
	att := command.FormatResult(filters, res)
	fmt.Fprintf(out, "%s\n%s\n%s\n", att.Pretext, att.Title, att.Text)
	if last, ok := res.Last(); ok {
		fmt.Fprintf(out, "next: --after %.0f\n", last.SortKey)
	}
	return nil
}

func runReindex(ctx context.Context, backend search.Backend, files []string, out io.Writer) error {
	store := storage.NewStore(nil, backend, nil, zerolog.Nop())
	total := 0
	for _, f := range files {
		records, err := storage.LoadFile(f)
		if err != nil {
			return err
		}
		n, err := store.Reindex(ctx, records)
		total += n
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		fmt.Fprintf(out, "%s: %d records\n", f, n)
	}
	fmt.Fprintf(out, "indexed %d records\n", total)
	return nil
}
