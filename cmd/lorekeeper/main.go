package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chriscorrea/lorekeeper/internal/analyze"
	"github.com/chriscorrea/lorekeeper/internal/config"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/fetch"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/retry"
	"github.com/chriscorrea/lorekeeper/internal/spinner"
	"github.com/chriscorrea/lorekeeper/internal/token"
)

// global flag values, bound in init
var (
	configPath string
	booksFlag  string
	debug      bool
	quiet      bool
)

// setupLogger configures the default slog logger based on debug mode
func setupLogger(debug bool) {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads the config file and applies the --books override
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if booksFlag != "" {
		cfg.Corpus.Source = booksFlag
	}
	return cfg, nil
}

// newStore wires the source, analyzer and scorer described by cfg
func newStore(cfg *config.Config, opts ...corpus.Option) *corpus.Store {
	pipeline := token.NewPipeline(token.NewCanonicalizer(cfg.Analysis.Aliases))
	scorer := relevance.NewScorer(pipeline, cfg.ScorerOptions()...)

	opts = append([]corpus.Option{
		corpus.WithDocuments(cfg.Corpus.Documents...),
		corpus.WithThreshold(*cfg.Search.Threshold),
	}, opts...)

	return corpus.New(
		fetch.NewSource(cfg.Corpus.Source, cfg.ExtractOptions()),
		analyze.New(cfg.AnalyzerOptions()...),
		scorer,
		opts...,
	)
}

// openStore builds the store and loads it, showing progress on a terminal
func openStore(ctx context.Context, cfg *config.Config) (*corpus.Store, error) {
	var sp *spinner.Spinner
	var opts []corpus.Option
	if !quiet && spinner.IsTerminal(os.Stderr) {
		sp = spinner.New(ctx, os.Stderr, "Loading books...")
		opts = append(opts, corpus.WithProgress(sp.Progress))
		sp.Start()
	}

	store := newStore(cfg, opts...)
	err := retry.Do(ctx, cfg.RetryPolicy(), store.Load)
	if sp != nil {
		sp.Stop()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load books from %s: %w", cfg.Corpus.Source, err)
	}
	return store, nil
}

var rootCmd = &cobra.Command{
	Use:   "lorekeeper",
	Short: "Search and chat with a library of books",
	Long: `Lorekeeper indexes a small library of plain-text or HTML books by chapter and answers
questions about them: ranked passage search, a corpus summary for grounding, a chat
assistant backed by an OpenAI-compatible model, and an MCP server for LLM agents.

Examples:
  lorekeeper search "invisibility cloak"
  lorekeeper chapters "Harry Potter 1"
  lorekeeper ask --persona dumbledore "Who is Nicolas Flamel?"
  lorekeeper --books https://example.com/books mcp`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(debug)
		// a missing .env is fine; keys may come from the environment
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file loaded", "error", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lorekeeper.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&booksFlag, "books", "b", "", "Book directory or base URL (overrides config and "+config.SourceEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "Enable debug logging")
	_ = rootCmd.PersistentFlags().MarkHidden("debug")

	rootCmd.AddCommand(
		newSearchCmd(),
		newContextCmd(),
		newChaptersCmd(),
		newAskCmd(),
		newEvalCmd(),
		newMCPCmd(),
	)
}

func main() {
	// create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
