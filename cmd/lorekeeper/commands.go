package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriscorrea/lorekeeper/internal/app"
	"github.com/chriscorrea/lorekeeper/internal/config"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/counter"
	"github.com/chriscorrea/lorekeeper/internal/eval"
	"github.com/chriscorrea/lorekeeper/internal/llm"
	"github.com/chriscorrea/lorekeeper/internal/mcp"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the chapters most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			formatName, _ := cmd.Flags().GetString("format")
			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				formatName = "json"
			}
			format, err := app.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			results := store.Search(query)
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			out, err := app.FormatResults(query, results, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of results (0 for all)")
	cmd.Flags().StringP("format", "f", "md", "Output format: md, txt or json")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.MarkFlagsMutuallyExclusive("format", "json")
	return cmd
}

func newContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Print the corpus summary used to ground answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			full, err := store.FullContext(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), full)
			if tc, err := counter.NewTokenCounter(); err == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%d tokens (%s)\n", tc.Count(full), tc.Name())
			} else {
				slog.Warn("Token counter unavailable", "error", err)
			}
			return nil
		},
	}
}

func newChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters [book]",
		Short: "List chapters with their characters and key event counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			books := store.Books()
			if len(args) == 1 {
				book, ok := store.Book(args[0])
				if !ok {
					return fmt.Errorf("book %q not found", args[0])
				}
				books = []*corpus.Book{book}
			}
			for _, book := range books {
				fmt.Fprintln(cmd.OutOrStdout(), renderChapters(book))
			}
			return nil
		},
	}
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask the assistant about the books",
		Long: `Ask the assistant about the books. With a message, prints one answer; without,
reads questions from standard input, one per line, keeping the conversation.

The model key is read from the environment variable named by llm.api_key_env
(GROQ_API_KEY by default). Without a key the assistant quotes matching passages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			personaName, _ := cmd.Flags().GetString("persona")
			modeName, _ := cmd.Flags().GetString("mode")
			sessionID, _ := cmd.Flags().GetString("session")
			jsonFlag, _ := cmd.Flags().GetBool("json")

			mode, err := app.ParseMode(modeName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if personaName == "" {
				personaName = cfg.Assistant.Persona
			}
			persona, err := app.ParsePersona(personaName)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			assistant := newAssistant(cfg, store, persona)

			ask := func(message string) error {
				resp, err := assistant.Ask(cmd.Context(), app.Request{
					Message:   message,
					SessionID: sessionID,
					Mode:      mode,
					Persona:   persona,
				})
				if err != nil {
					return err
				}
				sessionID = resp.SessionID
				return printAnswer(cmd.OutOrStdout(), resp, jsonFlag)
			}

			if len(args) > 0 {
				return ask(strings.Join(args, " "))
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := ask(line); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringP("persona", "p", "", "Answer voice: standard, dumbledore, dobby or snape (default from config)")
	cmd.Flags().StringP("mode", "m", "freeform", "Answer layout: freeform or structured")
	cmd.Flags().StringP("session", "s", "", "Conversation to continue")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <query>...",
		Short: "Compare search ranking with BM25 and TF-IDF baselines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, _ := cmd.Flags().GetInt("k")
			jsonFlag, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			reports := eval.New(store.Books(), store.Scorer(), store.Threshold(), eval.WithK(k)).Run(args)
			if jsonFlag {
				data, err := json.MarshalIndent(reports, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode reports: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReports(reports, store.Threshold()))
			return nil
		},
	}
	cmd.Flags().Int("k", eval.DefaultK, "Depth for top-k overlap")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs lorekeeper as an MCP (Model Context Protocol) server on stdio so agents can
search the books, read chapters and ask grounded questions.

  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "lorekeeper": {
  #       "command": "lorekeeper",
  #       "args": ["--books", "/path/to/books", "mcp"]
  #     }
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			persona, err := app.ParsePersona(cfg.Assistant.Persona)
			if err != nil {
				return err
			}

			// books load on the first tool call; stdout belongs to the protocol
			store := newStore(cfg)
			opts := []mcp.Option{
				mcp.WithLoadPolicy(cfg.RetryPolicy()),
				mcp.WithAssistant(newAssistant(cfg, store, persona)),
			}
			if tc, err := counter.NewTokenCounter(); err == nil {
				opts = append(opts, mcp.WithPageSize(1000, tc))
			}

			if err := mcp.New(store, opts...).ServeStdio(); err != nil {
				return fmt.Errorf("mcp server failed: %w", err)
			}
			return nil
		},
	}
}

// newAssistant connects the model client when a key is configured
func newAssistant(cfg *config.Config, store *corpus.Store, persona app.Persona) *app.Assistant {
	var completer llm.Completer
	client, err := llm.NewClient(cfg.ClientConfig())
	if err != nil {
		slog.Warn("Chat model unavailable, answers will quote passages", "error", err)
	} else {
		completer = client
	}

	var c counter.Counter
	if tc, err := counter.NewTokenCounter(); err == nil {
		c = tc
	} else {
		slog.Warn("Token counter unavailable, budgeting context in words", "error", err)
	}

	return app.NewAssistant(store, completer, c, app.Options{
		Persona:       persona,
		Passages:      cfg.Assistant.Passages,
		HistoryLimit:  cfg.Assistant.HistoryLimit,
		HistoryWindow: cfg.Assistant.HistoryWindow,
		ContextTokens: cfg.Assistant.ContextTokens,
		LoadPolicy:    cfg.RetryPolicy(),
	})
}

func printAnswer(w io.Writer, resp *app.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(w, renderAnswer(resp))
	return nil
}
