package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/octl/internal/config"
	"github.com/kalambet/octl/internal/history"
	"github.com/kalambet/octl/internal/ollama"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <model> [prompt...]",
	Short: "Generate a completion and save the transcript",
	Long: `Generate a completion with a local model.

The response streams to stdout as it is produced. With --no-stream the
command waits for the full response instead. Every completed exchange is
recorded in the local history database.

Examples:
  octl run llama2 "Why is the sky blue?"
  echo "Why is the sky blue?" | octl run llama2
  octl run llama2 --system "Answer in one sentence" "Why is the sky blue?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noStream, _ := cmd.Flags().GetBool("no-stream")
		system, _ := cmd.Flags().GetString("system")

		model := args[0]
		prompt := strings.Join(args[1:], " ")
		if prompt == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading prompt from stdin: %w", err)
			}
			prompt = strings.TrimSpace(string(data))
		}
		if prompt == "" {
			return fmt.Errorf("no prompt given")
		}

		client, cfg, err := newClient()
		if err != nil {
			return err
		}

		store, err := history.Open(cfg.History.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()

		req := ollama.GenerateRequest{Model: model, Prompt: prompt, System: system}
		final, err := runPrompt(cmd.Context(), client, store, req, !noStream, os.Stdout)
		if err != nil {
			return err
		}

		if noStream {
			fmt.Println(final.Response)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("no-stream", false, "wait for the complete response instead of streaming")
	runCmd.Flags().String("system", "", "system prompt override")
}

// runPrompt generates a completion and records the exchange. When stream is
// true, response fragments are written to w as they arrive; the returned
// response always carries the full folded text.
func runPrompt(ctx context.Context, client *ollama.Client, store *history.Store, req ollama.GenerateRequest, stream bool, w io.Writer) (*ollama.GenerateResponse, error) {
	var final *ollama.GenerateResponse

	if stream {
		s, err := client.GenerateStream(ctx, req)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		var text strings.Builder
		for s.Next() {
			chunk := s.Chunk()
			if chunk.Response != "" {
				fmt.Fprint(w, chunk.Response)
				text.WriteString(chunk.Response)
			}
			if chunk.Done {
				chunk.Response = text.String()
				chunk.Status = "success"
				final = &chunk
			}
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
		if final == nil {
			return nil, ollama.ErrIncompleteStream
		}
		fmt.Fprintln(w)
	} else {
		resp, err := client.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		final = resp
	}

	if store != nil {
		tr := history.Transcript{
			ID:            uuid.NewString(),
			CreatedAt:     time.Now().UTC(),
			Model:         req.Model,
			Prompt:        req.Prompt,
			Response:      final.Response,
			EvalCount:     final.EvalCount,
			TotalDuration: time.Duration(final.TotalDuration),
			LoadDuration:  time.Duration(final.LoadDuration),
			EvalDuration:  time.Duration(final.EvalDuration),
		}
		if err := store.Save(tr); err != nil {
			return nil, fmt.Errorf("saving transcript: %w", err)
		}
	}

	return final, nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved run transcripts",
}

func openStore() (*history.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.DataDir)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		model, _ := cmd.Flags().GetString("model")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		transcripts, err := store.Recent(model, limit)
		if err != nil {
			return err
		}

		if len(transcripts) == 0 {
			fmt.Println("No transcripts found.")
			return nil
		}

		for _, tr := range transcripts {
			prompt := tr.Prompt
			if len(prompt) > 60 {
				prompt = prompt[:60] + "..."
			}
			fmt.Printf("%s  %s  %-20s  %s\n",
				colorize(colorCyan, tr.ID[:8]),
				tr.CreatedAt.Format("2006-01-02 15:04"),
				tr.Model,
				prompt,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tr, err := store.Get(args[0])
		if err != nil {
			return err
		}

		printStatus("ID", "%s", tr.ID)
		printStatus("Created", "%s", tr.CreatedAt.Format(time.RFC3339))
		printStatus("Model", "%s", tr.Model)
		printStatus("Eval count", "%d", tr.EvalCount)
		printStatus("Total time", "%s", tr.TotalDuration)
		fmt.Printf("\n%s\n%s\n\n%s\n%s\n",
			colorize(colorBold, "Prompt"), tr.Prompt,
			colorize(colorBold, "Response"), tr.Response,
		)
		return nil
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		olderThan, _ := cmd.Flags().GetString("older-than")

		if !confirm {
			printWarning("This will delete stored transcripts. Use --confirm to proceed.")
			return nil
		}

		var cutoff time.Time
		if olderThan != "" {
			d, err := time.ParseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than duration: %w", err)
			}
			cutoff = time.Now().UTC().Add(-d)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Purge(cutoff)
		if err != nil {
			return err
		}
		printSuccess("Purged %d transcript(s)", n)
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of transcripts to list")
	historyListCmd.Flags().String("model", "", "only show transcripts for this model")
	historyPurgeCmd.Flags().Bool("confirm", false, "confirm the purge")
	historyPurgeCmd.Flags().String("older-than", "", "only purge transcripts older than this duration (e.g. 720h)")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}
