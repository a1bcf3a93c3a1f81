package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/octl/internal/config"
	"github.com/kalambet/octl/internal/ollama"
)

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List models installed on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		models, err := client.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(models) == 0 {
			fmt.Println("No models installed.")
			return nil
		}

		fmt.Printf("%-40s %-10s %s\n", "NAME", "SIZE", "MODIFIED")
		for _, m := range models {
			fmt.Printf("%-40s %-10s %s\n", m.Name, humanSize(m.Size), m.ModifiedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- pull ---

var pullCmd = &cobra.Command{
	Use:   "pull <model>...",
	Short: "Download one or more models from the registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		insecure, _ := cmd.Flags().GetBool("insecure")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		client, _, err := newClient()
		if err != nil {
			return err
		}

		if err := pullAll(cmd.Context(), client, args, insecure, concurrency, os.Stderr); err != nil {
			return err
		}
		printSuccess("Pulled %d model(s)", len(args))
		return nil
	},
}

func init() {
	pullCmd.Flags().Bool("insecure", false, "allow insecure registry connections")
	pullCmd.Flags().Int("concurrency", 3, "maximum parallel downloads")
}

// pullAll downloads the given models concurrently, writing progress lines to w.
func pullAll(ctx context.Context, client *ollama.Client, models []string, insecure bool, concurrency int, w io.Writer) error {
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency) // Bound concurrency to avoid saturating the link.

	for _, model := range models {
		model := model
		g.Go(func() error {
			s, err := client.PullStream(gCtx, ollama.PullRequest{Name: model, Insecure: insecure})
			if err != nil {
				return fmt.Errorf("pulling %s: %w", model, err)
			}
			defer s.Close()

			for s.Next() {
				u := s.Update()
				mu.Lock()
				if u.Total > 0 {
					fmt.Fprintf(w, "%s: %s %.0f%%\n", model, u.Status, float64(u.Completed)/float64(u.Total)*100)
				} else {
					fmt.Fprintf(w, "%s: %s\n", model, u.Status)
				}
				mu.Unlock()
			}
			if err := s.Err(); err != nil {
				return fmt.Errorf("pulling %s: %w", model, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// --- push ---

var pushCmd = &cobra.Command{
	Use:   "push <model>",
	Short: "Upload a model to the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		insecure, _ := cmd.Flags().GetBool("insecure")

		client, _, err := newClient()
		if err != nil {
			return err
		}

		s, err := client.PushStream(cmd.Context(), ollama.PushRequest{Name: args[0], Insecure: insecure})
		if err != nil {
			return err
		}
		defer s.Close()

		if err := drainProgress(s, os.Stderr); err != nil {
			return err
		}
		printSuccess("Pushed %s", args[0])
		return nil
	},
}

func init() {
	pushCmd.Flags().Bool("insecure", false, "allow insecure registry connections")
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a model from a Modelfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("reading Modelfile: %w", err)
		}

		client, _, err := newClient()
		if err != nil {
			return err
		}

		s, err := client.CreateStream(cmd.Context(), ollama.CreateRequest{Name: args[0], Path: path})
		if err != nil {
			return err
		}
		defer s.Close()

		if err := drainProgress(s, os.Stderr); err != nil {
			return err
		}
		printSuccess("Created %s", args[0])
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("file", "f", "Modelfile", "path to the Modelfile")
}

func drainProgress(s *ollama.ProgressStream, w io.Writer) error {
	for s.Next() {
		u := s.Update()
		if u.Total > 0 {
			fmt.Fprintf(w, "%s %.0f%%\n", u.Status, float64(u.Completed)/float64(u.Total)*100)
		} else if u.Status != "" {
			fmt.Fprintln(w, u.Status)
		}
	}
	return s.Err()
}

// --- cp / rm ---

var cpCmd = &cobra.Command{
	Use:   "cp <source> <destination>",
	Short: "Copy a model under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		if err := client.Copy(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Copied %s to %s", args[0], args[1])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <model>...",
	Short: "Delete one or more models",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		for _, name := range args {
			if err := client.Delete(cmd.Context(), name); err != nil {
				return fmt.Errorf("deleting %s: %w", name, err)
			}
			printSuccess("Deleted %s", name)
		}
		return nil
	},
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <model>",
	Short: "Show a model's modelfile, parameters, and template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		info, err := client.Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printShow(os.Stdout, info)
		return nil
	},
}

func printShow(w io.Writer, info *ollama.ShowResponse) {
	sections := []struct {
		label string
		value string
	}{
		{"Modelfile", info.Modelfile},
		{"Parameters", info.Parameters},
		{"Template", info.Template},
		{"System", info.System},
		{"License", info.License},
	}
	for _, s := range sections {
		if s.value == "" {
			continue
		}
		fmt.Fprintf(w, "%s\n%s\n\n", colorize(colorBold, s.label), s.value)
	}
}

// --- ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check whether the Ollama server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		if err := client.Heartbeat(cmd.Context()); err != nil {
			return fmt.Errorf("server is not running at %s: %w", client.BaseURL(), err)
		}
		printSuccess("Ollama is running at %s", client.BaseURL())
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration keys and values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			if k.Key == args[0] {
				fmt.Println(k.Value)
				return nil
			}
		}
		return fmt.Errorf("unknown config key: %q (valid: %v)", args[0], config.ValidKeys())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
