package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/octl/internal/config"
	"github.com/kalambet/octl/internal/history"
	"github.com/kalambet/octl/internal/mcp"
	"github.com/kalambet/octl/internal/ollama"
	"github.com/kalambet/octl/internal/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the pass-through relay in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

var relayStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopRelay()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, relay, and history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve model tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	relayCmd.AddCommand(relayStopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "octl-relay.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runRelay() error {
	fmt.Fprintf(os.Stderr, "octl version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice. Check the health endpoint first, the PID file
	// alone can be stale.
	pidPath := pidFilePath(cfg.History.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Relay.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("relay is already running (PID %d)", pid)
			return fmt.Errorf("relay already running (PID %d)", pid)
		}
		printWarning("relay is already running on port %d", cfg.Relay.Port)
		return fmt.Errorf("relay already running on port %d", cfg.Relay.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Make sure the upstream is alive and the default model is present
	// before accepting traffic.
	client := ollama.New(cfg.Client.Host)
	if err := ollama.EnsureModels(ctx, client, []string{cfg.Run.Model}, os.Stderr); err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Relay.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: relay.NewHandler(cfg.Client.Host),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", addr, "upstream", cfg.Client.Host)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopRelay() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.History.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("relay is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop relay (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to relay (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := ollama.New(cfg.Client.Host)
	if err := client.Heartbeat(ctx); err != nil {
		printStatus("Ollama", "not running at %s", cfg.Client.Host)
	} else {
		printStatus("Ollama", "running at %s", cfg.Client.Host)
		if models, err := client.List(ctx); err == nil {
			printStatus("Models", "%d installed", len(models))
		}
	}

	healthClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Relay.Port))
	if err != nil {
		printStatus("Relay", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Relay", "running on port %d", cfg.Relay.Port)
		} else {
			printStatus("Relay", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if store, err := history.Open(cfg.History.DataDir); err == nil {
		if n, err := store.Count(); err == nil {
			printStatus("Transcripts", "%d", n)
		}
		store.Close()
	}

	printStatus("Default model", "%s", cfg.Run.Model)
	printStatus("Data dir", "%s", cfg.History.DataDir)
	return nil
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := mcp.NewServer(mcp.Deps{
		Client:       ollama.New(cfg.Client.Host),
		DefaultModel: cfg.Run.Model,
	})

	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
