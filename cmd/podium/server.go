package main

import (
	"context"
	"encoding/json"
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

	"github.com/kalambet/podium/internal/api"
	"github.com/kalambet/podium/internal/batch"
	"github.com/kalambet/podium/internal/config"
	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the podium server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running podium server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show podium system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "podium.pid")
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// services is the wired object graph behind the HTTP and MCP surfaces.
type services struct {
	presentations *presentation.Manager
	feedback      *feedback.Service
}

func buildServices(cfg config.Config, store *storage.Store, gen generation.Generator) services {
	queue := schedule.NewQueue(cfg.Processing.SlotInterval)
	syncer := contentsync.New(store, queue, gen, contentsync.Options{
		Timeout:   cfg.Generation.Timeout,
		MaxTokens: cfg.Generation.MaxTokens,
		Backoff:   cfg.Processing.RetryBackoff,
	})
	worker := batch.NewWorker(queue, store, syncer, batch.Options{
		Poll:    cfg.Processing.PollInterval,
		Workers: cfg.Processing.Workers,
	})
	limiter := ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)

	return services{
		presentations: presentation.NewManager(store, gen, limiter, presentation.Options{
			Timeout:   cfg.Generation.Timeout,
			MaxTokens: cfg.Generation.MaxTokens,
		}),
		feedback: feedback.New(store, queue, syncer, worker, limiter, feedback.Options{
			MaxContent:       cfg.Feedback.MaxContent,
			MaxParticipant:   cfg.Feedback.MaxParticipant,
			RecoverySchedule: cfg.Processing.RecoverySchedule,
		}),
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(stderr, "podium version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	// Ensure API token exists in platform secret store.
	apiToken, err := config.APIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("podium is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("podium is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(stderr, "warning: closing storage: %v\n", err)
		}
	}()

	gen, err := generation.New(ctx, generation.Config{
		Provider: cfg.Generation.Provider,
		Model:    cfg.Generation.Model,
		APIKey:   cfg.Generation.APIKey(),
	})
	if err != nil {
		return fmt.Errorf("creating %s generator: %w", cfg.Generation.Provider, err)
	}
	defer gen.Close()

	svc := buildServices(cfg, store, gen)
	if err := svc.feedback.Start(ctx); err != nil {
		return fmt.Errorf("starting feedback processing: %w", err)
	}
	defer svc.feedback.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			Presentations: svc.presentations,
			Feedback:      svc.feedback,
			Token:         apiToken,
			HTTPClient:    &http.Client{Timeout: 15 * time.Second},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Presentations: svc.presentations,
			Feedback:      svc.feedback,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(stderr, "podium listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("podium is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop podium (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to podium (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	model := cfg.Generation.Model
	if model == "" {
		model = "(provider default)"
	}
	printStatus("Provider", "%s", cfg.Generation.Provider)
	printStatus("Model", "%s", model)
	if cfg.Generation.APIKey() == "" {
		printStatus("API key", "%s", colorize(colorYellow, "missing"))
	} else {
		printStatus("API key", "configured")
	}
	printStatus("Batch slot", "%s", cfg.Processing.SlotInterval)

	if running {
		if resp, err := client.get(ctx, "/presentations?limit=200"); err == nil {
			var list []json.RawMessage
			if decodeJSON(resp, &list) == nil {
				printStatus("Presentations", "%s", countLabel(len(list), 200))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
