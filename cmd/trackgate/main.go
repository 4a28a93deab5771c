// trackgate is a conversational gateway that lets an LLM answer questions
// about an issue tracker through structured tool calls.
//
// Configuration is environment-driven: TRACKER_BASE_URL, TRACKER_API_KEY,
// and LLM_API_KEY are required; see internal/config for the full set.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trackgate/internal/cache"
	"trackgate/internal/chat"
	"trackgate/internal/config"
	"trackgate/internal/httpapi"
	"trackgate/internal/llm"
	"trackgate/internal/redmine"
	"trackgate/internal/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "trackgate",
		Short:         "Conversational gateway for an issue tracker",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), verbose)
		},
	}
	rootCmd.AddCommand(serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "trackgate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	newLogger := zap.NewProduction
	if verbose {
		newLogger = zap.NewDevelopment
	}
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := telemetry.Init(ctx, "trackgate", Version); err != nil {
		log.Warn("telemetry init failed, continuing without", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	trackerOpts := []redmine.Option{
		redmine.WithMaxRows(cfg.CacheMaxIssues),
		redmine.WithLogger(log.Named("tracker")),
	}
	if cfg.TrackerBearerToken != "" {
		trackerOpts = append(trackerOpts, redmine.WithBearerToken(cfg.TrackerBearerToken))
	}
	tracker := redmine.NewClient(cfg.TrackerBaseURL, cfg.TrackerAPIKey, trackerOpts...)

	completer, err := llm.NewClient(cfg.LLMAPIKey, cfg.LLMModel)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	engine := cache.NewEngine(tracker, cfg.CacheTTL, log.Named("cache"))
	executor := chat.NewExecutor(tracker, engine, cfg, log.Named("executor"))
	loop := chat.NewLoop(completer, executor, log.Named("chat"))
	server := httpapi.NewServer(loop, engine, cfg, log.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
