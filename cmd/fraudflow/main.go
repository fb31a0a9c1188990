// Command fraudflow runs the agentic fraud-analysis chat service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fraudflow-dev/fraudflow/internal/flow"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
	"github.com/fraudflow-dev/fraudflow/internal/server"
	"github.com/fraudflow-dev/fraudflow/internal/session"
	"github.com/fraudflow-dev/fraudflow/internal/store"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
	"github.com/fraudflow-dev/fraudflow/pkg/config"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "fraudflow",
		Short:         "Agentic fraud-analysis chat service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())

	if err := root.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat HTTP server",
		Long: `Start the chat HTTP server.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	observability.InitMetrics()
	if err := observability.InitTracing(observability.TracingConfig{
		Exporter: cfg.TraceExporter,
	}); err != nil {
		return err
	}

	sessions, err := buildSessions(cfg)
	if err != nil {
		return err
	}

	prompts, err := flow.DefaultPrompts()
	if err != nil {
		return err
	}

	llm, err := provider.NewOpenAI(cfg.OpenAIKey)
	if err != nil {
		return err
	}
	f := flow.New(llm, buildRegistry(), prompts, flow.Config{
		Model:         cfg.DefaultModel,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		MaxMemory:     cfg.MaxMemory,
		MaxIterations: cfg.MaxIterations,
		MaxTokens:     cfg.MaxTokens,
	})

	srv := server.New(cfg.Server.Addr, f, sessions)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting fraudflow v%s on %s", Version, cfg.Server.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return observability.ShutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Server stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("CONFIG_FILE"); env != "" {
			path = env
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildSessions(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			TTL:      cfg.Session.TTL,
			MaxTurns: cfg.MaxMemory,
		})
	default:
		return session.NewMemoryStore(
			session.WithTTL(cfg.Session.TTL),
			session.WithMaxTurns(cfg.MaxMemory),
		), nil
	}
}

// buildRegistry wires the built-in tool set over seeded demo data. A
// real deployment would back these with the fraud database and the
// handbook index.
func buildRegistry() *tool.Registry {
	txs := store.NewMemoryStore(store.SampleTransactions()...)
	docs := store.NewMemoryIndex(store.SampleHandbook()...)
	return tool.NewRegistry(
		tool.CurrentTime(),
		tool.FraudQuery(txs),
		tool.FraudSummary(txs),
		tool.DocsSearch(docs),
	)
}
