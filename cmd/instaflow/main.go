// Command instaflow runs the engagement engine: a management HTTP API
// plus a scheduler that periodically works every active account's feed.
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
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"instaflow/internal/agent"
	"instaflow/internal/api"
	"instaflow/internal/browser"
	"instaflow/internal/config"
	"instaflow/internal/engage"
	"instaflow/internal/orchestrator"
	"instaflow/internal/proxy"
	"instaflow/internal/store"
	"instaflow/internal/training"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "instaflow",
		Short:         "Automated feed engagement with AI-generated comments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "instaflow.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd(), runOnceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the engagement scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Execute a single engagement pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context())
		},
	}
}

func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
	orch  *orchestrator.Orchestrator
	api   *api.Server
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Sync()
		return nil, err
	}

	pool := agent.NewCredentialPool(cfg.Gemini.APIKeys)
	gen := agent.NewGenerator(pool, cfg.Gemini.Model, log.Named("agent"))

	loop := engage.New(gen, engage.Config{
		MaxPosts: cfg.Agent.MaxPostsPerAccount,
		MinDelay: cfg.Agent.MinActionDelay(),
		MaxDelay: cfg.Agent.MaxActionDelay(),
		Prompt: agent.PromptOptions{
			MaxSnippets:     cfg.Agent.PromptSnippets,
			SnippetMaxChars: cfg.Agent.SnippetMaxChars,
			CommentMaxChars: cfg.Agent.CommentMaxChars,
		},
	}, log.Named("engage"))

	tunnels := orchestrator.ProxyOpener{
		Manager: proxy.NewManager(cfg.Proxy.PortMin, cfg.Proxy.PortMax, log.Named("proxy")),
	}
	sessions := browser.NewSessionManager(cfg.Browser, log.Named("session"))

	orch := orchestrator.New(cfg, st, st, tunnels, orchestrator.LaunchRod,
		sessions, loop, log.Named("orchestrator"))

	srv := api.NewServer(st, training.NewService(st, log.Named("training")),
		cfg.Server.JWTSecret, log.Named("api"))

	return &app{cfg: cfg, log: log, store: st, orch: orch, api: srv}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", zap.Error(err))
	}
	a.log.Sync()
}

func runServe(parent context.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sched := orchestrator.NewScheduler(a.orch, a.cfg.Agent.PassInterval(), a.log.Named("scheduler"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("api listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	a.log.Info("shut down")
	return err
}

func runOnce(parent context.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.orch.RunAll(ctx)
}
