package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/onec-help/onechelp/internal/config"
	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/mcp"
	"github.com/onec-help/onechelp/internal/reindex"
	"github.com/onec-help/onechelp/internal/search"
	"github.com/onec-help/onechelp/internal/server"
	"github.com/onec-help/onechelp/internal/store"
	"github.com/onec-help/onechelp/internal/watcher"
	"github.com/onec-help/onechelp/pkg/version"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var host string
	var port int
	var archivePath string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the help server",
		Long: `Start the HTTP server exposing the JSON-RPC endpoint, health and
index management. When the store holds no index yet, a rebuild from
the configured archive starts in the background.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if archivePath != "" {
				cfg.Archive.Path = archivePath
			}
			if cmd.Flags().Changed("watch") {
				cfg.Archive.Watch = watch
			}
			if cfg.Archive.Path == "" {
				return fmt.Errorf("no archive configured: set archive.path or pass --archive")
			}

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen address")
	cmd.Flags().IntVar(&port, "port", 8000, "Listen port")
	cmd.Flags().StringVar(&archivePath, "archive", "", "Path to the .hbk documentation archive")
	cmd.Flags().BoolVar(&watch, "watch", false, "Rebuild the index when the archive file changes")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	lock := store.NewDirLock(cfg.Store.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("data directory %s is locked by another onechelp process", cfg.Store.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	st, err := store.NewBleveStore(cfg.Store.DataDir, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	parser := hbk.NewParser(
		hbk.WithMaxSize(int64(cfg.Archive.MaxSizeMB)<<20),
		hbk.WithLogger(logger),
	)
	source := reindex.NewArchiveSource(cfg.Archive.Path, parser)

	orch := reindex.NewOrchestrator(st, source,
		reindex.WithBatchSize(cfg.Store.BatchSize),
		reindex.WithBackoffPolicy(backoffPolicy(cfg)),
		reindex.WithLogger(logger),
	)

	engine, err := search.NewEngine(st, cfg.Store.CacheSize, search.WithLogger(logger))
	if err != nil {
		return err
	}

	protocol := mcp.NewHandler(engine, orch,
		mcp.WithLogger(logger),
		mcp.WithServerVersion(version.Version),
	)
	srv := server.NewServer(cfg.Server.Host, cfg.Server.Port, protocol, orch, st, logger)

	if started, err := orch.TriggerIfNeeded(ctx); err != nil {
		logger.Warn("startup rebuild not started", slog.String("error", err.Error()))
	} else if started {
		logger.Info("startup rebuild triggered", slog.String("archive", cfg.Archive.Path))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.Archive.Watch {
		w := watcher.New(cfg.Archive.Path, cfg.Archive.WatchDebounce, orch.Trigger, logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	err = g.Wait()

	// Let an in-flight rebuild settle its job record before the store
	// closes.
	orch.Wait()

	if errors.Is(err, context.Canceled) {
		logger.Info("server stopped")
		return nil
	}
	return err
}

func backoffPolicy(cfg *config.Config) helperrors.BackoffPolicy {
	return helperrors.BackoffPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}
}
