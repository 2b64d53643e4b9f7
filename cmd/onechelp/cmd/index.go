package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/reindex"
	"github.com/onec-help/onechelp/internal/store"
)

// newIndexCmd creates the index command: a one-shot parse and rebuild.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [archive]",
		Short: "Parse the archive and rebuild the search index",
		Long: `Parse the .hbk documentation archive and rebuild the local search
index, then exit. The archive path argument overrides archive.path
from the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Archive.Path = args[0]
			}
			if cfg.Archive.Path == "" {
				return fmt.Errorf("no archive given: pass a path or set archive.path")
			}

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
			orch := reindex.NewOrchestrator(st, reindex.NewArchiveSource(cfg.Archive.Path, parser),
				reindex.WithBatchSize(cfg.Store.BatchSize),
				reindex.WithBackoffPolicy(backoffPolicy(cfg)),
				reindex.WithLogger(logger),
			)

			start := time.Now()
			if err := orch.Run(ctx); err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			snap := orch.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d documents (%d entries skipped) in %s\n",
				snap.DocumentsIndexed, snap.EntriesSkipped, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "Generation: %s\n", snap.Generation)
			return nil
		},
	}

	return cmd
}
