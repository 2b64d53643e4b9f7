package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onec-help/onechelp/internal/store"
)

// newStatusCmd creates the status command reporting on the local
// index.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local index status",
		Long:  `Report the active index generation and document count of the local store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.NewBleveStore(cfg.Store.DataDir, slog.Default())
			if err != nil {
				return fmt.Errorf("cannot open index at %s (is a server running?): %w",
					cfg.Store.DataDir, err)
			}
			defer func() { _ = st.Close() }()

			generation := st.ActiveGeneration()
			count, err := st.Count(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"data_dir":        cfg.Store.DataDir,
					"generation":      generation,
					"documents_count": count,
				})
			}

			fmt.Fprintf(out, "Data dir:   %s\n", cfg.Store.DataDir)
			if generation == "" {
				fmt.Fprintln(out, "No index built yet. Run 'onechelp index <archive>' first.")
				return nil
			}
			fmt.Fprintf(out, "Generation: %s\n", generation)
			fmt.Fprintf(out, "Documents:  %d\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}
