package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/missing-finder/internal/config"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the HNSW graph of open cases and save it",
	Long: `Rebuild the approximate nearest-neighbour graph from the open cases and
write it to HNSW_INDEX_PATH (or --path) so the server can load it at startup
instead of rebuilding.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().String("path", "", "Graph file (default HNSW_INDEX_PATH)")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	path := mustGetString(cmd, "path")
	if path == "" {
		path = cfg.Database.HNSWIndexPath
	}
	if path == "" {
		return errors.New("set HNSW_INDEX_PATH or pass --path")
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	cases, err := store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open cases: %w", err)
	}

	idx := database.NewCaseIndex(cfg.Embedding.Dim)
	if err := idx.Reset(cases); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := idx.SaveGraph(path); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	fmt.Printf("Indexed %d open cases in %s, saved to %s\n", idx.Len(), time.Since(start).Round(time.Millisecond), path)
	return nil
}
