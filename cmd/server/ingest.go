package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/ingest"
	"github.com/rkm/stac-catalog/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Load the item files in a directory into the configured store",
	Long: "ingest validates every .json, .geojson, .ndjson and .jsonl file in dir and\n" +
		"writes the items to the store selected by STORE_DRIVER. Items of unknown\n" +
		"collections are rejected.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup("ingest")
		if err != nil {
			return err
		}
		if cfg.Store.Driver == store.DriverMemory {
			logger.Warn("memory store selected, items will not outlive this command")
		}

		collections, err := config.LoadCollections(cfg.STAC.CollectionsDir)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := store.New(ctx, cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		holder := index.NewHolder()
		writer := ingest.NewWriter(st, holder, collections, logger)
		if err := writer.Load(ctx); err != nil {
			return err
		}
		before := holder.Load().Len()

		if err := ingest.NewSeeder(args[0], writer, logger).LoadAll(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog holds %d items (%+d)\n", holder.Load().Len(), holder.Load().Len()-before)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
