package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/merger"
)

func newMergeCmd() *cobra.Command {
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge metadata batches into the global index",
		Long:  "Stream all extraction batch files, in filename order, into a single schema-normalized global index parquet file",
		Args:  cobra.NoArgs,
		PreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cfg := merger.NewConfig(BatchesDir, GlobalIndex)
			cfg.Dedupe = Dedupe
			cfg.DedupeDB = DedupeDB
			stats, err := merger.New(cfg).Run()
			if err != nil {
				log.Fatalf("main: %s", err)
			}
			if err := emitJSON(stats); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}

	mergeCmd.Flags().StringVarP(&BatchesDir, "batches-dir", "b", BatchesDir, "Directory containing extraction batch files")
	mergeCmd.Flags().StringVarP(&GlobalIndex, "output-file", "o", GlobalIndex, "Destination global index path")
	mergeCmd.Flags().BoolVarP(&Dedupe, "dedupe", "", merger.DefaultDedupe, "Drop repeated (project, path) pairs, first occurrence wins")
	mergeCmd.Flags().StringVarP(&DedupeDB, "dedupe-db", "", "", "Bolt file backing the dedupe seen-set (default: derived from output file)")

	return mergeCmd
}
