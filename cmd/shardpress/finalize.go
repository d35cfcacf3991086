package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/finalizer"
)

func newFinalizeCmd() *cobra.Command {
	finalizeCmd := &cobra.Command{
		Use:   "finalize",
		Short: "Assemble the final index and verify totals",
		Long:  "Concatenate all per-shard metadata into the final index, then cross-check aggregates against the external token count record",
		Args:  cobra.NoArgs,
		PreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cfg := finalizer.NewConfig(ShardMetaDir, FinalIndex)
			cfg.UpdateCounts = UpdateCounts
			stats, err := finalizer.New(cfg).Run()
			if err != nil {
				log.Fatalf("main: %s", err)
			}
			if err := emitJSON(stats); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}

	finalizeCmd.Flags().StringVarP(&ShardMetaDir, "shard-meta-dir", "m", ShardMetaDir, "Directory holding the per-shard metadata files")
	finalizeCmd.Flags().StringVarP(&FinalIndex, "output-file", "o", FinalIndex, "Destination final index path")
	finalizeCmd.Flags().StringVarP(&finalizer.DefaultCountsFile, "counts-file", "c", finalizer.DefaultCountsFile, "External token count record to verify against, empty disables verification")
	finalizeCmd.Flags().BoolVarP(&UpdateCounts, "update-counts", "u", false, "Rewrite the count record from the computed aggregates on mismatch")

	return finalizeCmd
}
