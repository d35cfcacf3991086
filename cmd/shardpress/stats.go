package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/metadata"
)

func newStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats <file> [<file> ...]",
		Short: "Summarize pipeline parquet files",
		Long:  "Print row, token, and byte totals for one or more pipeline parquet files (batches, global index, shard metadata, final index)",
		Args:  cobra.MinimumNArgs(1),
		PreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			summaries := map[string]*metadata.Summary{}
			for _, arg := range args {
				summary, err := metadata.Summarize(arg)
				if err != nil {
					log.Fatalf("main: %s", err)
				}
				summaries[arg] = summary
			}
			if err := emitJSON(summaries); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}
	return statsCmd
}
