package main

import (
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/sharder"
)

func newShardCmd() *cobra.Command {
	shardCmd := &cobra.Command{
		Use:   "shard",
		Short: "Pack the global index into tar.zst shards",
		Long:  "Bin-pack global index rows, in order, into size-bounded reproducible tar.zst archives with per-shard metadata",
		Args:  cobra.NoArgs,
		PreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if MemoryProfiler {
				log.Debug("Starting memory profiler")
				p := profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
				defer func() {
					log.Debug("Stopping memory profiler")
					p.Stop()
				}()
			}

			cfg := sharder.NewConfig(GlobalIndex, ShardsDir, ShardMetaDir, ReposDir)
			stats, err := sharder.New(cfg).Run()
			if err != nil {
				log.Fatalf("main: %s", err)
			}
			if err := emitJSON(stats); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}

	addShardFlags(shardCmd)

	return shardCmd
}

func addShardFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&GlobalIndex, "global-index", "g", GlobalIndex, "Global index parquet file to shard")
	cmd.Flags().StringVarP(&ShardsDir, "shards-dir", "s", ShardsDir, "Destination directory for shard archives")
	cmd.Flags().StringVarP(&ShardMetaDir, "shard-meta-dir", "m", ShardMetaDir, "Destination directory for per-shard metadata")
	cmd.Flags().StringVarP(&ReposDir, "repos-dir", "r", ReposDir, "Acquisition root the file contents are read from")
	cmd.Flags().IntVarP(&sharder.DefaultWorkers, "workers", "w", sharder.DefaultWorkers, "Size of the shard-creation worker pool")
	cmd.Flags().Int64VarP(&sharder.DefaultTargetSize, "target-size", "", sharder.DefaultTargetSize, "Close out a shard once it reaches this many bytes")
	cmd.Flags().Int64VarP(&sharder.DefaultMinSize, "min-size", "", sharder.DefaultMinSize, "Never close out a shard below this many bytes to respect the max")
	cmd.Flags().Int64VarP(&sharder.DefaultMaxSize, "max-size", "", sharder.DefaultMaxSize, "Shard byte upper bound, except for single oversized files")
}
