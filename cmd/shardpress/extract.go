package main

import (
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/extractor"
)

func newExtractCmd() *cobra.Command {
	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract per-file metadata batches",
		Long:  "Walk the acquisition directory tree and emit batched parquet files of per-file metadata (hash, size, token count)",
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

			cfg := extractor.NewConfig(ReposDir, BatchesDir)
			stats, err := extractor.New(cfg).Run()
			if err != nil {
				log.Fatalf("main: %s", err)
			}
			if err := emitJSON(stats); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}

	addExtractFlags(extractCmd)

	return extractCmd
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&ReposDir, "repos-dir", "r", ReposDir, "Acquisition root containing one directory per project")
	cmd.Flags().StringVarP(&BatchesDir, "output-dir", "o", BatchesDir, "Destination directory for batch files")
	cmd.Flags().IntVarP(&extractor.DefaultWorkers, "workers", "w", extractor.DefaultWorkers, "Number of parallel project tasks")
	cmd.Flags().IntVarP(&extractor.DefaultBatchSize, "batch-size", "", extractor.DefaultBatchSize, "Records per batch file")
	cmd.Flags().Int64VarP(&extractor.DefaultMaxFileSize, "max-file-size", "", extractor.DefaultMaxFileSize, "Per-file size ceiling in bytes, larger files are skipped")
	cmd.Flags().StringSliceVarP(&extractor.DefaultExtensions, "extensions", "e", extractor.DefaultExtensions, "Source-file extension allow-list")
}
