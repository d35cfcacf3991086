package main

import (
	"path/filepath"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"jaytaylor.com/shardpress/extractor"
	"jaytaylor.com/shardpress/finalizer"
	"jaytaylor.com/shardpress/merger"
	"jaytaylor.com/shardpress/sharder"
)

var OutputRoot = "dataset"

func newPipelineCmd() *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run all four stages in order",
		Long:  "Run extract, merge, shard, and finalize in sequence over a single output root directory",
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

			if err := runPipeline(); err != nil {
				log.Fatalf("main: %s", err)
			}
		},
	}

	pipelineCmd.Flags().StringVarP(&ReposDir, "repos-dir", "r", ReposDir, "Acquisition root containing one directory per project")
	pipelineCmd.Flags().StringVarP(&OutputRoot, "output-root", "o", OutputRoot, "Root directory receiving all pipeline artifacts")
	pipelineCmd.Flags().BoolVarP(&Dedupe, "dedupe", "", merger.DefaultDedupe, "Drop repeated (project, path) pairs during merge")
	pipelineCmd.Flags().StringVarP(&finalizer.DefaultCountsFile, "counts-file", "c", finalizer.DefaultCountsFile, "External token count record to verify against, empty disables verification")
	pipelineCmd.Flags().BoolVarP(&UpdateCounts, "update-counts", "u", false, "Rewrite the count record from the computed aggregates on mismatch")

	return pipelineCmd
}

type pipelineResult struct {
	Extract  *extractor.Stats `json:"extract"`
	Merge    *merger.Stats    `json:"merge"`
	Shard    *sharder.Stats   `json:"shard"`
	Finalize *finalizer.Stats `json:"finalize"`
}

func runPipeline() error {
	var (
		batchesDir   = filepath.Join(OutputRoot, "metadata_batches")
		globalIndex  = filepath.Join(OutputRoot, "global_index.parquet")
		shardsDir    = filepath.Join(OutputRoot, "shards")
		shardMetaDir = filepath.Join(OutputRoot, "shard_metadata")
		finalIndex   = filepath.Join(OutputRoot, "final_index.parquet")

		result = &pipelineResult{}
		err    error
	)

	log.WithField("stage", "extract").Info("Pipeline stage starting")
	if result.Extract, err = extractor.New(extractor.NewConfig(ReposDir, batchesDir)).Run(); err != nil {
		return err
	}

	log.WithField("stage", "merge").Info("Pipeline stage starting")
	mergeCfg := merger.NewConfig(batchesDir, globalIndex)
	mergeCfg.Dedupe = Dedupe
	if result.Merge, err = merger.New(mergeCfg).Run(); err != nil {
		return err
	}

	log.WithField("stage", "shard").Info("Pipeline stage starting")
	if result.Shard, err = sharder.New(sharder.NewConfig(globalIndex, shardsDir, shardMetaDir, ReposDir)).Run(); err != nil {
		return err
	}

	log.WithField("stage", "finalize").Info("Pipeline stage starting")
	finalizeCfg := finalizer.NewConfig(shardMetaDir, finalIndex)
	finalizeCfg.UpdateCounts = UpdateCounts
	if result.Finalize, err = finalizer.New(finalizeCfg).Run(); err != nil {
		return err
	}

	return emitJSON(result)
}
