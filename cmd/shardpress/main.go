package main

import (
	"encoding/json"
	"fmt"

	"github.com/onrik/logrus/filename"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	ReposDir       = "cloned_repos"
	BatchesDir     = "metadata_batches"
	GlobalIndex    = "global_index.parquet"
	ShardsDir      = "shards"
	ShardMetaDir   = "shard_metadata"
	FinalIndex     = "final_index.parquet"
	Dedupe         bool
	DedupeDB       string
	UpdateCounts   bool
	Quiet          bool
	Verbose        bool
	MemoryProfiler bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shardpress",
		Short: "Deterministic code-corpus sharding pipeline",
		Long:  "Extracts per-file metadata from cloned repositories and packs the corpus into reproducible, size-bounded tar.zst shards",
	}

	rootCmd.PersistentFlags().BoolVarP(&Quiet, "quiet", "q", Quiet, "Activate quiet log output")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", Verbose, "Activate verbose log output")
	rootCmd.PersistentFlags().BoolVarP(&MemoryProfiler, "profile", "", false, "Enable the memory profiler, writes profile to the current directory")

	rootCmd.AddCommand(
		newExtractCmd(),
		newMergeCmd(),
		newShardCmd(),
		newFinalizeCmd(),
		newPipelineCmd(),
		newStatsCmd(),
	)

	return rootCmd
}

func main() {
	cfg := NewConfig()
	if err := cfg.Do(); err != nil {
		log.Fatalf("main: %s", err)
	}

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initLogging() {
	level := log.InfoLevel
	if Verbose {
		log.AddHook(filename.NewHook())
		level = log.DebugLevel
	}
	if Quiet {
		level = log.ErrorLevel
	}
	log.SetLevel(level)
}

func emitJSON(x interface{}) error {
	bs, err := json.MarshalIndent(x, "", "    ")
	if err != nil {
		return err
	}
	fmt.Printf("%v\n", string(bs))
	return nil
}
