// Package sharder implements the third pipeline stage: deterministic
// bin-packing of GlobalIndex rows into size-bounded, reproducible tar.zst
// archives, built by a bounded pool of workers.
package sharder

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"jaytaylor.com/shardpress/domain"
	"jaytaylor.com/shardpress/metadata"
)

var (
	DefaultTargetSize = int64(10) * 1024 * 1024 * 1024
	DefaultMinSize    = int64(5) * 1024 * 1024 * 1024
	DefaultMaxSize    = int64(20) * 1024 * 1024 * 1024
	DefaultWorkers    = 16
)

type Config struct {
	GlobalIndex  string // Path to the GlobalIndex parquet file.
	ShardsDir    string // Destination directory for shard archives.
	ShardMetaDir string // Destination directory for per-shard metadata.
	ReposDir     string // Acquisition root the file contents are read from.
	Workers      int    // Size of the shard-creation worker pool.
	TargetSize   int64  // Close out a shard as soon as it reaches this size.
	MinSize      int64  // Never close out below this size to fit under MaxSize.
	MaxSize      int64  // Upper bound, except for single rows larger than it.
}

func NewConfig(globalIndex string, shardsDir string, shardMetaDir string, reposDir string) *Config {
	cfg := &Config{
		GlobalIndex:  globalIndex,
		ShardsDir:    shardsDir,
		ShardMetaDir: shardMetaDir,
		ReposDir:     reposDir,
		Workers:      DefaultWorkers,
		TargetSize:   DefaultTargetSize,
		MinSize:      DefaultMinSize,
		MaxSize:      DefaultMaxSize,
	}
	return cfg
}

// Stats accumulates the outcome counters of one shard-building run.
type Stats struct {
	Rows   int64
	Bytes  int64
	Shards int
}

type Sharder struct {
	cfg   *Config
	stats Stats
}

func New(cfg *Config) *Sharder {
	s := &Sharder{
		cfg: cfg,
	}
	return s
}

// Run streams the GlobalIndex in row order through the bin-packing state
// machine, dispatching each closed-out shard to the worker pool.  The
// packing decision is single-threaded so shard membership is deterministic;
// only archive creation is parallel.  Task submission blocks once
// queued-plus-running work reaches twice the pool size, capping the memory
// held by row lists awaiting processing.
func (s *Sharder) Run() (*Stats, error) {
	if _, err := os.Stat(s.cfg.GlobalIndex); err != nil {
		return nil, fmt.Errorf("global index: %s", err)
	}
	for _, dir := range []string{s.cfg.ShardsDir, s.cfg.ShardMetaDir} {
		if err := os.MkdirAll(dir, os.FileMode(int(0755))); err != nil {
			return nil, fmt.Errorf("creating output dir: %s", err)
		}
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		g, ctx = errgroup.WithContext(context.Background())
		tasks  = make(chan shardTask, workers)
	)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for task := range tasks {
				if err := s.buildShard(task); err != nil {
					return err
				}
			}
			return nil
		})
	}

	p := newPacker(s.cfg.TargetSize, s.cfg.MinSize, s.cfg.MaxSize, func(task shardTask) error {
		select {
		case tasks <- task:
			return nil
		case <-ctx.Done():
			// A worker failed; its error surfaces via g.Wait below.
			return ctx.Err()
		}
	})

	log.WithFields(log.Fields{
		"target":  humanize.Bytes(uint64(s.cfg.TargetSize)),
		"min":     humanize.Bytes(uint64(s.cfg.MinSize)),
		"max":     humanize.Bytes(uint64(s.cfg.MaxSize)),
		"workers": workers,
	}).Info("Starting shard creation")

	rows, streamErr := metadata.StreamRecords(s.cfg.GlobalIndex, metadata.DefaultStreamChunk, func(recs []domain.FileRecord) error {
		for _, rec := range recs {
			s.stats.Bytes += rec.Size
			if err := p.add(rec); err != nil {
				return err
			}
		}
		return nil
	})

	var finishErr error
	if streamErr == nil {
		finishErr = p.finish()
	}
	close(tasks)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if streamErr != nil {
		return nil, streamErr
	}
	if finishErr != nil {
		return nil, finishErr
	}

	s.stats.Rows = rows
	s.stats.Shards = p.shards()

	log.WithFields(log.Fields{
		"rows":   s.stats.Rows,
		"bytes":  humanize.Bytes(uint64(s.stats.Bytes)),
		"shards": s.stats.Shards,
	}).Info("Shard creation finished")

	return &s.stats, nil
}
