// Package merger implements the second pipeline stage: streaming every
// extraction batch, one at a time and in lexicographic filename order, into
// a single schema-normalized GlobalIndex.
package merger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"jaytaylor.com/shardpress/metadata"
)

var DefaultDedupe = false

type Config struct {
	BatchesDir string // Directory containing extraction batch files.
	OutputFile string // Destination GlobalIndex path.
	Dedupe     bool   // Drop repeated (project_name, file_path) pairs, first occurrence wins.
	DedupeDB   string // Bolt file backing the dedupe seen-set; derived from OutputFile when empty.
}

func NewConfig(batchesDir string, outputFile string) *Config {
	cfg := &Config{
		BatchesDir: batchesDir,
		OutputFile: outputFile,
		Dedupe:     DefaultDedupe,
	}
	return cfg
}

// Stats accumulates the outcome counters of one merge run.
type Stats struct {
	Batches        int
	SkippedBatches int
	Rows           int64
	DupesDropped   int64
	Bytes          int64
}

type Merger struct {
	cfg   *Config
	stats Stats
}

func New(cfg *Config) *Merger {
	m := &Merger{
		cfg: cfg,
	}
	return m
}

// Run merges all batches into the GlobalIndex.  The index is regenerated
// wholesale; row order equals batch filename order, which makes repeated
// merges over the same batch set deterministic.
func (m *Merger) Run() (*Stats, error) {
	if _, err := os.Stat(m.cfg.BatchesDir); err != nil {
		return nil, fmt.Errorf("batches dir: %s", err)
	}
	if dir := filepath.Dir(m.cfg.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, os.FileMode(int(0755))); err != nil {
			return nil, fmt.Errorf("creating output dir: %s", err)
		}
	}

	files, err := metadata.ListBatchFiles(m.cfg.BatchesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.WithField("dir", m.cfg.BatchesDir).Warn("No batch files found, nothing to merge")
		return &m.stats, nil
	}
	log.WithField("batches", len(files)).Info("Starting merge")

	var seen *seenSet
	if m.cfg.Dedupe {
		path := m.cfg.DedupeDB
		if path == "" {
			path = m.cfg.OutputFile + ".dedupe.bolt"
		}
		// The seen-set only describes this run; stale state from an earlier
		// merge must not leak in.
		os.Remove(path)
		if seen, err = openSeenSet(path); err != nil {
			return nil, fmt.Errorf("opening dedupe db: %s", err)
		}
		defer seen.Close()
	}

	w, err := metadata.NewWriter(m.cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("opening output writer: %s", err)
	}

	for _, file := range files {
		recs, err := metadata.ReadRecords(file)
		if err != nil {
			m.stats.SkippedBatches++
			log.WithField("batch", file).Errorf("Skipping unreadable batch: %s", err)
			continue
		}

		// Normalize: rows enter the GlobalIndex unsharded regardless of
		// what a stray pre-sharded input claims.
		for i := range recs {
			recs[i].ShardID = nil
		}

		if seen != nil {
			kept, err := seen.filter(recs)
			if err != nil {
				w.Abort()
				return nil, fmt.Errorf("dedupe: %s", err)
			}
			m.stats.DupesDropped += int64(len(recs) - len(kept))
			recs = kept
		}

		if err := w.Write(recs); err != nil {
			w.Abort()
			return nil, fmt.Errorf("writing global index: %s", err)
		}

		m.stats.Batches++
		m.stats.Rows += int64(len(recs))
		for _, rec := range recs {
			m.stats.Bytes += rec.Size
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing global index: %s", err)
	}

	log.WithFields(log.Fields{
		"batches":         m.stats.Batches,
		"skipped-batches": m.stats.SkippedBatches,
		"rows":            m.stats.Rows,
		"bytes":           humanize.Bytes(uint64(m.stats.Bytes)),
		"dupes-dropped":   m.stats.DupesDropped,
		"output":          m.cfg.OutputFile,
	}).Info("Merge finished")

	return &m.stats, nil
}
