// Package finalizer implements the fourth pipeline stage: concatenating the
// per-shard metadata files into the FinalIndex and cross-checking the
// resulting aggregates against the external count record.
package finalizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"jaytaylor.com/shardpress/domain"
	"jaytaylor.com/shardpress/metadata"
)

var DefaultCountsFile = "token_counts.json"

type Config struct {
	ShardMetaDir string // Directory holding the per-shard metadata files.
	OutputFile   string // Destination path for the FinalIndex parquet file.
	CountsFile   string // External count record; empty disables verification.
	UpdateCounts bool   // Rewrite the count record from computed aggregates on mismatch.
}

func NewConfig(shardMetaDir string, outputFile string) *Config {
	cfg := &Config{
		ShardMetaDir: shardMetaDir,
		OutputFile:   outputFile,
		CountsFile:   DefaultCountsFile,
	}
	return cfg
}

// Stats accumulates the outcome counters of one finalize run.
type Stats struct {
	ShardFiles   int
	SkippedFiles int
	Rows         int64
	Tokens       int64
	Bytes        int64
	Projects     int
}

// Verification is the outcome of comparing computed aggregates against the
// external count record.  Deltas are computed minus expected.
type Verification struct {
	Expected    *domain.Counts
	TokensDelta int64
	FilesDelta  int64
	ReposDelta  int64
}

func (v *Verification) OK() bool {
	return v.TokensDelta == 0 && v.FilesDelta == 0 && v.ReposDelta == 0
}

type Finalizer struct {
	cfg    *Config
	stats  Stats
	rollup map[string]*domain.ProjectCounts
}

func New(cfg *Config) *Finalizer {
	f := &Finalizer{
		cfg:    cfg,
		rollup: map[string]*domain.ProjectCounts{},
	}
	return f
}

// Run concatenates all shard metadata files, in filename order, into the
// FinalIndex, then verifies the aggregates against the count record when one
// is configured.  A mismatch is reported but never fails the run; only a
// missing input directory or a failure writing the FinalIndex itself does.
func (f *Finalizer) Run() (*Stats, error) {
	if _, err := os.Stat(f.cfg.ShardMetaDir); err != nil {
		return nil, fmt.Errorf("shard metadata dir: %s", err)
	}
	if dir := filepath.Dir(f.cfg.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, os.FileMode(int(0755))); err != nil {
			return nil, fmt.Errorf("creating output dir: %s", err)
		}
	}

	paths, err := filepath.Glob(filepath.Join(f.cfg.ShardMetaDir, "shard_*_metadata.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		log.WithField("dir", f.cfg.ShardMetaDir).Warn("No shard metadata files found, nothing to finalize")
		return &f.stats, nil
	}

	w, err := metadata.NewWriter(f.cfg.OutputFile)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		recs, err := metadata.ReadRecords(path)
		if err != nil {
			log.WithField("file", path).Errorf("Skipping unreadable shard metadata: %s", err)
			f.stats.SkippedFiles++
			continue
		}
		if err := w.Write(recs); err != nil {
			w.Abort()
			return nil, fmt.Errorf("writing final index: %s", err)
		}
		f.stats.ShardFiles++
		f.absorb(recs)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing final index: %s", err)
	}
	f.stats.Projects = len(f.rollup)

	log.WithFields(log.Fields{
		"shardFiles": f.stats.ShardFiles,
		"skipped":    f.stats.SkippedFiles,
		"rows":       f.stats.Rows,
		"tokens":     f.stats.Tokens,
		"bytes":      humanize.Bytes(uint64(f.stats.Bytes)),
		"projects":   f.stats.Projects,
	}).Info("Final index written")

	if f.cfg.CountsFile == "" {
		return &f.stats, nil
	}
	v, err := f.Verify()
	if err != nil {
		log.Warnf("Verification skipped: %s", err)
		return &f.stats, nil
	}
	f.report(v)

	if !v.OK() && f.cfg.UpdateCounts {
		if err := f.Counts().Save(f.cfg.CountsFile); err != nil {
			return nil, fmt.Errorf("updating count record: %s", err)
		}
		log.WithField("file", f.cfg.CountsFile).Info("Count record rewritten from computed aggregates")
	}

	return &f.stats, nil
}

func (f *Finalizer) absorb(recs []domain.FileRecord) {
	for _, rec := range recs {
		f.stats.Rows++
		f.stats.Tokens += rec.Tokens
		f.stats.Bytes += rec.Size

		pc, ok := f.rollup[rec.ProjectName]
		if !ok {
			pc = &domain.ProjectCounts{}
			f.rollup[rec.ProjectName] = pc
		}
		pc.Tokens += rec.Tokens
		pc.FilesProcessed++
	}
}

// Verify loads the external count record and diffs it against the computed
// aggregates.
func (f *Finalizer) Verify() (*Verification, error) {
	expected, err := domain.LoadCounts(f.cfg.CountsFile)
	if err != nil {
		return nil, err
	}
	v := &Verification{
		Expected:    expected,
		TokensDelta: f.stats.Tokens - expected.TotalTokens,
		FilesDelta:  f.stats.Rows - expected.TotalFiles,
		ReposDelta:  int64(len(f.rollup)) - expected.TotalRepos,
	}
	return v, nil
}

// Counts materializes the computed aggregates in the external record's
// shape, for reconciliation.
func (f *Finalizer) Counts() *domain.Counts {
	counts := &domain.Counts{
		TotalTokens: f.stats.Tokens,
		TotalRepos:  int64(len(f.rollup)),
		TotalFiles:  f.stats.Rows,
		Repos:       map[string]domain.ProjectCounts{},
	}
	for name, pc := range f.rollup {
		counts.Repos[name] = *pc
	}
	return counts
}

func (f *Finalizer) report(v *Verification) {
	status := "PASS"
	if !v.OK() {
		status = "FAIL"
	}
	fmt.Printf("verification: %v\n", status)
	fmt.Printf("  tokens: computed=%v expected=%v delta=%+d\n", f.stats.Tokens, v.Expected.TotalTokens, v.TokensDelta)
	fmt.Printf("  files:  computed=%v expected=%v delta=%+d\n", f.stats.Rows, v.Expected.TotalFiles, v.FilesDelta)
	fmt.Printf("  repos:  computed=%v expected=%v delta=%+d\n", len(f.rollup), v.Expected.TotalRepos, v.ReposDelta)
}
