// Package extractor implements the first pipeline stage: walking an
// acquisition directory tree and turning every qualifying source file into a
// FileRecord, flushed to disk in fixed-size parquet batches.
package extractor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"jaytaylor.com/shardpress/domain"
	"jaytaylor.com/shardpress/metadata"
	"jaytaylor.com/shardpress/pkg/unique"
	"jaytaylor.com/shardpress/tokenizer"
)

var (
	DefaultWorkers     = 128
	DefaultBatchSize   = 10000
	DefaultMaxFileSize = int64(5 * 1024 * 1024)
	DefaultExtensions  = []string{".py"}

	// ProgressInterval controls how many completed projects elapse between
	// progress log lines.
	ProgressInterval = 100
)

type Config struct {
	ReposDir    string              // Acquisition root containing one directory per project.
	OutputDir   string              // Destination directory for batch files.
	Workers     int                 // Number of parallel project tasks.
	BatchSize   int                 // Records per batch file.
	MaxFileSize int64               // Per-file size ceiling, in bytes.
	Extensions  []string            // Source-file extension allow-list.
	Tokenizer   tokenizer.Tokenizer // Defaults to the cl100k_base BPE when nil.
}

func NewConfig(reposDir string, outputDir string) *Config {
	cfg := &Config{
		ReposDir:    reposDir,
		OutputDir:   outputDir,
		Workers:     DefaultWorkers,
		BatchSize:   DefaultBatchSize,
		MaxFileSize: DefaultMaxFileSize,
		Extensions:  DefaultExtensions,
	}
	return cfg
}

// Stats accumulates the outcome counters of one extraction run.  Only the
// single goroutine draining worker results mutates it.
type Stats struct {
	Projects       int64
	Files          int64
	Bytes          int64
	SkippedTooBig  int64
	SkippedBinary  int64
	SkippedNonUTF8 int64
	Batches        int
}

type Extractor struct {
	cfg   *Config
	exts  map[string]struct{}
	tok   tokenizer.Tokenizer
	stats Stats
}

func New(cfg *Config) *Extractor {
	exts := map[string]struct{}{}
	for _, ext := range unique.Extensions(cfg.Extensions) {
		exts[ext] = struct{}{}
	}
	e := &Extractor{
		cfg:  cfg,
		exts: exts,
		tok:  cfg.Tokenizer,
	}
	return e
}

// Run performs the extraction and returns the run counters.
func (e *Extractor) Run() (*Stats, error) {
	if _, err := os.Stat(e.cfg.ReposDir); err != nil {
		return nil, fmt.Errorf("repos dir: %s", err)
	}
	if err := os.MkdirAll(e.cfg.OutputDir, os.FileMode(int(0755))); err != nil {
		return nil, fmt.Errorf("creating output dir: %s", err)
	}

	if e.tok == nil {
		tok, err := tokenizer.NewTiktoken(tokenizer.DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("initializing tokenizer: %s", err)
		}
		e.tok = tok
	}

	dirs, err := projectDirs(e.cfg.ReposDir)
	if err != nil {
		return nil, err
	}
	log.WithField("projects", len(dirs)).Info("Scanning for projects finished")

	bw, err := metadata.NewBatchWriter(e.cfg.OutputDir, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("opening batch writer: %s", err)
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		jobs    = make(chan string)
		results = make(chan *projectResult)
		g       = errgroup.Group{}
	)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for dir := range jobs {
				results <- e.processProject(dir)
			}
			return nil
		})
	}

	go func() {
		for _, dir := range dirs {
			jobs <- dir
		}
		close(jobs)
	}()

	go func() {
		g.Wait()
		close(results)
	}()

	var (
		startedAt = time.Now()
		writeErr  error
	)
	for res := range results {
		e.stats.Projects++
		e.stats.Files += int64(len(res.records))
		e.stats.SkippedTooBig += res.skippedTooBig
		e.stats.SkippedBinary += res.skippedBinary
		e.stats.SkippedNonUTF8 += res.skippedNonUTF8
		for _, rec := range res.records {
			e.stats.Bytes += rec.Size
		}

		if writeErr == nil {
			if err := bw.Add(res.records...); err != nil {
				// Batch output is this stage's own output path; keep
				// draining so workers can exit, then fail the run.
				writeErr = fmt.Errorf("writing batch: %s", err)
			}
		}

		if e.stats.Projects%int64(ProgressInterval) == 0 {
			elapsed := time.Since(startedAt).Seconds()
			rate := float64(0)
			if elapsed > 0 {
				rate = float64(e.stats.Projects) / elapsed
			}
			log.WithFields(log.Fields{
				"projects": fmt.Sprintf("%v/%v", e.stats.Projects, len(dirs)),
				"files":    e.stats.Files,
				"bytes":    humanize.Bytes(uint64(e.stats.Bytes)),
				"rate":     fmt.Sprintf("%.2f projects/s", rate),
			}).Info("Extraction progress")
		}
	}

	if writeErr != nil {
		return nil, writeErr
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("flushing final batch: %s", err)
	}
	e.stats.Batches = bw.Batches()

	log.WithFields(log.Fields{
		"projects":         e.stats.Projects,
		"files":            e.stats.Files,
		"bytes":            humanize.Bytes(uint64(e.stats.Bytes)),
		"batches":          e.stats.Batches,
		"skipped-too-big":  e.stats.SkippedTooBig,
		"skipped-binary":   e.stats.SkippedBinary,
		"skipped-non-utf8": e.stats.SkippedNonUTF8,
	}).Info("Extraction finished")

	return &e.stats, nil
}

type projectResult struct {
	records        []domain.FileRecord
	skippedTooBig  int64
	skippedBinary  int64
	skippedNonUTF8 int64
}

func (e *Extractor) processProject(dir string) *projectResult {
	var (
		res         = &projectResult{}
		projectName = domain.UnescapeProjectName(filepath.Base(dir))
	)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithField("path", path).Warnf("Skipping unreadable entry: %s", err)
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if _, ok := e.exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		e.processFile(projectName, dir, path, info, res)
		return nil
	})
	if err != nil {
		log.WithField("project", projectName).Warnf("Scan aborted: %s", err)
	}
	return res
}

func (e *Extractor) processFile(projectName string, root string, path string, info os.FileInfo, res *projectResult) {
	if info.Size() > e.cfg.MaxFileSize {
		res.skippedTooBig++
		log.WithField("file", path).Debug("Skipping file over size ceiling")
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		log.WithField("file", path).Warnf("Skipping unreadable file: %s", err)
		return
	}
	if bytes.IndexByte(content, 0) >= 0 {
		res.skippedBinary++
		log.WithField("file", path).Debug("Skipping file containing NUL byte")
		return
	}
	if !utf8.Valid(content) {
		res.skippedNonUTF8++
		log.WithField("file", path).Debug("Skipping non-UTF8 file")
		return
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		log.WithField("file", path).Warnf("Skipping file outside project root: %s", err)
		return
	}

	sum := sha256.Sum256(content)

	res.records = append(res.records, domain.FileRecord{
		ProjectName: projectName,
		FilePath:    filepath.ToSlash(rel),
		Tokens:      int64(e.tok.Count(string(content))),
		Size:        int64(len(content)),
		SHA256:      hex.EncodeToString(sum[:]),
	})
}

// projectDirs enumerates the immediate child directories of root, each of
// which is treated as one project.  Hidden directories are not projects.
func projectDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	dirs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	return dirs, nil
}
