package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gigawatt.io/errorlib"
	"github.com/parquet-go/parquet-go"

	"jaytaylor.com/shardpress/domain"
)

// Writer appends FileRecords to a single parquet file.  Output is staged in
// a temp file and renamed into place on Close, so consumers only ever
// observe complete files.
type Writer struct {
	path string
	tmp  string
	f    *os.File
	pw   *parquet.GenericWriter[domain.FileRecord]
	rows int64
}

// NewWriter creates (or replaces) the parquet file at path.
func NewWriter(path string) (*Writer, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		path: path,
		tmp:  tmp,
		f:    f,
		pw:   parquet.NewGenericWriter[domain.FileRecord](f, parquet.Compression(&parquet.Zstd)),
	}
	return w, nil
}

// Write appends records to the file.
func (w *Writer) Write(recs []domain.FileRecord) error {
	for len(recs) > 0 {
		n, err := w.pw.Write(recs)
		w.rows += int64(n)
		if err != nil {
			return err
		}
		recs = recs[n:]
	}
	return nil
}

// Rows returns the number of records written so far.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Close flushes the parquet footer and moves the staged file into place.
// On failure the staged file is removed.
func (w *Writer) Close() error {
	errs := []error{}
	if err := w.pw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing parquet writer for %q: %s", w.path, err))
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %q: %s", w.tmp, err))
	}
	if len(errs) == 0 {
		if err := os.Rename(w.tmp, w.path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		os.Remove(w.tmp)
		return errorlib.Merge(errs)
	}
	return nil
}

// Abort discards the writer and any staged output.
func (w *Writer) Abort() {
	w.pw.Close()
	w.f.Close()
	os.Remove(w.tmp)
}

// BatchWriter accumulates FileRecords and emits them as fixed-row-count
// batch files ("chunk_NNNNN.parquet") under a directory.  Numbering resumes
// after any batches already present so an interrupted extraction never
// clobbers completed output.
type BatchWriter struct {
	dir       string
	batchSize int
	seq       int
	pending   []domain.FileRecord
	rows      int64
	batches   int
}

// NewBatchWriter constructs a BatchWriter targeting dir.
func NewBatchWriter(dir string, batchSize int) (*BatchWriter, error) {
	seq, err := nextBatchSeq(dir)
	if err != nil {
		return nil, err
	}
	bw := &BatchWriter{
		dir:       dir,
		batchSize: batchSize,
		seq:       seq,
		pending:   make([]domain.FileRecord, 0, batchSize),
	}
	return bw, nil
}

// Add appends records, flushing a batch file each time the accumulator
// reaches the configured batch size.
func (bw *BatchWriter) Add(recs ...domain.FileRecord) error {
	bw.pending = append(bw.pending, recs...)
	for len(bw.pending) >= bw.batchSize {
		if err := bw.writeBatch(bw.pending[:bw.batchSize]); err != nil {
			return err
		}
		bw.pending = bw.pending[bw.batchSize:]
	}
	return nil
}

// Close flushes any partial trailing batch.
func (bw *BatchWriter) Close() error {
	if len(bw.pending) > 0 {
		if err := bw.writeBatch(bw.pending); err != nil {
			return err
		}
		bw.pending = nil
	}
	return nil
}

// Rows returns the total number of records flushed to disk.
func (bw *BatchWriter) Rows() int64 {
	return bw.rows
}

// Batches returns the number of batch files written.
func (bw *BatchWriter) Batches() int {
	return bw.batches
}

func (bw *BatchWriter) writeBatch(recs []domain.FileRecord) error {
	path := filepath.Join(bw.dir, BatchFileName(bw.seq))
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(recs); err != nil {
		w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	bw.seq++
	bw.batches++
	bw.rows += int64(len(recs))
	return nil
}

// BatchFileName renders the batch file name for a sequence number.
func BatchFileName(seq int) string {
	return fmt.Sprintf("chunk_%05d.parquet", seq)
}

// ListBatchFiles returns the batch files under dir in lexicographic order,
// which for zero-padded names is also numeric order.
func ListBatchFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "chunk_*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func nextBatchSeq(dir string) (int, error) {
	matches, err := ListBatchFiles(dir)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, match := range matches {
		var seq int
		if _, err := fmt.Sscanf(filepath.Base(match), "chunk_%d.parquet", &seq); err != nil {
			continue
		}
		if seq >= next {
			next = seq + 1
		}
	}
	return next, nil
}
