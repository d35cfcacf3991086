package merger

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gigawatt.io/testlib"
	"github.com/parquet-go/parquet-go"

	"jaytaylor.com/shardpress/domain"
	"jaytaylor.com/shardpress/metadata"
)

func writeBatch(t *testing.T, dir string, seq int, recs []domain.FileRecord) {
	t.Helper()
	if err := os.MkdirAll(dir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	w, err := metadata.NewWriter(filepath.Join(dir, metadata.BatchFileName(seq)))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(recs); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func rec(project string, path string, tokens int64, size int64) domain.FileRecord {
	return domain.FileRecord{
		ProjectName: project,
		FilePath:    path,
		Tokens:      tokens,
		Size:        size,
		SHA256:      "deadbeef",
	}
}

func TestMergerPreservesBatchOrder(t *testing.T) {
	var (
		tempDir    = filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
		batchesDir = filepath.Join(tempDir, "metadata_chunks")
		output     = filepath.Join(tempDir, "global_index.parquet")
	)
	defer os.RemoveAll(tempDir)

	writeBatch(t, batchesDir, 1, []domain.FileRecord{rec("c/d", "z.py", 3, 30)})
	writeBatch(t, batchesDir, 0, []domain.FileRecord{
		rec("a/b", "x.py", 1, 10),
		rec("a/b", "y.py", 2, 20),
	})

	stats, err := New(NewConfig(batchesDir, output)).Run()
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 2, stats.Batches; actual != expected {
		t.Errorf("Expected batches=%v but actual=%v", expected, actual)
	}
	if expected, actual := int64(3), stats.Rows; actual != expected {
		t.Errorf("Expected rows=%v but actual=%v", expected, actual)
	}

	recs, err := metadata.ReadRecords(output)
	if err != nil {
		t.Fatal(err)
	}
	expected := []domain.FileRecord{
		rec("a/b", "x.py", 1, 10),
		rec("a/b", "y.py", 2, 20),
		rec("c/d", "z.py", 3, 30),
	}
	if actual := recs; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected records=%+v but actual=%+v", expected, actual)
	}
	for i, r := range recs {
		if r.ShardID != nil {
			t.Errorf("[i=%v] Expected nil shard_id but actual=%v", i, *r.ShardID)
		}
	}
}

func TestMergerMigratesLegacyBatches(t *testing.T) {
	var (
		tempDir    = filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
		batchesDir = filepath.Join(tempDir, "metadata_chunks")
		output     = filepath.Join(tempDir, "global_index.parquet")
	)
	defer os.RemoveAll(tempDir)

	if err := os.MkdirAll(batchesDir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(batchesDir, metadata.BatchFileName(0)))
	if err != nil {
		t.Fatal(err)
	}
	pw := parquet.NewGenericWriter[domain.BatchRecordV0](f)
	if _, err := pw.Write([]domain.BatchRecordV0{
		{
			ProjectName:  "old/batch",
			RelativePath: "legacy.py",
			FileSize:     11,
			SHA256:       "cafe",
			TokenCount:   7,
			AbsolutePath: "/srv/cloned_repos/old_batch/legacy.py",
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	stats, err := New(NewConfig(batchesDir, output)).Run()
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := int64(1), stats.Rows; actual != expected {
		t.Errorf("Expected rows=%v but actual=%v", expected, actual)
	}

	recs, err := metadata.ReadRecords(output)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 1, len(recs); actual != expected {
		t.Fatalf("Expected record count=%v but actual=%v", expected, actual)
	}
	if expected, actual := "legacy.py", recs[0].FilePath; actual != expected {
		t.Errorf("Expected file path=%q but actual=%q", expected, actual)
	}
	if expected, actual := int64(7), recs[0].Tokens; actual != expected {
		t.Errorf("Expected tokens=%v but actual=%v", expected, actual)
	}
}

func TestMergerSkipsMalformedBatch(t *testing.T) {
	var (
		tempDir    = filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
		batchesDir = filepath.Join(tempDir, "metadata_chunks")
		output     = filepath.Join(tempDir, "global_index.parquet")
	)
	defer os.RemoveAll(tempDir)

	writeBatch(t, batchesDir, 0, []domain.FileRecord{rec("a/b", "x.py", 1, 10)})
	if err := os.WriteFile(filepath.Join(batchesDir, metadata.BatchFileName(1)), []byte("not parquet"), os.FileMode(int(0644))); err != nil {
		t.Fatal(err)
	}

	stats, err := New(NewConfig(batchesDir, output)).Run()
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 1, stats.SkippedBatches; actual != expected {
		t.Errorf("Expected skipped batches=%v but actual=%v", expected, actual)
	}
	if expected, actual := int64(1), stats.Rows; actual != expected {
		t.Errorf("Expected rows=%v but actual=%v", expected, actual)
	}
}

func TestMergerDedupe(t *testing.T) {
	var (
		tempDir    = filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
		batchesDir = filepath.Join(tempDir, "metadata_chunks")
		output     = filepath.Join(tempDir, "global_index.parquet")
	)
	defer os.RemoveAll(tempDir)

	writeBatch(t, batchesDir, 0, []domain.FileRecord{
		rec("a/b", "x.py", 1, 10),
		rec("a/b", "y.py", 2, 20),
	})
	// Rerun leftovers repeating x.py with different counts; first
	// occurrence must win.
	writeBatch(t, batchesDir, 1, []domain.FileRecord{
		rec("a/b", "x.py", 99, 990),
		rec("c/d", "z.py", 3, 30),
	})

	cfg := NewConfig(batchesDir, output)
	cfg.Dedupe = true

	stats, err := New(cfg).Run()
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := int64(1), stats.DupesDropped; actual != expected {
		t.Errorf("Expected dupes dropped=%v but actual=%v", expected, actual)
	}
	if expected, actual := int64(3), stats.Rows; actual != expected {
		t.Errorf("Expected rows=%v but actual=%v", expected, actual)
	}

	recs, err := metadata.ReadRecords(output)
	if err != nil {
		t.Fatal(err)
	}
	expected := []domain.FileRecord{
		rec("a/b", "x.py", 1, 10),
		rec("a/b", "y.py", 2, 20),
		rec("c/d", "z.py", 3, 30),
	}
	if actual := recs; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected records=%+v but actual=%+v", expected, actual)
	}

	if _, err := os.Stat(output + ".dedupe.bolt"); !os.IsNotExist(err) {
		t.Errorf("Expected dedupe scratch db to be removed but stat err=%v", err)
	}
}
