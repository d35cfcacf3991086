package metadata

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gigawatt.io/testlib"
	"github.com/parquet-go/parquet-go"

	"jaytaylor.com/shardpress/domain"
)

func testRecords() []domain.FileRecord {
	return []domain.FileRecord{
		{
			ProjectName: "jay/tay",
			FilePath:    "pkg/a.py",
			Tokens:      10,
			Size:        40,
			SHA256:      "aa",
		},
		{
			ProjectName: "jay/tay",
			FilePath:    "pkg/b.py",
			Tokens:      20,
			Size:        80,
			SHA256:      "bb",
		},
		{
			ProjectName: "want/moar",
			FilePath:    "c.py",
			Tokens:      5,
			Size:        17,
			SHA256:      "cc",
		},
	}
}

func TestWriterReadRecordsRoundTrip(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
	if err := os.MkdirAll(tempDir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	file := filepath.Join(tempDir, "index.parquet")

	w, err := NewWriter(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testRecords()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(file + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Expected staging file to be renamed away but stat err=%v", err)
	}

	version, err := DetectSchema(file)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := SchemaV1, version; actual != expected {
		t.Errorf("Expected schema version=%v but actual=%v", expected, actual)
	}

	recs, err := ReadRecords(file)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := testRecords(), recs; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected records=%+v but actual=%+v", expected, actual)
	}
}

func TestReadRecordsMigratesLegacyLayout(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
	if err := os.MkdirAll(tempDir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	file := filepath.Join(tempDir, "chunk_00000.parquet")

	legacy := []domain.BatchRecordV0{
		{
			ProjectName:  "jay/tay",
			RelativePath: "pkg/a.py",
			FileSize:     40,
			SHA256:       "aa",
			TokenCount:   10,
			AbsolutePath: "/srv/cloned_repos/jay_tay/pkg/a.py",
		},
	}

	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	pw := parquet.NewGenericWriter[domain.BatchRecordV0](f)
	if _, err := pw.Write(legacy); err != nil {
		t.Fatal(err)
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	version, err := DetectSchema(file)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := SchemaV0, version; actual != expected {
		t.Errorf("Expected schema version=%v but actual=%v", expected, actual)
	}

	recs, err := ReadRecords(file)
	if err != nil {
		t.Fatal(err)
	}
	expected := []domain.FileRecord{
		{
			ProjectName: "jay/tay",
			FilePath:    "pkg/a.py",
			Tokens:      10,
			Size:        40,
			SHA256:      "aa",
		},
	}
	if actual := recs; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected records=%+v but actual=%+v", expected, actual)
	}

	// The streaming path migrates legacy rows too, so summaries work on any
	// pipeline parquet file.
	streamed := []domain.FileRecord{}
	n, err := StreamRecords(file, 2, func(recs []domain.FileRecord) error {
		streamed = append(streamed, recs...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := int64(1), n; actual != expected {
		t.Errorf("Expected streamed row count=%v but actual=%v", expected, actual)
	}
	if actual := streamed; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected streamed records=%+v but actual=%+v", expected, actual)
	}

	summary, err := Summarize(file)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := (&Summary{Rows: 1, Tokens: 10, Size: 40}), summary; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected summary=%+v but actual=%+v", expected, actual)
	}
}

func TestBatchWriterFlushBoundaries(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
	if err := os.MkdirAll(tempDir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	bw, err := NewBatchWriter(tempDir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bw.Add(testRecords()...); err != nil {
		t.Fatal(err)
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}

	// 3 records with batch size 2: one full batch plus a partial one.
	if expected, actual := 2, bw.Batches(); actual != expected {
		t.Errorf("Expected batches=%v but actual=%v", expected, actual)
	}
	if expected, actual := int64(3), bw.Rows(); actual != expected {
		t.Errorf("Expected rows=%v but actual=%v", expected, actual)
	}

	files, err := ListBatchFiles(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 2, len(files); actual != expected {
		t.Fatalf("Expected batch file count=%v but actual=%v (files=%v)", expected, actual, files)
	}
	if expected, actual := "chunk_00000.parquet", filepath.Base(files[0]); actual != expected {
		t.Errorf("Expected first batch name=%q but actual=%q", expected, actual)
	}

	// A later writer must continue numbering, never clobber.
	bw2, err := NewBatchWriter(tempDir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bw2.Add(testRecords()[0]); err != nil {
		t.Fatal(err)
	}
	if err := bw2.Close(); err != nil {
		t.Fatal(err)
	}
	files, err = ListBatchFiles(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 3, len(files); actual != expected {
		t.Fatalf("Expected batch file count=%v but actual=%v (files=%v)", expected, actual, files)
	}
	if expected, actual := "chunk_00002.parquet", filepath.Base(files[2]); actual != expected {
		t.Errorf("Expected resumed batch name=%q but actual=%q", expected, actual)
	}
}

func TestStreamRecordsAndSummarize(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), testlib.CurrentRunningTest())
	if err := os.MkdirAll(tempDir, os.FileMode(int(0755))); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	file := filepath.Join(tempDir, "global_index.parquet")
	w, err := NewWriter(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testRecords()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	streamed := []domain.FileRecord{}
	n, err := StreamRecords(file, 2, func(recs []domain.FileRecord) error {
		streamed = append(streamed, recs...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := int64(3), n; actual != expected {
		t.Errorf("Expected streamed row count=%v but actual=%v", expected, actual)
	}
	if expected, actual := testRecords(), streamed; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected streamed records=%+v but actual=%+v", expected, actual)
	}

	summary, err := Summarize(file)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := (&Summary{Rows: 3, Tokens: 35, Size: 137}), summary; !reflect.DeepEqual(actual, expected) {
		t.Errorf("Expected summary=%+v but actual=%+v", expected, actual)
	}
}
