// Package metadata provides the columnar (parquet) plumbing shared by all
// pipeline stages: streaming writers for the Batch / GlobalIndex /
// ShardMetadata / FinalIndex artifacts, and version-aware readers which
// migrate records written under older batch layouts to the canonical schema.
package metadata

import (
	"errors"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// SchemaVersion identifies one of the known column layouts.
type SchemaVersion int

const (
	// SchemaUnknown marks a file whose column layout matches no known
	// version.  Such files are skipped by the merging stages, never cast
	// positionally.
	SchemaUnknown SchemaVersion = iota

	// SchemaV0 is the legacy extraction-batch layout (relative_path,
	// file_size, token_count, absolute_path columns).
	SchemaV0

	// SchemaV1 is the canonical 6-column schema.
	SchemaV1
)

var ErrUnknownSchema = errors.New("unrecognized column layout")

var (
	v1Columns = []string{"project_name", "file_path", "tokens", "size", "sha256"}
	v0Columns = []string{"project_name", "relative_path", "file_size", "sha256", "token_count"}
)

// DetectSchema inspects the parquet footer of the file at path and reports
// which known schema version its columns conform to.
func DetectSchema(path string) (SchemaVersion, error) {
	f, err := os.Open(path)
	if err != nil {
		return SchemaUnknown, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return SchemaUnknown, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return SchemaUnknown, fmt.Errorf("opening parquet file %q: %s", path, err)
	}

	names := map[string]struct{}{}
	for _, field := range pf.Schema().Fields() {
		names[field.Name()] = struct{}{}
	}

	if containsAll(names, v1Columns) {
		return SchemaV1, nil
	}
	if containsAll(names, v0Columns) {
		return SchemaV0, nil
	}
	return SchemaUnknown, nil
}

func containsAll(names map[string]struct{}, cols []string) bool {
	for _, col := range cols {
		if _, ok := names[col]; !ok {
			return false
		}
	}
	return true
}
