package metadata

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"jaytaylor.com/shardpress/domain"
)

// DefaultStreamChunk is the row buffer size used when streaming large
// indices.
var DefaultStreamChunk = 4096

// ReadRecords loads an entire batch or shard-metadata file, migrating legacy
// layouts to the canonical schema.  Intended for the row-count-bounded
// artifacts; the GlobalIndex should be consumed with StreamRecords instead.
func ReadRecords(path string) ([]domain.FileRecord, error) {
	version, err := DetectSchema(path)
	if err != nil {
		return nil, err
	}

	switch version {
	case SchemaV1:
		return parquet.ReadFile[domain.FileRecord](path)

	case SchemaV0:
		legacy, err := parquet.ReadFile[domain.BatchRecordV0](path)
		if err != nil {
			return nil, err
		}
		recs := make([]domain.FileRecord, len(legacy))
		for i, rec := range legacy {
			recs[i] = rec.Canonical()
		}
		return recs, nil

	default:
		return nil, fmt.Errorf("%w in %q", ErrUnknownSchema, path)
	}
}

// StreamRecords invokes fn with successive chunks of rows from a pipeline
// parquet file, without ever holding the full file in memory.  Legacy-layout
// rows are migrated to the canonical schema on the way through.  Returns the
// number of rows visited.
func StreamRecords(path string, chunkSize int, fn func(recs []domain.FileRecord) error) (int64, error) {
	version, err := DetectSchema(path)
	if err != nil {
		return 0, err
	}

	if chunkSize <= 0 {
		chunkSize = DefaultStreamChunk
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	switch version {
	case SchemaV1:
		r := parquet.NewGenericReader[domain.FileRecord](f)
		defer r.Close()
		buf := make([]domain.FileRecord, chunkSize)
		return streamChunks(buf, r.Read, fn)

	case SchemaV0:
		r := parquet.NewGenericReader[domain.BatchRecordV0](f)
		defer r.Close()
		buf := make([]domain.BatchRecordV0, chunkSize)
		return streamChunks(buf, r.Read, func(legacy []domain.BatchRecordV0) error {
			recs := make([]domain.FileRecord, len(legacy))
			for i, rec := range legacy {
				recs[i] = rec.Canonical()
			}
			return fn(recs)
		})

	default:
		return 0, fmt.Errorf("%w in %q", ErrUnknownSchema, path)
	}
}

func streamChunks[T any](buf []T, read func([]T) (int, error), fn func([]T) error) (int64, error) {
	var total int64
	for {
		n, readErr := read(buf)
		if n > 0 {
			total += int64(n)
			if err := fn(buf[:n]); err != nil {
				return total, err
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// Summary holds the aggregate totals of one pipeline parquet file.
type Summary struct {
	Rows   int64 `json:"rows"`
	Tokens int64 `json:"tokens"`
	Size   int64 `json:"size"`
}

// Summarize streams a canonical-schema file and accumulates its aggregate
// totals.
func Summarize(path string) (*Summary, error) {
	summary := &Summary{}
	_, err := StreamRecords(path, DefaultStreamChunk, func(recs []domain.FileRecord) error {
		for _, rec := range recs {
			summary.Rows++
			summary.Tokens += rec.Tokens
			summary.Size += rec.Size
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
