package domain

import (
	"fmt"
)

const (
	// ShardArchiveSuffix is the file suffix for shard archives.
	ShardArchiveSuffix = ".tar.zst"

	// ShardMetadataSuffix is the file suffix for per-shard metadata files.
	ShardMetadataSuffix = "_metadata.parquet"
)

// FormatShardID renders a shard sequence number as the zero-padded string
// form stamped into ShardMetadata rows and file names.
func FormatShardID(seq int) string {
	return fmt.Sprintf("%05d", seq)
}

// ShardArchiveName returns the archive file name for a shard ID, e.g.
// "shard_00042.tar.zst".
func ShardArchiveName(id string) string {
	return fmt.Sprintf("shard_%v%v", id, ShardArchiveSuffix)
}

// ShardMetadataName returns the metadata file name for a shard ID, e.g.
// "shard_00042_metadata.parquet".
func ShardMetadataName(id string) string {
	return fmt.Sprintf("shard_%v%v", id, ShardMetadataSuffix)
}
