package domain

// FileRecord describes one source file's identity, size, hash, and token
// count.  It is constructed once at extraction time and flows through every
// pipeline stage unchanged, except for ShardID which is stamped by the shard
// builder.
//
// The parquet tags define the canonical 6-column schema shared by Batch,
// GlobalIndex, ShardMetadata, and FinalIndex files.
type FileRecord struct {
	ProjectName string  `parquet:"project_name" json:"project_name"`
	FilePath    string  `parquet:"file_path" json:"file_path"`
	Tokens      int64   `parquet:"tokens" json:"tokens"`
	Size        int64   `parquet:"size" json:"size"`
	SHA256      string  `parquet:"sha256" json:"sha256"`
	ShardID     *string `parquet:"shard_id,optional" json:"shard_id,omitempty"`
}

// WithShardID returns a copy of the record with ShardID populated.
func (r FileRecord) WithShardID(id string) FileRecord {
	r.ShardID = &id
	return r
}

// Key returns the identity of the record within one extraction run.
func (r FileRecord) Key() string {
	return r.ProjectName + "\x00" + r.FilePath
}

// BatchRecordV0 is the original extraction-batch layout, produced by early
// versions of the extractor.  The merger still accepts batches written in
// this layout and migrates them to the canonical schema.
type BatchRecordV0 struct {
	ProjectName  string `parquet:"project_name"`
	RelativePath string `parquet:"relative_path"`
	FileSize     int64  `parquet:"file_size"`
	SHA256       string `parquet:"sha256"`
	TokenCount   int64  `parquet:"token_count"`
	AbsolutePath string `parquet:"absolute_path"`
}

// Canonical migrates a legacy batch record to the canonical schema.  The
// absolute path column is dropped; it is reconstructed downstream from the
// project name and relative path instead.
func (r BatchRecordV0) Canonical() FileRecord {
	return FileRecord{
		ProjectName: r.ProjectName,
		FilePath:    r.RelativePath,
		Tokens:      r.TokenCount,
		Size:        r.FileSize,
		SHA256:      r.SHA256,
	}
}
