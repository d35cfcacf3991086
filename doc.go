// Package shardpress turns a tree of cloned source repositories into a
// reproducible, shard-packed dataset.
//
// Overview
//
// The system is comprised of four pipeline stages, each consuming the
// previous stage's on-disk output:
//
// 1. Extract
//
// Walks the acquisition directory tree (one subdirectory per project,
// produced by external cloning tooling), computes a per-file record of
// content hash, byte size, and token count, and emits the records as
// batched parquet files.  Files that are oversized, binary, or not valid
// UTF-8 are excluded entirely rather than flagged.
//
// 2. Merge
//
// Streams every batch file, in filename order, into a single
// schema-normalized global index.  The index is regenerated wholesale on
// each run, so repeated merges over the same batches are deterministic.
//
// 3. Shard
//
// Bin-packs the global index rows, strictly in order, into contiguous
// groups bounded by target/min/max byte sizes, then streams each group's
// file contents into a tar.zst archive with normalized headers and a fixed
// compression level.  Identical inputs produce byte-identical shards, and
// shards that already exist on disk are skipped, so an interrupted run can
// simply be restarted.
//
// 4. Finalize
//
// Concatenates all per-shard metadata into the final index, computes
// aggregate and per-project totals, and cross-checks them against the
// externally maintained token count record.
package shardpress
