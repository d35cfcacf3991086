package domain

import (
	"encoding/json"
	"fmt"
	"os"
)

// ProjectCounts is the per-project rollup carried by the external count
// record.
type ProjectCounts struct {
	Tokens         int64 `json:"tokens"`
	FilesProcessed int64 `json:"files_processed"`
}

// Counts is the external count record (token_counts.json) produced by the
// acquisition-side token counter and optionally reconciled by the finalizer.
type Counts struct {
	TotalTokens int64                    `json:"total_tokens"`
	TotalRepos  int64                    `json:"total_repos"`
	TotalFiles  int64                    `json:"total_files"`
	Repos       map[string]ProjectCounts `json:"repos"`
}

// LoadCounts reads and parses a count record from path.
func LoadCounts(path string) (*Counts, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	counts := &Counts{}
	if err := json.Unmarshal(bs, counts); err != nil {
		return nil, fmt.Errorf("parsing count record %q: %s", path, err)
	}
	return counts, nil
}

// Save replaces the count record at path wholesale.  The write goes through
// a temp file plus rename so a partially written record is never observed.
func (c *Counts) Save(path string) error {
	bs, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, os.FileMode(int(0644))); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
