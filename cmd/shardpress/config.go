package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"jaytaylor.com/shardpress/extractor"
	"jaytaylor.com/shardpress/finalizer"
	"jaytaylor.com/shardpress/merger"
	"jaytaylor.com/shardpress/sharder"
)

// DefaultConfigSearchPaths contains the locations checked, in order, for a
// shardpress TOML configuration file.
var DefaultConfigSearchPaths = []string{
	filepath.Join(os.Getenv("HOME"), ".shardpress.toml"),
	filepath.Join(os.Getenv("HOME"), ".config", "shardpress.toml"),
}

// Config is the TOML configuration struct.  When a config file exists in one
// of the search paths, the values contained therein override the compiled-in
// defaults.  Size values accept humanized strings, e.g. "10 GiB".
type Config struct {
	File string `toml:"-"`

	Quiet   bool `toml:"quiet"`
	Verbose bool `toml:"verbose"`

	Extensions     []string `toml:"extensions"`
	ExtractWorkers int      `toml:"extract_workers"`
	BatchSize      int      `toml:"batch_size"`
	MaxFileSize    string   `toml:"max_file_size"`

	Dedupe bool `toml:"dedupe"`

	ShardWorkers int    `toml:"shard_workers"`
	TargetSize   string `toml:"target_size"`
	MinSize      string `toml:"min_size"`
	MaxSize      string `toml:"max_size"`

	CountsFile string `toml:"counts_file"`
}

func NewConfig() *Config {
	config := &Config{}
	return config
}

// Do locates, parses, and applies the configuration file, if one exists.
func (config *Config) Do() error {
	for _, path := range config.searchPaths() {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		config.File = path
		break
	}
	if config.File == "" {
		return nil
	}
	if _, err := toml.DecodeFile(config.File, config); err != nil {
		return err
	}
	return config.Apply()
}

func (config *Config) searchPaths() []string {
	return DefaultConfigSearchPaths
}

// Apply overrides the stage packages' compiled-in defaults with the values
// from the configuration file.  Flags are bound to the same defaults, so the
// precedence order is flags > config file > compiled-in.
func (config *Config) Apply() error {
	if config.Quiet {
		Quiet = true
	}
	if config.Verbose {
		Verbose = true
	}

	if len(config.Extensions) > 0 {
		extractor.DefaultExtensions = config.Extensions
	}
	if config.ExtractWorkers > 0 {
		extractor.DefaultWorkers = config.ExtractWorkers
	}
	if config.BatchSize > 0 {
		extractor.DefaultBatchSize = config.BatchSize
	}
	if config.MaxFileSize != "" {
		n, err := humanize.ParseBytes(config.MaxFileSize)
		if err != nil {
			return err
		}
		extractor.DefaultMaxFileSize = int64(n)
	}

	if config.Dedupe {
		merger.DefaultDedupe = true
	}

	if config.ShardWorkers > 0 {
		sharder.DefaultWorkers = config.ShardWorkers
	}
	for _, size := range []struct {
		value  string
		target *int64
	}{
		{config.TargetSize, &sharder.DefaultTargetSize},
		{config.MinSize, &sharder.DefaultMinSize},
		{config.MaxSize, &sharder.DefaultMaxSize},
	} {
		if size.value == "" {
			continue
		}
		n, err := humanize.ParseBytes(size.value)
		if err != nil {
			return err
		}
		*size.target = int64(n)
	}

	if config.CountsFile != "" {
		finalizer.DefaultCountsFile = config.CountsFile
	}

	return nil
}
