// Package config loads reldb's tuning parameters from config/app.json
// relative to the current working directory, falling back to defaults
// and persisting them on first run.
//
// Grounded on hunddb/utils/config: a sync.Once-guarded singleton with
// typed sections, defaulted then written to disk the first time it's
// requested. JSON encoding uses goccy/go-json in place of encoding/json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// DBConfig holds every tunable parameter of the storage and indexing core.
type DBConfig struct {
	BTree struct {
		Order int `json:"order"` // max keys per node (m); min fill = floor(m/2)
	} `json:"btree"`

	Hash struct {
		GlobalDepth    int `json:"global_depth"`    // max trie depth
		BucketCapacity int `json:"bucket_capacity"` // records per bucket page (C)
	} `json:"hash"`

	SeqIndex struct {
		MinAux int `json:"min_aux"` // not read by storage/seqindex, whose aux floor is fixed at 1
	} `json:"seq_index"`

	RTree struct {
		MinChildren int `json:"min_children"`
		MaxChildren int `json:"max_children"`
	} `json:"rtree"`

	Spimi struct {
		MemoryBudgetBytes int64  `json:"memory_budget_bytes"`
		BlockDir          string `json:"block_dir"`
		CompressBlocks    bool   `json:"compress_blocks"`
		StopwordsPath     string `json:"stopwords_path"` // empty uses the built-in English list
		UseStemmer        bool   `json:"use_stemmer"`
	} `json:"spimi"`
}

var (
	instance *DBConfig
	once     sync.Once
	mu       sync.Mutex
)

// Get returns the singleton configuration, loading or creating
// config/app.json relative to the current working directory.
func Get() *DBConfig {
	once.Do(func() {
		instance = load()
	})
	return instance
}

func configPath() string {
	return filepath.Join("config", "app.json")
}

func load() *DBConfig {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		_ = save(cfg, path)
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaultConfig()
	}

	var cfg DBConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaultConfig()
	}
	return &cfg
}

func defaultConfig() *DBConfig {
	cfg := &DBConfig{}
	cfg.BTree.Order = 64
	cfg.Hash.GlobalDepth = 16
	cfg.Hash.BucketCapacity = 64
	cfg.SeqIndex.MinAux = 1
	cfg.RTree.MinChildren = 3
	cfg.RTree.MaxChildren = 8
	cfg.Spimi.MemoryBudgetBytes = 4 * 1024 * 1024
	cfg.Spimi.BlockDir = "index_blocks"
	cfg.Spimi.CompressBlocks = true
	cfg.Spimi.StopwordsPath = ""
	cfg.Spimi.UseStemmer = true
	return cfg
}

func save(cfg *DBConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Set replaces the singleton instance (used by tests and embedders that
// want explicit control instead of the JSON file).
func Set(cfg *DBConfig) {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {})
	instance = cfg
}
