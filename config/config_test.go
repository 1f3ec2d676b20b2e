package config

import (
	"os"
	"testing"

	json "github.com/goccy/go-json"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.BTree.Order != 64 {
		t.Errorf("expected BTree.Order 64, got %d", cfg.BTree.Order)
	}
	if cfg.Hash.GlobalDepth != 16 {
		t.Errorf("expected Hash.GlobalDepth 16, got %d", cfg.Hash.GlobalDepth)
	}
	if cfg.Hash.BucketCapacity <= 0 {
		t.Errorf("expected positive Hash.BucketCapacity, got %d", cfg.Hash.BucketCapacity)
	}
	if cfg.Spimi.MemoryBudgetBytes <= 0 {
		t.Errorf("expected positive Spimi.MemoryBudgetBytes")
	}
	if cfg.Spimi.StopwordsPath != "" {
		t.Errorf("expected empty default Spimi.StopwordsPath, got %q", cfg.Spimi.StopwordsPath)
	}
	if !cfg.Spimi.UseStemmer {
		t.Errorf("expected Spimi.UseStemmer to default to true")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.json"

	cfg := defaultConfig()
	cfg.BTree.Order = 8

	if err := save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var reloaded DBConfig
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reloaded.BTree.Order != 8 {
		t.Errorf("expected reloaded BTree.Order 8, got %d", reloaded.BTree.Order)
	}
}
