package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Queue.MaxSize != 1000 {
		t.Errorf("Queue.MaxSize = %d, want 1000", cfg.Queue.MaxSize)
	}
	if cfg.Queue.Workers != 2 {
		t.Errorf("Queue.Workers = %d, want 2", cfg.Queue.Workers)
	}
	if cfg.Dispatch.ParticleTimeoutSeconds != 300 {
		t.Errorf("Dispatch.ParticleTimeoutSeconds = %d, want 300", cfg.Dispatch.ParticleTimeoutSeconds)
	}
	if cfg.Memory.SimilarityThreshold != 0.7 {
		t.Errorf("Memory.SimilarityThreshold = %v, want 0.7", cfg.Memory.SimilarityThreshold)
	}
	if cfg.Embedding.Backend != "local" {
		t.Errorf("Embedding.Backend = %q, want local", cfg.Embedding.Backend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_MAXSIZE", "50")
	t.Setenv("DISPATCH_GRACEPERIOD", "9")
	t.Setenv("EMBEDDING_BACKEND", "qdrant")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Queue.MaxSize != 50 {
		t.Errorf("Queue.MaxSize = %d, want 50", cfg.Queue.MaxSize)
	}
	if cfg.Dispatch.GracePeriodSeconds != 9 {
		t.Errorf("Dispatch.GracePeriodSeconds = %d, want 9", cfg.Dispatch.GracePeriodSeconds)
	}
	if cfg.Embedding.Backend != "qdrant" {
		t.Errorf("Embedding.Backend = %q, want qdrant", cfg.Embedding.Backend)
	}
}

func TestLoad_YAMLFileOverriddenByEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := "queue:\n  maxSize: 77\n  workers: 5\ndispatch:\n  gracePeriodSeconds: 3\nembedding:\n  backend: qdrant\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("QUEUE_MAXSIZE", "99") // env must win over the YAML file's 77

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Queue.MaxSize != 99 {
		t.Errorf("Queue.MaxSize = %d, want 99 (env override)", cfg.Queue.MaxSize)
	}
	if cfg.Queue.Workers != 5 {
		t.Errorf("Queue.Workers = %d, want 5 (from YAML file, no env set)", cfg.Queue.Workers)
	}
	if cfg.Dispatch.GracePeriodSeconds != 3 {
		t.Errorf("Dispatch.GracePeriodSeconds = %d, want 3 (from YAML file)", cfg.Dispatch.GracePeriodSeconds)
	}
	if cfg.Embedding.Backend != "qdrant" {
		t.Errorf("Embedding.Backend = %q, want qdrant (from YAML file)", cfg.Embedding.Backend)
	}
	// Fields the YAML file didn't mention keep their built-in default.
	if cfg.Dispatch.ParticleTimeoutSeconds != 300 {
		t.Errorf("Dispatch.ParticleTimeoutSeconds = %d, want 300 (default preserved)", cfg.Dispatch.ParticleTimeoutSeconds)
	}
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if _, err := Load(); err != nil {
		t.Fatalf("expected no error for a missing config file, got %v", err)
	}
}
