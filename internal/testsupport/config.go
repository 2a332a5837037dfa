// Package testsupport provides builders shared by package tests: temp-dir
// backed configs, queue stores with cleanup, and gallery folder fixtures.
package testsupport

import (
	"path/filepath"
	"testing"

	"picdrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithHost overrides the default upload host on the test config.
func WithHost(host string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.Host = host
	}
}

// WithWorkers overrides the worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Concurrency.Workers = workers
	}
}

// WithLimits overrides the concurrency limits on the test config.
func WithLimits(global, perHost int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Concurrency.GlobalLimit = global
		cfg.Concurrency.PerHostLimit = perHost
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
