package testsupport

import (
	"path/filepath"
	"testing"

	"lsm/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.PerPage = 5
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBasePath mounts the admin panel below prefix.
func WithBasePath(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.BasePath = prefix
	}
}

// WithUploadLimit overrides the per-file upload size limit.
func WithUploadLimit(maxBytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Uploads.MaxBytes = maxBytes
	}
}

// WithMetrics enables the /metrics endpoint.
func WithMetrics() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Metrics = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
