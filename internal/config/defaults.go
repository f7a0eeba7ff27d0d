package config

const (
	defaultConfigPath        = "~/.config/lsm/config.toml"
	defaultDataDir           = "~/.local/share/lsm"
	defaultUploadDir         = "~/.local/share/lsm/uploads"
	defaultBind              = "127.0.0.1:8080"
	defaultSessionTTLMinutes = 120
	defaultPerPage           = 20
	defaultDriver            = DriverSQLite
	defaultUploadMaxBytes    = 8 << 20
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultTemplateDir       = "internal/web/templates"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var defaultAllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	exts := make([]string, len(defaultAllowedExtensions))
	copy(exts, defaultAllowedExtensions)
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			UploadDir: defaultUploadDir,
		},
		Server: Server{
			Bind:              defaultBind,
			SessionTTLMinutes: defaultSessionTTLMinutes,
			PerPage:           defaultPerPage,
		},
		Database: Database{
			Driver: defaultDriver,
		},
		Uploads: Uploads{
			MaxBytes:          defaultUploadMaxBytes,
			AllowedExtensions: exts,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Dev: Dev{
			TemplateDir: defaultTemplateDir,
		},
	}
}
