// Package config handles map tool configuration loading and management.
package config

// Config holds all tool settings.
type Config struct {
	Maps     MapsConfig     `yaml:"maps"`
	Textures TexturesConfig `yaml:"textures"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Backup modes for MapsConfig.SaveBackup.
const (
	BackupNone      = 0
	BackupSingle    = 1 // name.BAK
	BackupTimestamp = 2 // name_<millis>.BAK
)

// MapsConfig holds map loading and saving settings.
type MapsConfig struct {
	Dir           string `yaml:"dir"`             // Directory relative map names resolve against
	SaveBackup    int    `yaml:"save_backup"`     // Backup mode before overwriting a map
	DebugVars     bool   `yaml:"debug_vars"`      // Trace every map variable on load
	GameIdent     string `yaml:"game_ident"`      // Game whose entities and extras are kept
	ScanCacheSize int    `yaml:"scan_cache_size"` // Entity scans kept in memory
}

// TexturesConfig holds texture slot settings used by exports.
type TexturesConfig struct {
	Dir     string `yaml:"dir"`     // Root that texture paths are relative to
	SlotCfg string `yaml:"slot_cfg"` // Script listing texture slots in order
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Maps: MapsConfig{
			Dir:           "packages/base",
			SaveBackup:    BackupNone,
			DebugVars:     false,
			GameIdent:     "fps",
			ScanCacheSize: 64,
		},
		Textures: TexturesConfig{
			Dir:     "packages",
			SlotCfg: "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "cubemap",
		},
	}
}
