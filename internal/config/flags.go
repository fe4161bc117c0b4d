package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging and variable tracing")
	flagMapDir  = flag.String("mapdir", "", "Directory relative map names resolve against")
	flagSaveBak = flag.Int("savebak", -1, "Backup mode before overwriting a map (0 none, 1 single, 2 timestamped)")
	flagTexDir  = flag.String("texdir", "", "Root that texture paths are relative to")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Maps.DebugVars = true
	}
	if *flagMapDir != "" {
		cfg.Maps.Dir = *flagMapDir
	}
	if *flagSaveBak >= BackupNone && *flagSaveBak <= BackupTimestamp {
		cfg.Maps.SaveBackup = *flagSaveBak
	}
	if *flagTexDir != "" {
		cfg.Textures.Dir = *flagTexDir
	}
}
