package log

import (
	"fmt"
	"path/filepath"
)

// LogCfg configures the logger section ("logger.yaml").
type LogCfg struct {
	// LogPath is the file written by the file appender.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level name (trace, debug, info, warn, error, fatal).
	LogLevel string `mapstructure:"level"`

	// FileSplitMB rotates the log file once it grows past this size.
	FileSplitMB int `mapstructure:"splitmb"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName implements config.Config.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate implements config.Config.
func (cfg *LogCfg) Validate() error {
	if _, ok := lookupLevel(cfg.LogLevel); cfg.LogLevel != "" && !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if cfg.FileAppender {
		if cfg.LogPath == "" {
			return fmt.Errorf("log path cannot be empty when file appender is enabled")
		}
		if cfg.FileSplitMB < 0 || cfg.FileSplitMB > 1024 {
			return fmt.Errorf("file split size must be between 0MB and 1024MB, got %dMB", cfg.FileSplitMB)
		}
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}
	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return fmt.Errorf("at least one appender (file or console) must be enabled")
	}
	return nil
}

// Level returns the parsed minimum level.
func (cfg *LogCfg) Level() Level {
	if cfg.LogLevel == "" {
		return InfoLevel
	}
	return ParseLevel(cfg.LogLevel)
}

func getDefaultCfg() *LogCfg {
	return &LogCfg{
		LogLevel:        "info",
		ConsoleAppender: true,
	}
}
