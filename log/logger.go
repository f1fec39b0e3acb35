// Package log is hopnet's structured logger. Records are JSON objects built
// with a chained API and written to one or more appenders.
package log

import (
	"github.com/lcx/hopnet/config"
)

// Logger is the interface LogEvent reports back to.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger = NewLogger(nil)

// Initialize replaces the default logger with one built from cfg.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		cfg = getDefaultCfg()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	SetDefaultLogger(NewLogger(cfg))
	return nil
}

// InitializeWithConfigManager loads the "logger" section over the console
// defaults, installs the resulting logger as default and subscribes it to hot
// reloads.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	logCfg := getDefaultCfg()
	if err := configManager.LoadConfigOrDefault("logger", logCfg); err != nil {
		return err
	}
	logger := NewLogger(logCfg)
	configManager.AddChangeListener(logger)
	SetDefaultLogger(logger)
	return nil
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *GameLogger) {
	_defaultLogger = logger
}

// DefaultLogger returns the logger behind the package-level functions.
func DefaultLogger() *GameLogger {
	return _defaultLogger
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh flushes the default logger's appenders.
func Refresh() {
	_defaultLogger.Refresh()
}

// Close flushes and closes the default logger's appenders.
func Close() {
	_defaultLogger.Close()
}

func Trace() *LogEvent { return _defaultLogger.log(TraceLevel) }

func Debug() *LogEvent { return _defaultLogger.log(DebugLevel) }

func Info() *LogEvent { return _defaultLogger.log(InfoLevel) }

func Warn() *LogEvent { return _defaultLogger.log(WarnLevel) }

func Error() *LogEvent { return _defaultLogger.log(ErrorLevel) }

func Fatal() *LogEvent { return _defaultLogger.log(FatalLevel) }
