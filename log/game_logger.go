package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/hopnet/config"
)

// GameLogger is the concrete Logger: level filtering, optional caller info and
// a set of appenders. LogEvents are pooled.
//
//	logger := NewLogger(&LogCfg{LogLevel: "info", ConsoleAppender: true})
//	logger.Info().Str("addr", addr).Int("attempt", 2).Msg("connect failed")
type GameLogger struct {
	mu                sync.RWMutex
	appenders         []LogAppender
	minLevel          atomic.Int32
	callerInfoEnabled atomic.Bool
	eventPool         sync.Pool
	callerCache       sync.Map
}

// NewLogger builds a logger from cfg (nil means console at info level).
// A file appender that cannot be opened is reported on the console and skipped.
func NewLogger(cfg *LogCfg) *GameLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &GameLogger{}
	logger.eventPool.New = func() any {
		return newEvent(logger)
	}
	logger.apply(cfg)

	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	if cfg.FileAppender {
		fa, err := NewFileAppender(cfg)
		if err != nil {
			logger.AddAppender(NewConsoleAppender())
			logger.Error().Err(err).Str("path", cfg.LogPath).Msg("file appender disabled")
		} else {
			logger.AddAppender(fa)
		}
	}
	return logger
}

func (x *GameLogger) apply(cfg *LogCfg) {
	x.minLevel.Store(int32(cfg.Level()))
	x.callerInfoEnabled.Store(cfg.EnabledCallerInfo)
}

// SetLevel changes the minimum level at runtime.
func (x *GameLogger) SetLevel(l Level) {
	x.minLevel.Store(int32(l))
}

// GetConfigName implements config.ConfigChangeListener.
func (x *GameLogger) GetConfigName() string {
	return "logger"
}

// OnConfigChanged applies a reloaded logger section. Appenders are kept; only
// the level and caller settings are hot-reloadable.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "logger" {
		return nil
	}
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}
	x.apply(cfg)
	x.Info().Str("level", cfg.Level().String()).Msg("logger config reloaded")
	return nil
}

func (x *GameLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers another output.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered outputs.
func (x *GameLogger) GetAppender() []LogAppender {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]LogAppender(nil), x.appenders...)
}

// Refresh flushes every appender.
func (x *GameLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		_ = appender.Refresh()
	}
}

// Close flushes and closes every appender.
func (x *GameLogger) Close() {
	for _, appender := range x.GetAppender() {
		_ = appender.Refresh()
		_ = appender.Close()
	}
}

// IgnoreCheckLevel always returns false for GameLogger.
func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

// OnEventEnd writes a finished event and returns it to the pool.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	x.mu.RLock()
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	x.mu.RUnlock()

	if e.level == FatalLevel {
		x.Refresh()
		panic("fatal log: " + e.buf.String())
	}
	x.eventPool.Put(e)
}

func (x *GameLogger) Trace() *LogEvent { return x.log(TraceLevel) }

func (x *GameLogger) Debug() *LogEvent { return x.log(DebugLevel) }

func (x *GameLogger) Info() *LogEvent { return x.log(InfoLevel) }

func (x *GameLogger) Warn() *LogEvent { return x.log(WarnLevel) }

func (x *GameLogger) Error() *LogEvent { return x.log(ErrorLevel) }

// Fatal events panic after being written.
func (x *GameLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

// callerInfo resolves "dir/file.go:line" of the code that called the level method.
func (x *GameLogger) callerInfo() string {
	pc, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(string)
	}
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if prev := strings.LastIndexByte(file[:lastSlash], '/'); prev >= 0 {
			file = file[prev+1:]
		}
	}
	c := file + ":" + strconv.Itoa(line)
	x.callerCache.Store(pc, c)
	return c
}

func (x *GameLogger) log(level Level) *LogEvent {
	if !x.IgnoreCheckLevel() && !x.checkLevel(level) {
		return nil
	}

	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level

	e.Time("time", time.Now())
	e.Str("level", level.String())
	if x.callerInfoEnabled.Load() {
		e.Str("caller", x.callerInfo())
	}
	return e
}
