package util

import (
	"os"

	"github.com/charmbracelet/log"
)

// Category flags mirror the subsystems that produce diagnostics. They are
// combined into GlobalLogCategories to gate output per subsystem without
// touching the level.
type LogCategory int

const (
	LogTextures LogCategory = 1 << iota
	LogAtlas
	LogBatch
	LogOpenGL
)

var GlobalLogCategories = LogAtlas | LogBatch | LogOpenGL | LogTextures

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.00",
	Level:           log.WarnLevel,
})

// SetLogger replaces the package logger. Passing nil restores the default
// stderr logger at warn level.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           log.WarnLevel,
		})
	}
	logger = l
}

func Logger() *log.Logger {
	return logger
}

func enabled(cat LogCategory) bool {
	return GlobalLogCategories&cat != 0
}

func LogTextureDebug(msg string, keyvals ...interface{}) {
	if enabled(LogTextures) {
		logger.Debug(msg, append([]interface{}{"cat", "texture"}, keyvals...)...)
	}
}

func LogTextureError(msg string, keyvals ...interface{}) {
	if enabled(LogTextures) {
		logger.Error(msg, append([]interface{}{"cat", "texture"}, keyvals...)...)
	}
}

func LogAtlasDebug(msg string, keyvals ...interface{}) {
	if enabled(LogAtlas) {
		logger.Debug(msg, append([]interface{}{"cat", "atlas"}, keyvals...)...)
	}
}

func LogBatchDebug(msg string, keyvals ...interface{}) {
	if enabled(LogBatch) {
		logger.Debug(msg, append([]interface{}{"cat", "batch"}, keyvals...)...)
	}
}

func LogGLError(msg string, keyvals ...interface{}) {
	if enabled(LogOpenGL) {
		logger.Error(msg, append([]interface{}{"cat", "gl"}, keyvals...)...)
	}
}
