package macropad

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
)

// NewLogger provides a console logger for the whole application. The log
// file sink is attached later, once the config tells us where it goes.
func NewLogger(verbose bool) *zap.SugaredLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)

	return zap.New(core).Sugar()
}

// withFileSink tees the logger's output into a size-rotated log file.
func withFileSink(logger *zap.SugaredLogger, path string, verbose bool) *zap.SugaredLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
		}),
		level,
	)

	return logger.Desugar().WithOptions(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}),
	).Sugar()
}
