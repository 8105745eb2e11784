// Package logger wraps a process-wide zap logger.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Vasilion/UnyX-Social/config"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init 根据配置初始化全局 logger
func Init(cfg config.LogConfig) error {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	current.Store(l)
	return nil
}

// Set replaces the global logger; tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the global logger.
func L() *zap.Logger { return current.Load() }

func Debug(msg string, fields ...zap.Field) { current.Load().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { current.Load().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { current.Load().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { current.Load().Error(msg, fields...) }

// Sync flushes buffered entries.
func Sync() { _ = current.Load().Sync() }
