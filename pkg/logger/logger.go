// Package logger предоставляет глобальный логгер на основе zap
// с поддержкой передачи через context.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log глобальный экземпляр логгера.
// По умолчанию инициализирован как no-op до вызова Initialize.
var Log *zap.Logger = zap.NewNop()

// FileConfig описывает дополнительный вывод логов в файл с ротацией.
// Пустой Filename отключает запись в файл.
type FileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Initialize создаёт и настраивает глобальный логгер.
// level уровень логирования (debug, info, warn, error).
// fields дополнительные поля, которые будут добавлены ко всем записям.
func Initialize(level string, fields ...zap.Field) error {
	return InitializeWithFile(level, FileConfig{}, fields...)
}

// InitializeWithFile работает как Initialize, но дополнительно дублирует
// записи в файл, если он задан.
func InitializeWithFile(level string, file FileConfig, fields ...zap.Field) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()

	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"

	configuredLogger, err := cfg.Build()
	if err != nil {
		return err
	}

	if file.Filename != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file.Filename,
			MaxSize:    max(file.MaxSizeMB, 10),
			MaxBackups: max(file.MaxBackups, 1),
			MaxAge:     max(file.MaxAgeDays, 7),
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), writer, lvl)
		configuredLogger = configuredLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	Log = configuredLogger.With(fields...)
	return nil
}

// loggerKey ключ для хранения логгера в context.
type loggerKey struct{}

// ContextWithLogger возвращает новый context с привязанным логгером.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetFromContext извлекает логгер из context.
// Если логгер не найден, возвращает глобальный Log.
func GetFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return Log
}
