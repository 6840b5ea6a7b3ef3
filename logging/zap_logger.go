package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger 基于 zap 的 Logger 实现
type ZapLogger struct {
	z *zap.Logger
}

// NewZapLogger 创建输出到 stderr 的控制台格式 Logger
func NewZapLogger(level Level) *ZapLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zap.NewAtomicLevelAt(toZapLevel(level)),
	)
	return &ZapLogger{z: zap.New(core)}
}

// WrapZap 包装已有的 zap.Logger
func WrapZap(z *zap.Logger) *ZapLogger {
	if z == nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z}
}

// Zap 返回底层 zap.Logger
func (l *ZapLogger) Zap() *zap.Logger { return l.z }

func (l *ZapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.z.Info(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.z.Error(msg, toZapFields(fields)...)
}

func (l *ZapLogger) WithFields(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(toZapFields(fields)...)}
}

// Sync 刷新缓冲
func (l *ZapLogger) Sync() error { return l.z.Sync() }

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}
