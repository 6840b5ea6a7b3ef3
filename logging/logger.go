// Package logging 提供统一的日志接口抽象。
//
// 数据访问层的日志全部经由 GetLogger() 输出；默认实现基于 zap，
// 测试中可替换为 NoopLogger 或 RecordingLogger。
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel 解析配置中的级别名，大小写不敏感
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field            { return Field{Key: key, Value: value} }
func Int(key string, value int) Field           { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field       { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field         { return Field{Key: key, Value: value} }
func Any(key string, value any) Field           { return Field{Key: key, Value: value} }
func Duration(key string, v time.Duration) Field { return Field{Key: key, Value: v} }

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Component 标记日志来源组件，如 connection / command / activerecord
func Component(name string) Field {
	return Field{Key: "component", Value: name}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// Entry 一条被记录的日志
type Entry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field 按 key 查找字段值
func (e Entry) Field(key string) (any, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// RecordingLogger 将日志保存在内存中，供断言使用
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  []Field
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (l *RecordingLogger) record(level Level, msg string, fields []Field) {
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.mu.Lock()
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: all})
	l.mu.Unlock()
}

func (l *RecordingLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.record(DebugLevel, msg, fields)
}

func (l *RecordingLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.record(InfoLevel, msg, fields)
}

func (l *RecordingLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.record(WarnLevel, msg, fields)
}

func (l *RecordingLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.record(ErrorLevel, msg, fields)
}

// WithFields 派生的 Logger 与原 Logger 共享记录
func (l *RecordingLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &RecordingLogger{mu: l.mu, entries: l.entries, fields: merged}
}

// Entries 返回记录快照
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// Filter 返回不低于指定级别的记录
func (l *RecordingLogger) Filter(min Level) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level >= min {
			out = append(out, e)
		}
	}
	return out
}

type loggerHolder struct{ Logger }

var globalLogger atomic.Value

func init() {
	globalLogger.Store(loggerHolder{NewZapLogger(InfoLevel)})
}

// SetLogger 设置全局Logger，nil 等价于 NoopLogger
func SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoopLogger()
	}
	globalLogger.Store(loggerHolder{logger})
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	return globalLogger.Load().(loggerHolder).Logger
}
