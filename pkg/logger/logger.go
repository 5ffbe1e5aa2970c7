package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context keys read by the ctx-aware helpers.
const (
	TraceIdKey   = "trace_id"
	RequestIdKey = "request_id"
)

// Log is the process-wide logger. It is a no-op until Init runs, so
// library packages and tests can log unconditionally.
var Log = zap.NewNop()

// level 可以在运行时调整 (配置热更新)
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init 初始化日志组件, 只写 stdout
func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "-")
}

// InitWithFile writes JSON lines to stdout and, unless logFile is "-",
// to logFile (default logs/{serviceName}.log).
func InitWithFile(serviceName string, lvl string, logFile string) {
	SetLevel(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
	}

	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	if logFile != "-" {
		// 文件打不开只写控制台，不中断启动
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)

	// CallerSkip 1: 跳过本包的封装函数
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// SetLevel changes the level of the live logger; unknown names fall back to info.
func SetLevel(lvl string) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(lvl)); err != nil {
		zl = zap.InfoLevel
	}
	level.SetLevel(zl)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, withCtx(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, withCtx(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, withCtx(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, withCtx(ctx, fields)...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, withCtx(ctx, fields)...)
}

// withCtx appends trace_id (explicit value first, then the active span) and request_id.
func withCtx(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	} else if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if rid, ok := ctx.Value(RequestIdKey).(string); ok && rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	return fields
}

// Sync 刷新缓冲区 (main 里 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
