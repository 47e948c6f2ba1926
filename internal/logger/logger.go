// Package logger is the process-wide leveled logger. Call sites use printf
// style helpers with a bracketed component prefix, e.g.
//
//	logger.Info("[PIPELINE] run %s finished in %s", id, elapsed)
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity. TraceLevel sits below zap's debug level.
type Level int8

const (
	TraceLevel Level = iota - 2
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel Level = 5
	PanicLevel Level = 4
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case PanicLevel:
		return "panic"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

func (l Level) zap() zapcore.Level {
	return zapcore.Level(l)
}

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
	output io.Writer = os.Stderr
)

func init() {
	rebuild()
}

// ParseLevel converts a flag value such as "debug" into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "panic":
		return PanicLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level %q (use trace, debug, info, warn, error, fatal, panic)", s)
	}
}

// SetLevel changes the minimum level that is written.
func SetLevel(l Level) {
	level.SetLevel(l.zap())
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(level.Level())
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	rebuild()
}

// OpenFile redirects log output to the file at path, appending. The caller
// closes the returned file on shutdown.
func OpenFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	SetOutput(f)
	return f, nil
}

func rebuild() {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = encodeLevel
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(output), level)
	sugar = zap.New(core).Sugar()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if Level(l) == TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

func logf(l Level, format string, args ...any) {
	mu.Lock()
	s := sugar
	mu.Unlock()
	s.Logf(l.zap(), format, args...)
}

func Trace(format string, args ...any) { logf(TraceLevel, format, args...) }
func Debug(format string, args ...any) { logf(DebugLevel, format, args...) }
func Info(format string, args ...any)  { logf(InfoLevel, format, args...) }
func Warn(format string, args ...any)  { logf(WarnLevel, format, args...) }
func Error(format string, args ...any) { logf(ErrorLevel, format, args...) }

// Sync flushes buffered output.
func Sync() {
	mu.Lock()
	s := sugar
	mu.Unlock()
	_ = s.Sync()
}
