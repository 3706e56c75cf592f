package log

// Application logging on top of zap
// Every record goes to the file logger (logs/app.log), SUCCESS and ERROR lines
// are also echoed to the console. Until Init is called both loggers are no-ops

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var (
	fileLogger    atomic.Pointer[zap.Logger]
	consoleLogger atomic.Pointer[zap.Logger] // for ERROR and SUCCESS
	nopLogger     = zap.NewNop()
	bufPool       = buffer.NewPool()
)

// Logger returns the file logger.
func Logger() *zap.Logger {
	if l := fileLogger.Load(); l != nil {
		return l
	}
	return nopLogger
}

func consoleLog() *zap.Logger {
	if l := consoleLogger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// Init creates dir and starts writing dir/app.log at the given level.
// Calling it again replaces the previous loggers.
func Init(dir string, level zapcore.Level) error {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	fileConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	fileCore := zapcore.NewCore(
		&fileEncoder{Encoder: zapcore.NewConsoleEncoder(fileConfig)},
		getLogFileWriter(filepath.Join(dir, "app.log")),
		level,
	)

	consoleConfig := zap.NewDevelopmentConfig()
	consoleConfig.EncoderConfig.EncodeLevel = levelEncoder
	consoleConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleConfig.EncoderConfig.EncodeCaller = nil
	consoleConfig.Development = false
	consoleConfig.DisableStacktrace = true
	consoleConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	console, err := consoleConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to build console logger: %w", err)
	}

	Set(zap.New(fileCore), console)
	return nil
}

// Set replaces the file and console loggers. Safe to call while other goroutines log.
// Tests use it with zaptest/observer cores.
func Set(file, console *zap.Logger) {
	if file == nil {
		file = zap.NewNop()
	}
	if console == nil {
		console = zap.NewNop()
	}
	fileLogger.Store(file)
	consoleLogger.Store(console)
}

// Sync flushes both loggers.
func Sync() {
	_ = Logger().Sync()
	_ = consoleLog().Sync()
}

// GenerateRequestID returns a random 16-char hex id.
func GenerateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LogRequest records an HTTP request (file only).
func LogRequest(requestID, method, endpoint string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	}, fields...)
	Logger().Info("HTTP request", allFields...)
}

// LogResponse records an HTTP response. Statuses of 400 and above are echoed to the console.
func LogResponse(requestID string, statusCode int, durationMs int64, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
	}, fields...)

	if statusCode >= 200 && statusCode < 400 {
		Logger().Info("HTTP response", allFields...)
		return
	}

	Logger().Error("HTTP response", allFields...)
	if endpoint := endpointField(fields); endpoint != "" {
		consoleLog().Error(fmt.Sprintf("✗ HTTP request failed [%d] %s", statusCode, endpoint))
	} else {
		consoleLog().Error(fmt.Sprintf("✗ HTTP request failed [%d]", statusCode))
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

func levelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(colorCyan + "DEBUG" + colorReset)
	case zapcore.InfoLevel:
		enc.AppendString(colorGreen + "SUCCESS" + colorReset) // console INFO is only used for success lines
	case zapcore.WarnLevel:
		enc.AppendString(colorYellow + "WARN" + colorReset)
	case zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.PanicLevel:
		enc.AppendString(colorRed + level.CapitalString() + colorReset)
	default:
		enc.AppendString(colorWhite + level.String() + colorReset)
	}
}

func LogInfo(message string, fields ...zap.Field) {
	Logger().Info(message, fields...)
}

// LogSuccess logs to the file and prints a ✓ line to the console.
func LogSuccess(message string, fields ...zap.Field) {
	Logger().Info(message, fields...)
	if ms := durationField(fields); ms > 0 {
		consoleLog().Info(fmt.Sprintf("✓ %s (%dms)", message, ms))
	} else {
		consoleLog().Info("✓ " + message)
	}
}

// LogError logs to the file and prints a ✗ line to the console.
func LogError(message string, fields ...zap.Field) {
	Logger().Error(message, fields...)
	if ms := durationField(fields); ms > 0 {
		consoleLog().Error(fmt.Sprintf("✗ %s (%dms)", message, ms))
	} else {
		consoleLog().Error("✗ " + message)
	}
}

func LogWarn(message string, fields ...zap.Field) {
	Logger().Warn(message, fields...)
}

func LogDebug(message string, fields ...zap.Field) {
	Logger().Debug(message, fields...)
}

func durationField(fields []zap.Field) int64 {
	for _, field := range fields {
		if field.Key == "duration_ms" && field.Type == zapcore.Int64Type {
			return field.Integer
		}
	}
	return 0
}

func endpointField(fields []zap.Field) string {
	for _, field := range fields {
		if field.Key == "endpoint" {
			return field.String
		}
	}
	return ""
}

// MaxLogFileSize - app.log is truncated once it grows past this size
const MaxLogFileSize = 50 * 1024 * 1024

type truncatingWriter struct {
	file *os.File
	path string
	max  int64
	mu   sync.Mutex
}

func (w *truncatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if info, err := w.file.Stat(); err == nil && info.Size() > w.max {
		w.file.Close()
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to truncate log file: %w", err)
		}
		w.file = f
	}
	return w.file.Write(p)
}

func (w *truncatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// getLogFileWriter opens path for append, falling back to stderr.
func getLogFileWriter(path string) zapcore.WriteSyncer {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v, falling back to stderr\n", path, err)
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(&truncatingWriter{file: file, path: path, max: MaxLogFileSize})
}

// fileEncoder writes "<time>     <LEVEL> <msg>\t{json fields}" lines.
type fileEncoder struct {
	zapcore.Encoder
}

func (e *fileEncoder) Clone() zapcore.Encoder {
	return &fileEncoder{Encoder: e.Encoder.Clone()}
}

func (e *fileEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := bufPool.Get()

	buf.AppendString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.AppendString("     ")
	buf.AppendString(entry.Level.CapitalString())
	buf.AppendString(" ")
	buf.AppendString(entry.Message)

	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, field := range fields {
			field.AddTo(enc)
		}
		if jsonData, err := json.Marshal(enc.Fields); err == nil {
			buf.AppendString("\t")
			buf.Write(jsonData)
		}
	}

	buf.AppendString("\n")
	return buf, nil
}
