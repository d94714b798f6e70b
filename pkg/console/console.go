// Package console is the human-facing log facility of the demo server. It writes
// timestamped lines at info, success, warn and error level to a swappable stream.
package console

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SuccessLevel sits below Debug so that zap's own level names stay untouched. It is
// enabled whenever the console is, regardless of the minimum level.
const SuccessLevel = zapcore.Level(-2)

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorBlue   = "\x1b[34m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// Options configures a Console.
type Options struct {
	// Output receives the log lines; os.Stdout when nil.
	Output io.Writer
	// Color enables ANSI colored level names.
	Color bool
	// Level is the minimum level written. Success lines are always written.
	Level zapcore.Level
}

// Console writes leveled lines through a zap core with a console encoder.
type Console struct {
	out    *swappableWriter
	logger *zap.Logger
}

// New creates a Console.
func New(opts Options) *Console {
	out := &swappableWriter{w: opts.Output}
	if out.w == nil {
		out.w = os.Stdout
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = levelEncoder(opts.Color)
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	minLevel := opts.Level
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l == SuccessLevel || l >= minLevel
	})

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), enabler)
	return &Console{out: out, logger: zap.New(core)}
}

// Info writes an informational line.
func (c *Console) Info(msg string, fields ...zap.Field) {
	c.logger.Info(msg, fields...)
}

// Success writes a success line.
func (c *Console) Success(msg string, fields ...zap.Field) {
	c.logger.Log(SuccessLevel, msg, fields...)
}

// Warn writes a warning line.
func (c *Console) Warn(msg string, fields ...zap.Field) {
	c.logger.Warn(msg, fields...)
}

// Error writes an error line.
func (c *Console) Error(msg string, fields ...zap.Field) {
	c.logger.Error(msg, fields...)
}

// SetOutput redirects every later line to w.
func (c *Console) SetOutput(w io.Writer) {
	c.out.swap(w)
}

// Logger returns the underlying zap logger.
func (c *Console) Logger() *zap.Logger {
	return c.logger
}

// Sync flushes buffered output.
func (c *Console) Sync() error {
	return c.logger.Sync()
}

func levelEncoder(color bool) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name, code := levelName(l)
		if color {
			enc.AppendString(code + name + colorReset)
			return
		}
		enc.AppendString(name)
	}
}

func levelName(l zapcore.Level) (string, string) {
	switch {
	case l == SuccessLevel:
		return "SUCCESS", colorGreen
	case l >= zapcore.ErrorLevel:
		return "ERROR", colorRed
	case l == zapcore.WarnLevel:
		return "WARN", colorYellow
	default:
		return l.CapitalString(), colorBlue
	}
}

type swappableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swappableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swappableWriter) swap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
