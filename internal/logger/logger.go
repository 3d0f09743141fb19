package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It is a no-op until Init runs so that
// packages and tests can log unconditionally.
var Logger = zap.NewNop()

const logFileName = "techfatafat.log"

// Init builds the process logger: a console core at the requested level and,
// when dir is set, a JSON file core that always records debug output.
func Init(level, dir string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), lvl),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), zap.DebugLevel))
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return Logger, nil
}

// L returns the process logger.
func L() *zap.Logger {
	return Logger
}

// Named returns a child of the process logger for one component, or the given
// logger when it is non-nil. Components use it to accept an optional logger.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = Logger
	}
	return l.Named(component)
}
